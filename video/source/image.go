package source

import (
	"encoding/binary"
	"fmt"
	"image"
	"time"
)

// Format identifies the pixel layout of an Image buffer.
type Format int

const (
	// FormatColorBGRA32 stores 4 bytes per pixel in B, G, R, A order.
	FormatColorBGRA32 Format = iota
	// FormatDepth16 stores one little-endian uint16 per pixel, in millimeters.
	FormatDepth16
	// FormatIR16 stores one little-endian uint16 per pixel of passive IR intensity.
	FormatIR16
)

func (f Format) String() string {
	switch f {
	case FormatColorBGRA32:
		return "BGRA32"
	case FormatDepth16:
		return "DEPTH16"
	case FormatIR16:
		return "IR16"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// BytesPerPixel returns the size of a single pixel in the buffer.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatColorBGRA32:
		return 4
	case FormatDepth16, FormatIR16:
		return 2
	}
	return 0
}

// Image is a 2D pixel buffer produced by a device or allocated as scratch
// space. Rows are Stride bytes apart; Stride may exceed Width*BytesPerPixel.
type Image struct {
	Format Format
	Width  int
	Height int
	Stride int
	Pix    []byte

	// DeviceTimestamp is the device clock time at the center of exposure.
	DeviceTimestamp time.Duration
	// SystemTimestamp is the host time the image was read from the device.
	SystemTimestamp time.Time
}

// NewImage allocates a zeroed, tightly packed image.
func NewImage(format Format, width, height int) *Image {
	stride := width * format.BytesPerPixel()
	return &Image{
		Format: format,
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// Size returns the image dimensions as a point.
func (i *Image) Size() image.Point {
	return image.Point{X: i.Width, Y: i.Height}
}

// SameSize reports whether both images cover the same pixel grid.
func (i *Image) SameSize(o *Image) bool {
	return i.Width == o.Width && i.Height == o.Height
}

// PixOffset returns the index of the first byte of pixel (x, y).
func (i *Image) PixOffset(x, y int) int {
	return y*i.Stride + x*i.Format.BytesPerPixel()
}

// Depth returns the 16 bit sample at (x, y) of a Depth16 or IR16 image.
func (i *Image) Depth(x, y int) uint16 {
	return binary.LittleEndian.Uint16(i.Pix[i.PixOffset(x, y):])
}

// SetDepth writes the 16 bit sample at (x, y).
func (i *Image) SetDepth(x, y int, d uint16) {
	binary.LittleEndian.PutUint16(i.Pix[i.PixOffset(x, y):], d)
}

// BGRA returns the color channels of pixel (x, y) of a BGRA32 image.
func (i *Image) BGRA(x, y int) (b, g, r, a uint8) {
	o := i.PixOffset(x, y)
	return i.Pix[o], i.Pix[o+1], i.Pix[o+2], i.Pix[o+3]
}

// SetBGRA writes pixel (x, y) of a BGRA32 image.
func (i *Image) SetBGRA(x, y int, b, g, r, a uint8) {
	o := i.PixOffset(x, y)
	i.Pix[o], i.Pix[o+1], i.Pix[o+2], i.Pix[o+3] = b, g, r, a
}

// Clear zeroes every row of the image.
func (i *Image) Clear() {
	for k := range i.Pix {
		i.Pix[k] = 0
	}
}

// CheckShape returns an error unless the image has the given format and size.
func (i *Image) CheckShape(format Format, width, height int) error {
	if i == nil {
		return fmt.Errorf("missing %v image", format)
	}
	if i.Format != format {
		return fmt.Errorf("image format %v, expected %v", i.Format, format)
	}
	if i.Width != width || i.Height != height {
		return fmt.Errorf("image size %dx%d, expected %dx%d", i.Width, i.Height, width, height)
	}
	if i.Stride < width*format.BytesPerPixel() || len(i.Pix) < i.Stride*(height-1)+width*format.BytesPerPixel() {
		return fmt.Errorf("image buffer too small for %dx%d %v", width, height, format)
	}
	return nil
}
