package process

import (
	"encoding/binary"
	"runtime"
	"sync"

	"depthcam/video/source"
)

// FarThresholdMM is the default depth beyond which a pixel counts as far.
const FarThresholdMM = 1500

// Class is the depth classification of one pixel.
type Class int

const (
	Near Class = iota
	NoData
	Far
)

func (c Class) String() string {
	switch c {
	case NoData:
		return "no-data"
	case Far:
		return "far"
	}
	return "near"
}

// ClassifyWith classifies a depth sample against a far threshold. A zero
// sample is always NoData, whatever the threshold.
func ClassifyWith(d, far uint16) Class {
	switch {
	case d == 0:
		return NoData
	case d > far:
		return Far
	}
	return Near
}

// Classify uses FarThresholdMM.
func Classify(d uint16) Class {
	return ClassifyWith(d, FarThresholdMM)
}

// Colorizer annotates a color image from co-registered depth: pixels without
// depth get full red, pixels beyond the far threshold get full green.
type Colorizer struct {
	// FarThreshold in millimeters. Zero means FarThresholdMM.
	FarThreshold uint16
	// Workers bounds the goroutines used per image. Zero means GOMAXPROCS.
	Workers int
}

// Colorize writes the annotated color into out. color and out are BGRA32,
// depth is Depth16, and all three must cover the same pixel grid. Rows are
// split across workers; pixels are independent so the result does not depend
// on the split.
func (c *Colorizer) Colorize(color, depth, out *source.Image) error {
	if color == nil {
		return transformError("colorize: missing color image")
	}
	w, h := color.Width, color.Height
	if err := color.CheckShape(source.FormatColorBGRA32, w, h); err != nil {
		return transformError("colorize: color: %v", err)
	}
	if err := depth.CheckShape(source.FormatDepth16, w, h); err != nil {
		return transformError("colorize: depth: %v", err)
	}
	if err := out.CheckShape(source.FormatColorBGRA32, w, h); err != nil {
		return transformError("colorize: output: %v", err)
	}

	far := c.FarThreshold
	if far == 0 {
		far = FarThresholdMM
	}
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > h {
		workers = h
	}
	if workers <= 1 {
		colorizeRows(color, depth, out, far, 0, h)
		return nil
	}

	var wg sync.WaitGroup
	rows := (h + workers - 1) / workers
	for y0 := 0; y0 < h; y0 += rows {
		y1 := min(y0+rows, h)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			colorizeRows(color, depth, out, far, y0, y1)
		}(y0, y1)
	}
	wg.Wait()
	return nil
}

func colorizeRows(color, depth, out *source.Image, far uint16, y0, y1 int) {
	w := color.Width
	for y := y0; y < y1; y++ {
		src := color.Pix[y*color.Stride : y*color.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w*4]
		dep := depth.Pix[y*depth.Stride : y*depth.Stride+w*2]
		copy(dst, src)
		for x := 0; x < w; x++ {
			d := binary.LittleEndian.Uint16(dep[x*2:])
			if d == 0 {
				dst[x*4+2] = 255
			} else if d > far {
				dst[x*4+1] = 255
			}
		}
	}
}
