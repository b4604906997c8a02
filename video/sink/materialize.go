package sink

import (
	"image"

	"github.com/pkg/errors"

	"depthcam/video/source"
)

// Materialize converts a BGRA32 device image into a new RGBA image that
// owns its pixels, so the result outlives the source buffer and can cross
// goroutines freely.
func Materialize(img *source.Image) (*image.RGBA, error) {
	if img == nil {
		return nil, errors.New("materialize: nil image")
	}
	if err := img.CheckShape(source.FormatColorBGRA32, img.Width, img.Height); err != nil {
		return nil, errors.Wrap(err, "materialize")
	}
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	w := img.Width * 4
	for y := 0; y < img.Height; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for o := 0; o < w; o += 4 {
			dst[o] = src[o+2]
			dst[o+1] = src[o+1]
			dst[o+2] = src[o]
			dst[o+3] = src[o+3]
		}
	}
	return out, nil
}
