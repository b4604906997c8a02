package process

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"depthcam/video/source"
)

func solidColor(w, h int, b, g, r, a uint8) *source.Image {
	img := source.NewImage(source.FormatColorBGRA32, w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetBGRA(x, y, b, g, r, a)
		}
	}
	return img
}

func depthRamp(w, h int) *source.Image {
	img := source.NewImage(source.FormatDepth16, w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetDepth(x, y, uint16((x*37+y*101)%3000))
		}
	}
	return img
}

func TestClassify(t *testing.T) {
	test.That(t, Classify(0), test.ShouldEqual, NoData)
	test.That(t, Classify(1), test.ShouldEqual, Near)
	test.That(t, Classify(FarThresholdMM), test.ShouldEqual, Near)
	test.That(t, Classify(FarThresholdMM+1), test.ShouldEqual, Far)
	test.That(t, Classify(65535), test.ShouldEqual, Far)

	test.That(t, ClassifyWith(0, 0), test.ShouldEqual, NoData)
	test.That(t, ClassifyWith(500, 400), test.ShouldEqual, Far)
	test.That(t, NoData.String(), test.ShouldEqual, "no-data")
}

func TestColorizePixels(t *testing.T) {
	color := solidColor(3, 1, 10, 20, 30, 255)
	depth := source.NewImage(source.FormatDepth16, 3, 1)
	depth.SetDepth(0, 0, 0)
	depth.SetDepth(1, 0, 2000)
	depth.SetDepth(2, 0, 500)
	out := source.NewImage(source.FormatColorBGRA32, 3, 1)

	c := &Colorizer{}
	test.That(t, c.Colorize(color, depth, out), test.ShouldBeNil)

	b, g, r, a := out.BGRA(0, 0)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{10, 20, 255, 255})
	b, g, r, a = out.BGRA(1, 0)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{10, 255, 30, 255})
	b, g, r, a = out.BGRA(2, 0)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{10, 20, 30, 255})

	// Input is untouched.
	b, g, r, a = color.BGRA(0, 0)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{10, 20, 30, 255})
}

func TestColorizeThreshold(t *testing.T) {
	color := solidColor(2, 1, 0, 0, 0, 255)
	depth := source.NewImage(source.FormatDepth16, 2, 1)
	depth.SetDepth(0, 0, 1000)
	depth.SetDepth(1, 0, 1001)
	out := source.NewImage(source.FormatColorBGRA32, 2, 1)

	c := &Colorizer{FarThreshold: 1000}
	test.That(t, c.Colorize(color, depth, out), test.ShouldBeNil)
	_, g, _, _ := out.BGRA(0, 0)
	test.That(t, g, test.ShouldEqual, uint8(0))
	_, g, _, _ = out.BGRA(1, 0)
	test.That(t, g, test.ShouldEqual, uint8(255))
}

func TestColorizeProperties(t *testing.T) {
	const w, h = 64, 48
	color := source.NewImage(source.FormatColorBGRA32, w, h)
	for i := range color.Pix {
		color.Pix[i] = uint8(i * 7)
	}
	depth := depthRamp(w, h)

	serial := source.NewImage(source.FormatColorBGRA32, w, h)
	test.That(t, (&Colorizer{Workers: 1}).Colorize(color, depth, serial), test.ShouldBeNil)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ib, ig, ir, ia := color.BGRA(x, y)
			ob, og, or, oa := serial.BGRA(x, y)
			test.That(t, ob, test.ShouldEqual, ib)
			test.That(t, oa, test.ShouldEqual, ia)
			switch Classify(depth.Depth(x, y)) {
			case NoData:
				test.That(t, or, test.ShouldEqual, uint8(255))
				test.That(t, og, test.ShouldEqual, ig)
			case Far:
				test.That(t, og, test.ShouldEqual, uint8(255))
				test.That(t, or, test.ShouldEqual, ir)
			case Near:
				test.That(t, og, test.ShouldEqual, ig)
				test.That(t, or, test.ShouldEqual, ir)
			}
		}
	}

	t.Run("worker count does not matter", func(t *testing.T) {
		for _, workers := range []int{2, 5, 16, 100} {
			out := source.NewImage(source.FormatColorBGRA32, w, h)
			test.That(t, (&Colorizer{Workers: workers}).Colorize(color, depth, out), test.ShouldBeNil)
			test.That(t, out.Pix, test.ShouldResemble, serial.Pix)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		again := source.NewImage(source.FormatColorBGRA32, w, h)
		test.That(t, (&Colorizer{}).Colorize(serial, depth, again), test.ShouldBeNil)
		test.That(t, again.Pix, test.ShouldResemble, serial.Pix)
	})
}

func TestColorizeShapeMismatch(t *testing.T) {
	color := solidColor(4, 4, 1, 2, 3, 255)
	c := &Colorizer{}

	err := c.Colorize(color, source.NewImage(source.FormatDepth16, 4, 3), source.NewImage(source.FormatColorBGRA32, 4, 4))
	test.That(t, err, test.ShouldBeError)
	test.That(t, errors.Is(err, ErrTransform), test.ShouldBeTrue)

	err = c.Colorize(color, source.NewImage(source.FormatDepth16, 4, 4), source.NewImage(source.FormatDepth16, 4, 4))
	test.That(t, errors.Is(err, ErrTransform), test.ShouldBeTrue)

	err = c.Colorize(nil, nil, nil)
	test.That(t, errors.Is(err, ErrTransform), test.ShouldBeTrue)
}
