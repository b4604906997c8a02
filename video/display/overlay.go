package display

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	colorText = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorBG   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// FormatRate renders a frame rate the way the viewer labels it.
func FormatRate(fps float64) string {
	return fmt.Sprintf("%.2f FPS", fps)
}

// DrawLabel draws text on a black box in the top left corner of img.
func DrawLabel(img *gocv.Mat, text string) {
	font := gocv.FontHersheySimplex
	scale := 0.8
	thickness := 2

	sz := gocv.GetTextSize(text, font, scale, thickness)

	pad := 4

	gocv.Rectangle(img, image.Rectangle{Min: image.Point{X: 0, Y: 0}, Max: image.Point{X: sz.X + pad*2, Y: sz.Y + pad*2}}, colorBG, -1)

	gocv.PutText(img, text, image.Point{X: pad, Y: sz.Y + pad}, font, scale, colorText, thickness)
}

// toMat converts an RGBA frame into a BGR Mat owned by the caller.
func toMat(img *image.RGBA) (gocv.Mat, error) {
	return gocv.ImageToMatRGB(img)
}
