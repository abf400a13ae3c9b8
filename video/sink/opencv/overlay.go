package opencv

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	colorText = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorBG   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// drawCaption writes Caption's text over the top left corner of the drawn
// frame.
func (c *canvas) drawCaption() {
	if c.Caption == nil || c.out.Empty() {
		return
	}
	text := c.Caption()
	if text == "" {
		return
	}

	font := gocv.FontHersheySimplex
	scale := 0.5
	thickness := 1

	sz := gocv.GetTextSize(text, font, scale, thickness)

	pad := 2

	gocv.Rectangle(&c.out, image.Rectangle{Min: image.Point{X: 0, Y: 0}, Max: image.Point{X: sz.X + pad*2, Y: sz.Y + pad*2}}, colorBG, -1)

	gocv.PutText(&c.out, text, image.Point{X: pad, Y: sz.Y + pad}, font, scale, colorText, thickness)
}
