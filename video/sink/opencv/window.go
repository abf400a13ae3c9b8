package opencv

import (
	"image"

	"gocv.io/x/gocv"
)

const keyEscape = 27

// Window shows presenter output in a desktop window. It is both the GPU and
// the Host for sink.RunLoop, and must be created on the render goroutine.
type Window struct {
	*canvas

	// OnKey receives key presses other than Escape, which closes the window.
	OnKey func(key int)

	window *gocv.Window
	size   image.Point
}

func NewWindow(name string, size image.Point) *Window {
	w := &Window{
		canvas: newCanvas(size),
		window: gocv.NewWindow(name),
		size:   size,
	}
	w.window.ResizeWindow(size.X, size.Y)
	return w
}

func (w *Window) Size() image.Point {
	return w.size
}

func (w *Window) Present() bool {
	if !w.window.IsOpen() {
		return false
	}
	w.drawCaption()
	w.window.IMShow(w.out)
	key := w.window.WaitKey(1)
	switch {
	case key == keyEscape:
		return false
	case key >= 0 && w.OnKey != nil:
		w.OnKey(key)
	}
	return true
}

func (w *Window) Close() {
	w.canvas.close()
	w.window.Close()
}
