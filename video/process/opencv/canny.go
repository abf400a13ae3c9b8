// Package opencv provides processing functions backed by OpenCV.
package opencv

import (
	"fmt"
	"image"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// CannyParams configures the edge detector.
type CannyParams struct {
	// Blur is the Gaussian kernel size; it must be odd. Zero disables blur.
	Blur int
	Low  float32
	High float32
}

// DefaultCannyParams matches the classic 5x5 blur with 50/150 thresholds.
var DefaultCannyParams = CannyParams{Blur: 5, Low: 50, High: 150}

// EdgeDetector renders Canny edges of an RGB frame as white on black. The
// working matrices are reused between calls.
type EdgeDetector struct {
	// Params is consulted on every call, so thresholds can change live.
	Params func() CannyParams

	gray, blurred, edges, out gocv.Mat

	l sync.Mutex
}

func NewEdgeDetector(params func() CannyParams) *EdgeDetector {
	if params == nil {
		params = func() CannyParams { return DefaultCannyParams }
	}
	return &EdgeDetector{
		Params:  params,
		gray:    gocv.NewMat(),
		blurred: gocv.NewMat(),
		edges:   gocv.NewMat(),
		out:     gocv.NewMat(),
	}
}

// Process implements process.Func.
func (e *EdgeDetector) Process(pix []byte, width, height int) ([]byte, error) {
	e.l.Lock()
	defer e.l.Unlock()

	src, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, pix)
	if err != nil {
		return nil, fmt.Errorf("wrap %dx%d frame: %v", width, height, err)
	}
	defer src.Close()

	p := e.Params()
	gocv.CvtColor(src, &e.gray, gocv.ColorRGBToGray)
	in := e.gray
	if p.Blur > 0 {
		k := p.Blur | 1
		gocv.GaussianBlur(e.gray, &e.blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)
		in = e.blurred
	}
	gocv.Canny(in, &e.edges, p.Low, p.High)
	// Gray to 3 channels is symmetric, so BGR and RGB are the same here.
	gocv.CvtColor(e.edges, &e.out, gocv.ColorGrayToBGR)

	out := e.out.ToBytes()
	if len(out) != len(pix) {
		return nil, fmt.Errorf("edge output is %d bytes, want %d", len(out), len(pix))
	}
	return out, nil
}

func (e *EdgeDetector) Close() {
	e.l.Lock()
	defer e.l.Unlock()
	for _, m := range []*gocv.Mat{&e.gray, &e.blurred, &e.edges, &e.out} {
		m.Close()
	}
	log.Debugf("Edge detector released")
}
