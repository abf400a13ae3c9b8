// Package video wires capture, conversion, processing and presentation into
// one running pipeline.
package video

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"edgecam/video/convert"
	"edgecam/video/frame"
	"edgecam/video/process"
	"edgecam/video/sink"
	"edgecam/video/source"
	"edgecam/video/telemetry"
)

type Options struct {
	Driver   source.Driver
	Selector source.Selector
	Surface  source.Surface

	// Process is applied while edge detection is enabled on Presenter.
	Process   process.Func
	Presenter *sink.Presenter

	// Optional.
	Metrics   *telemetry.Metrics
	Publisher *telemetry.Publisher
	Clock     func() time.Time

	JoinTimeout time.Duration
}

// Pipeline moves frames from a camera to a presenter. Frames are converted on
// the capture goroutine and processed on the gateway worker; whatever cannot
// keep up is dropped.
type Pipeline struct {
	camera    *source.Camera
	gateway   *process.Gateway
	presenter *sink.Presenter
	counter   *telemetry.Counter
	metrics   *telemetry.Metrics

	seq      atomic.Uint64
	rejected atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// Start opens the camera and begins streaming into o.Presenter. Acquisition
// errors are returned as is.
func Start(o Options) (*Pipeline, error) {
	if o.Presenter == nil {
		return nil, fmt.Errorf("%w: no presenter", frame.ErrConfiguration)
	}
	cam, err := source.Open(o.Driver, o.Selector)
	if err != nil {
		return nil, err
	}
	if o.JoinTimeout > 0 {
		cam.JoinTimeout = o.JoinTimeout
	}

	p := &Pipeline{
		camera:    cam,
		presenter: o.Presenter,
		metrics:   o.Metrics,
	}
	p.counter = telemetry.NewCounter(o.Clock, func(fps int) {
		log.Debugf("Capture rate %d fps", fps)
		if o.Publisher != nil {
			o.Publisher.Publish(fps)
		}
		if o.Metrics != nil {
			o.Metrics.SetFPS(fps)
		}
	})
	var observer process.Observer
	if o.Metrics != nil {
		observer = o.Metrics
		o.Metrics.SetEdgeDetection(o.Presenter.EdgeDetectionEnabled())
	}
	p.gateway = process.NewGateway(process.Options{
		Process:  o.Process,
		Enabled:  o.Presenter.EdgeDetectionEnabled,
		Target:   o.Presenter,
		Observer: observer,
	})

	cam.OnFrameAvailable(p.onFrame)
	if err := cam.StartSession(o.Surface); err != nil {
		p.gateway.Close()
		cam.Close()
		return nil, err
	}
	p.counter.Reset()
	return p, nil
}

// onFrame runs on the capture goroutine.
func (p *Pipeline) onFrame() {
	p.counter.Tick()
	if p.metrics != nil {
		p.metrics.FrameCaptured()
	}

	err := p.camera.Pull(func(f frame.CapturedFrame) error {
		b, err := convert.Convert(f, p.seq.Add(1))
		if err != nil {
			return err
		}
		p.gateway.Submit(b)
		return nil
	})
	switch {
	case err == nil, errors.Is(err, source.ErrNoFrame):
	default:
		p.rejected.Add(1)
		if p.metrics != nil {
			p.metrics.FrameRejected()
		}
		log.Warnf("Dropping captured frame: %v", err)
	}
}

// ToggleEdgeDetection flips edge detection and returns the new value.
func (p *Pipeline) ToggleEdgeDetection() bool {
	on := p.presenter.ToggleEdgeDetection()
	if p.metrics != nil {
		p.metrics.SetEdgeDetection(on)
	}
	return on
}

func (p *Pipeline) EdgeDetectionEnabled() bool {
	return p.presenter.EdgeDetectionEnabled()
}

func (p *Pipeline) FPS() int {
	return p.counter.FPS()
}

// Status is a snapshot of the pipeline's counters.
type Status struct {
	Camera        string `json:"camera"`
	State         string `json:"state"`
	FPS           int    `json:"fps"`
	EdgeDetection bool   `json:"edge_detection"`

	Captured    uint64 `json:"captured"`
	ReadErrors  uint64 `json:"read_errors"`
	Rejected    uint64 `json:"rejected"`
	Superseded  uint64 `json:"superseded"`
	Failed      uint64 `json:"failed"`
	Processed   uint64 `json:"processed"`
	Delivered   uint64 `json:"delivered"`
	Overwritten uint64 `json:"overwritten"`
	Uploaded    uint64 `json:"uploaded"`
}

func (p *Pipeline) Status() Status {
	return Status{
		Camera:        p.camera.Info().Label,
		State:         p.presenter.State().String(),
		FPS:           p.counter.FPS(),
		EdgeDetection: p.presenter.EdgeDetectionEnabled(),
		Captured:      p.camera.Frames(),
		ReadErrors:    p.camera.ReadErrors(),
		Rejected:      p.rejected.Load(),
		Superseded:    p.gateway.Superseded(),
		Failed:        p.gateway.Failed(),
		Processed:     p.gateway.Processed(),
		Delivered:     p.presenter.Received(),
		Overwritten:   p.presenter.Dropped(),
		Uploaded:      p.presenter.Uploads(),
	}
}

// Sample converts s for storage.
func (s Status) Sample() telemetry.Sample {
	return telemetry.Sample{
		FPS:       s.FPS,
		Captured:  s.Captured,
		Processed: s.Processed,
		Dropped:   s.Rejected + s.Superseded + s.Failed + s.Overwritten,
		Uploaded:  s.Uploaded,
	}
}

// Close stops capture and processing. A processing call still in flight is
// abandoned and its result discarded. The presenter is left to its render
// loop.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.camera.Close()
		p.gateway.Close()
		s := p.Status()
		log.Infof("Pipeline closed: captured %d, processed %d, delivered %d", s.Captured, s.Processed, s.Delivered)
	})
	return p.closeErr
}
