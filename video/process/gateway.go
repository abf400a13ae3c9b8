package process

import (
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"edgecam/util"
	"edgecam/video/frame"
)

// Func is an external processing function, such as an edge detector. It must
// return a buffer of the same length as pix and must not modify pix.
type Func func(pix []byte, width, height int) ([]byte, error)

// PassThrough returns its input unchanged.
func PassThrough(pix []byte, width, height int) ([]byte, error) {
	return pix, nil
}

// Target receives processed frames. SetFrame must not block.
type Target interface {
	SetFrame(b *frame.PixelBuffer) error
}

type discard struct{}

func (discard) SetFrame(*frame.PixelBuffer) error { return nil }

// Observer is notified about gateway activity, for metrics.
type Observer interface {
	FrameProcessed(d time.Duration)
	FrameSuperseded()
	FrameFailed()
}

type Options struct {
	// Process runs while Enabled reports true; PassThrough runs otherwise.
	Process Func
	// Enabled is read once per processed frame. Nil means always enabled.
	Enabled func() bool

	// Target receives processed frames. Nil discards them.
	Target   Target
	Observer Observer

	// CloseTimeout bounds how long Close waits for an in-flight call.
	CloseTimeout time.Duration
}

// Gateway runs the processing function on a single worker goroutine. There
// is at most one call in flight and at most one frame pending; submitting
// while a frame is pending replaces it.
type Gateway struct {
	opts Options

	pending frame.Mailbox[frame.PixelBuffer]
	wake    chan struct{}
	stop    chan struct{}
	done    *util.Event
	closed  atomic.Bool

	processed atomic.Uint64
	failed    atomic.Uint64
}

func NewGateway(o Options) *Gateway {
	if o.Process == nil {
		o.Process = PassThrough
	}
	if o.Target == nil {
		o.Target = discard{}
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = time.Second
	}
	g := &Gateway{
		opts: o,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: util.NewEvent(),
	}
	go g.loop()
	return g
}

// Submit hands b to the worker. It never blocks.
func (g *Gateway) Submit(b *frame.PixelBuffer) {
	if g.closed.Load() {
		return
	}
	if g.pending.Put(b) && g.opts.Observer != nil {
		g.opts.Observer.FrameSuperseded()
	}
	select {
	case g.wake <- struct{}{}:
	default:
		// Worker already has a wakeup queued.
	}
}

func (g *Gateway) loop() {
	defer g.done.Notify()
	for {
		select {
		case <-g.stop:
			return
		case <-g.wake:
		}
		if b := g.pending.Take(); b != nil {
			g.run(b)
		}
	}
}

func (g *Gateway) run(in *frame.PixelBuffer) {
	fn := g.opts.Process
	if g.opts.Enabled != nil && !g.opts.Enabled() {
		fn = PassThrough
	}

	start := time.Now()
	out, err := call(fn, in)
	elapsed := time.Since(start)
	if err != nil {
		g.failed.Add(1)
		if g.opts.Observer != nil {
			g.opts.Observer.FrameFailed()
		}
		log.WithField("seq", in.Seq()).Warnf("Dropping frame: %v", err)
		return
	}
	g.processed.Add(1)
	if g.opts.Observer != nil {
		g.opts.Observer.FrameProcessed(elapsed)
	}
	log.Debugf("Processed %v in %v", in, elapsed)

	if g.closed.Load() {
		// Sink may already be gone.
		return
	}
	if err := g.opts.Target.SetFrame(out); err != nil {
		log.WithField("seq", in.Seq()).Errorf("Sink rejected processed frame: %v", err)
	}
}

// call runs fn, turning errors, panics and contract violations into
// frame.ErrProcessingFailure.
func call(fn Func, in *frame.PixelBuffer) (out *frame.PixelBuffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: panic: %v", frame.ErrProcessingFailure, r)
		}
	}()
	pix, err := fn(in.Pix(), in.Width(), in.Height())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", frame.ErrProcessingFailure, err)
	}
	if len(pix) != in.Len() {
		return nil, fmt.Errorf("%w: output length %d, input %d", frame.ErrProcessingFailure, len(pix), in.Len())
	}
	return in.WithPixels(pix)
}

// Processed is the number of frames successfully processed.
func (g *Gateway) Processed() uint64 { return g.processed.Load() }

// Failed is the number of frames dropped because processing failed.
func (g *Gateway) Failed() uint64 { return g.failed.Load() }

// Superseded is the number of pending frames replaced before processing.
func (g *Gateway) Superseded() uint64 { return g.pending.Drops() }

// Close stops the worker. An in-flight call may finish; its result is
// discarded. Close waits at most CloseTimeout for it.
func (g *Gateway) Close() {
	if g.closed.Swap(true) {
		return
	}
	close(g.stop)
	if !g.done.WaitTimeout(g.opts.CloseTimeout) {
		log.Warnf("Processing call still running after %v; abandoning it", g.opts.CloseTimeout)
	}
}
