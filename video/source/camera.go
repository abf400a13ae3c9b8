package source

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"edgecam/util"
	"edgecam/video/frame"
)

// DefaultJoinTimeout bounds how long Close waits for the capture goroutine
// before releasing the device to unblock it.
const DefaultJoinTimeout = 2 * time.Second

// ErrNoFrame is returned by Pull when no frame arrived since the last Pull.
var ErrNoFrame = errors.New("no new frame available")

// Camera is a capture session on one device. Frames are read on a dedicated
// goroutine into a double buffer; every new frame fires the frame-available
// listener, which pulls the pixels with Pull.
type Camera struct {
	JoinTimeout time.Duration

	dev Device
	log *log.Entry

	mu       sync.Mutex
	listener func()
	surface  *Surface
	front    *frame.Raw
	back     *frame.Raw
	fresh    bool

	stop    chan struct{}
	done    *util.Event
	closing atomic.Bool
	closed  bool

	frames     atomic.Uint64
	readErrors atomic.Uint64
}

// Open acquires the device matched by sel.
func Open(d Driver, sel Selector) (*Camera, error) {
	if !d.Permitted() {
		return nil, fmt.Errorf("%w: camera access not granted", frame.ErrPermissionDenied)
	}
	info, ok := sel.match(d.Devices())
	if !ok {
		return nil, fmt.Errorf("%w: no camera matches %v", frame.ErrDeviceUnavailable, sel)
	}
	dev, err := d.Acquire(info.ID)
	if err != nil {
		if errors.Is(err, frame.ErrDeviceUnavailable) || errors.Is(err, frame.ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", frame.ErrDeviceUnavailable, err)
	}
	clog := log.WithField("camera", info.ID)
	clog.Infof("Opened camera %q (%s)", info.Label, sel)
	return &Camera{
		JoinTimeout: DefaultJoinTimeout,
		dev:         dev,
		log:         clog,
		front:       &frame.Raw{},
		back:        &frame.Raw{},
	}, nil
}

// Info describes the underlying device.
func (c *Camera) Info() DeviceInfo {
	return c.dev.Info()
}

// OnFrameAvailable registers fn to be called on the capture goroutine once
// per captured frame. The call carries no pixels; use Pull.
func (c *Camera) OnFrameAvailable(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}

// StartSession configures the device for s and starts capturing. Starting
// again with the same surface is a no-op.
func (c *Camera) StartSession(s Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: camera closed", frame.ErrDeviceUnavailable)
	}
	if c.surface != nil {
		if *c.surface == s {
			return nil
		}
		return fmt.Errorf("%w: session already running on %v", frame.ErrConfiguration, *c.surface)
	}
	if s.Size.X <= 0 || s.Size.Y <= 0 {
		return fmt.Errorf("%w: invalid surface size %v", frame.ErrConfiguration, s)
	}
	if !c.dev.Info().supports(s.Format) {
		return fmt.Errorf("%w: device cannot produce %v", frame.ErrConfiguration, s.Format)
	}
	if err := c.dev.Configure(s); err != nil {
		if errors.Is(err, frame.ErrConfiguration) {
			return err
		}
		return fmt.Errorf("%w: %v", frame.ErrConfiguration, err)
	}

	c.surface = &s
	c.stop = make(chan struct{})
	c.done = util.NewEvent()
	go c.loop(c.stop, c.done)
	c.log.Infof("Capture session started on %v", s)
	return nil
}

func (c *Camera) loop(stop <-chan struct{}, done *util.Event) {
	defer done.Notify()
	for {
		select {
		case <-stop:
			return
		default:
		}

		// back is only touched by this goroutine until the swap below.
		c.mu.Lock()
		back := c.back
		c.mu.Unlock()

		if err := c.dev.Read(back); err != nil {
			if c.closing.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				c.log.Infof("Capture source exhausted")
				return
			}
			c.readErrors.Add(1)
			c.log.Debugf("Read failure: %v", err)
			time.Sleep(time.Millisecond)
			continue
		}

		c.mu.Lock()
		c.front, c.back = back, c.front
		c.fresh = true
		listener := c.listener
		c.mu.Unlock()
		c.frames.Add(1)

		if listener != nil && !c.closing.Load() {
			listener()
		}
	}
}

// Pull runs fn against the most recent frame. The frame is only valid until
// fn returns. Each frame is handed out at most once; ErrNoFrame is returned
// if nothing new arrived.
func (c *Camera) Pull(fn func(frame.CapturedFrame) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fresh {
		return ErrNoFrame
	}
	c.fresh = false
	return fn(c.front)
}

// Frames is the number of frames captured so far.
func (c *Camera) Frames() uint64 { return c.frames.Load() }

// ReadErrors is the number of failed device reads.
func (c *Camera) ReadErrors() uint64 { return c.readErrors.Load() }

// Close stops the capture goroutine, waits for it to exit and releases the
// device. The wait is bounded by twice JoinTimeout. It is safe to call more
// than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closing.Store(true)
	stop, done := c.stop, c.done
	c.mu.Unlock()

	released := false
	var rerr error
	if stop != nil {
		close(stop)
		if !done.WaitTimeout(c.JoinTimeout) {
			// Release unblocks a Read stuck waiting for a frame.
			c.log.Warnf("Capture goroutine still busy after %v; releasing device", c.JoinTimeout)
			rerr = c.dev.Release()
			released = true
			if !done.WaitTimeout(c.JoinTimeout) {
				// Some drivers cannot interrupt a read in progress. The
				// goroutine exits on its own once the read returns.
				c.log.Errorf("Capture goroutine did not exit after release; abandoning it")
			}
		}
	}
	if !released {
		rerr = c.dev.Release()
	}
	c.log.Infof("Camera closed after %d frames", c.Frames())
	return rerr
}
