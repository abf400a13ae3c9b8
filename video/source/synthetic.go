package source

import (
	"fmt"
	"io"
	"sync"
	"time"

	"edgecam/video/frame"
)

// AllFormats lists every format the converter understands.
var AllFormats = []frame.PixelFormat{
	frame.FormatRGB24,
	frame.FormatBGR24,
	frame.FormatRGBA32,
	frame.FormatBGRA32,
	frame.FormatARGB8888,
	frame.FormatGray8,
	frame.FormatI420,
	frame.FormatI422,
	frame.FormatI444,
}

// Synthetic is a Driver producing a moving test pattern at a fixed rate. It
// backs headless demos and tests.
type Synthetic struct {
	// Cameras defaults to a single back-facing device supporting AllFormats.
	Cameras []DeviceInfo
	// FPS is the frame rate; 30 if zero.
	FPS int
	// Limit ends every session with io.EOF after this many frames, if set.
	Limit int
	// Denied simulates a missing capture permission.
	Denied bool

	mu   sync.Mutex
	held map[string]bool
}

func (s *Synthetic) Permitted() bool { return !s.Denied }

func (s *Synthetic) Devices() []DeviceInfo {
	if len(s.Cameras) == 0 {
		return []DeviceInfo{{ID: "synthetic0", Label: "Synthetic camera", Facing: FacingBack, Formats: AllFormats}}
	}
	return s.Cameras
}

func (s *Synthetic) Acquire(id string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var info *DeviceInfo
	for _, d := range s.Devices() {
		if d.ID == id {
			d := d
			info = &d
		}
	}
	if info == nil {
		return nil, fmt.Errorf("%w: unknown device %q", frame.ErrDeviceUnavailable, id)
	}
	if s.held == nil {
		s.held = make(map[string]bool)
	}
	if s.held[id] {
		return nil, fmt.Errorf("%w: device %q is in use", frame.ErrDeviceUnavailable, id)
	}
	s.held[id] = true

	fps := s.FPS
	if fps <= 0 {
		fps = 30
	}
	return &syntheticDevice{
		info:     *info,
		interval: time.Second / time.Duration(fps),
		limit:    s.Limit,
		release:  make(chan struct{}),
		onRelease: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.held, id)
		},
	}, nil
}

type syntheticDevice struct {
	info      DeviceInfo
	interval  time.Duration
	limit     int
	surface   Surface
	next      time.Time
	count     int
	release   chan struct{}
	once      sync.Once
	onRelease func()
}

func (d *syntheticDevice) Info() DeviceInfo { return d.info }

func (d *syntheticDevice) Configure(s Surface) error {
	if s.Format == frame.FormatUnknown {
		s.Format = d.info.Formats[0]
	}
	if s.Format == frame.FormatI420 && (s.Size.X%2 != 0 || s.Size.Y%2 != 0) {
		return fmt.Errorf("%w: I420 needs even dimensions, got %v", frame.ErrConfiguration, s.Size)
	}
	d.surface = s
	return nil
}

func (d *syntheticDevice) Read(dst *frame.Raw) error {
	if d.limit > 0 && d.count >= d.limit {
		return io.EOF
	}
	now := time.Now()
	if d.next.IsZero() || now.Sub(d.next) > d.interval {
		// A real sensor does not catch up on frames nobody read.
		d.next = now
	}
	if wait := d.next.Sub(now); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-d.release:
			t.Stop()
			return io.EOF
		case <-t.C:
		}
	} else {
		select {
		case <-d.release:
			return io.EOF
		default:
		}
	}
	d.next = d.next.Add(d.interval)
	d.count++
	Pattern(dst, d.surface.Format, d.surface.Size.X, d.surface.Size.Y, d.count)
	dst.Captured = time.Now()
	return nil
}

func (d *syntheticDevice) Release() error {
	d.once.Do(func() {
		close(d.release)
		d.onRelease()
	})
	return nil
}

// Pattern fills dst with a diagonal gradient shifted by phase, laid out in
// format f.
func Pattern(dst *frame.Raw, f frame.PixelFormat, w, h, phase int) {
	dst.PixFormat = f
	dst.Dim.X, dst.Dim.Y = w, h
	switch f {
	case frame.FormatI420, frame.FormatI422, frame.FormatI444:
		cw, ch := w, h
		if f != frame.FormatI444 {
			cw = (w + 1) / 2
		}
		if f == frame.FormatI420 {
			ch = (h + 1) / 2
		}
		dst.PixPlanes = resizePlanes(dst.PixPlanes, w*h, cw*ch, cw*ch)
		dst.PlaneStride = []int{w, cw, cw}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.PixPlanes[0][y*w+x] = byte(x + y + phase)
			}
		}
		for i := range dst.PixPlanes[1] {
			dst.PixPlanes[1][i] = byte(128 + phase%32)
			dst.PixPlanes[2][i] = byte(128 - phase%32)
		}
	default:
		bpp := bytesPerPixel(f)
		dst.PixPlanes = resizePlanes(dst.PixPlanes, w*h*bpp)
		dst.PlaneStride = []int{w * bpp}
		p := dst.PixPlanes[0]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b := byte(x+phase), byte(y+phase), byte(phase)
				o := (y*w + x) * bpp
				switch f {
				case frame.FormatRGB24:
					p[o], p[o+1], p[o+2] = r, g, b
				case frame.FormatBGR24:
					p[o], p[o+1], p[o+2] = b, g, r
				case frame.FormatRGBA32:
					p[o], p[o+1], p[o+2], p[o+3] = r, g, b, 255
				case frame.FormatBGRA32, frame.FormatARGB8888:
					p[o], p[o+1], p[o+2], p[o+3] = b, g, r, 255
				case frame.FormatGray8:
					p[o] = byte((int(r) + int(g) + int(b)) / 3)
				}
			}
		}
	}
}

func bytesPerPixel(f frame.PixelFormat) int {
	switch f {
	case frame.FormatRGB24, frame.FormatBGR24:
		return 3
	case frame.FormatRGBA32, frame.FormatBGRA32, frame.FormatARGB8888:
		return 4
	default:
		return 1
	}
}

func resizePlanes(planes [][]byte, sizes ...int) [][]byte {
	if len(planes) != len(sizes) {
		planes = make([][]byte, len(sizes))
	}
	for i, n := range sizes {
		if cap(planes[i]) < n {
			planes[i] = make([]byte, n)
		}
		planes[i] = planes[i][:n]
	}
	return planes
}
