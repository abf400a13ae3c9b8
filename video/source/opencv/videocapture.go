// Package opencv implements a capture driver on top of OpenCV's VideoCapture,
// covering both camera indexes and video files or stream URIs.
package opencv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"edgecam/video/frame"
	"edgecam/video/source"
)

// Driver exposes a fixed list of VideoCapture sources. A source that parses
// as an integer is a camera index; anything else is opened as a file or URI.
type Driver struct {
	Sources []string

	mu   sync.Mutex
	held map[string]bool
}

// NewDriver exposes the given sources, or every /dev/videoN camera if there
// are none.
func NewDriver(sources ...string) *Driver {
	if len(sources) == 0 {
		sources = probeCameras()
	}
	return &Driver{
		Sources: sources,
		held:    make(map[string]bool),
	}
}

func probeCameras() []string {
	nodes, _ := filepath.Glob("/dev/video*")
	var idx []int
	for _, n := range nodes {
		if i, err := strconv.Atoi(strings.TrimPrefix(n, "/dev/video")); err == nil {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return []string{"0"}
	}
	sort.Ints(idx)
	out := make([]string, len(idx))
	for i, v := range idx {
		out[i] = strconv.Itoa(v)
	}
	return out
}

func isCamera(src string) (int, bool) {
	i, err := strconv.Atoi(src)
	return i, err == nil
}

// Permitted checks that camera device nodes, where present, are readable.
func (d *Driver) Permitted() bool {
	for _, src := range d.Sources {
		idx, ok := isCamera(src)
		if !ok {
			continue
		}
		f, err := os.Open(fmt.Sprintf("/dev/video%d", idx))
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				return false
			}
			continue
		}
		f.Close()
	}
	return true
}

func (d *Driver) Devices() []source.DeviceInfo {
	var out []source.DeviceInfo
	for _, src := range d.Sources {
		info := source.DeviceInfo{
			ID:      src,
			Label:   src,
			Facing:  source.FacingExternal,
			Formats: []frame.PixelFormat{frame.FormatBGR24},
		}
		if idx, ok := isCamera(src); ok {
			info.Label = fmt.Sprintf("Camera %d", idx)
		}
		out = append(out, info)
	}
	return out
}

func (d *Driver) Acquire(id string) (source.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held[id] {
		return nil, fmt.Errorf("%w: %s is in use", frame.ErrDeviceUnavailable, id)
	}

	var target interface{} = id
	idx, camera := isCamera(id)
	if camera {
		target = idx
	}
	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", frame.ErrDeviceUnavailable, id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s did not open", frame.ErrDeviceUnavailable, id)
	}
	d.held[id] = true

	var info source.DeviceInfo
	for _, i := range d.Devices() {
		if i.ID == id {
			info = i
		}
	}
	return &device{
		info:   info,
		camera: camera,
		vc:     vc,
		mat:    gocv.NewMat(),
		release: func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.held, id)
		},
	}, nil
}

type device struct {
	info   source.DeviceInfo
	camera bool

	// mu guards the state flags, never a blocking VideoCapture call.
	mu      sync.Mutex
	reading bool
	closed  bool

	vc      *gocv.VideoCapture
	mat     gocv.Mat
	release func()
}

func (v *device) Info() source.DeviceInfo { return v.info }

func (v *device) Configure(s source.Surface) error {
	if s.Format != frame.FormatUnknown && s.Format != frame.FormatBGR24 {
		return fmt.Errorf("%w: OpenCV capture produces BGR24, not %v", frame.ErrConfiguration, s.Format)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.camera {
		v.vc.Set(gocv.VideoCaptureFrameWidth, float64(s.Size.X))
		v.vc.Set(gocv.VideoCaptureFrameHeight, float64(s.Size.Y))
	}
	w := int(v.vc.Get(gocv.VideoCaptureFrameWidth))
	h := int(v.vc.Get(gocv.VideoCaptureFrameHeight))
	if w != s.Size.X || h != s.Size.Y {
		log.WithField("camera", v.info.ID).Warnf("Requested %dx%d, device delivers %dx%d", s.Size.X, s.Size.Y, w, h)
	}
	return nil
}

func (v *device) Read(dst *frame.Raw) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return io.EOF
	}
	v.reading = true
	v.mu.Unlock()

	// VideoCapture cannot be interrupted; a Release during the read is
	// finished here once it returns.
	ok := v.vc.Read(&v.mat)

	v.mu.Lock()
	v.reading = false
	closed := v.closed
	v.mu.Unlock()
	if closed {
		v.shutdown()
		return io.EOF
	}

	if !ok || v.mat.Empty() {
		if !v.camera {
			return io.EOF
		}
		return errors.New("read failure")
	}
	dst.Captured = time.Now()
	dst.Dim.X, dst.Dim.Y = v.mat.Cols(), v.mat.Rows()

	switch v.mat.Type() {
	case gocv.MatTypeCV8UC3:
		dst.PixFormat = frame.FormatBGR24
	case gocv.MatTypeCV8UC4:
		dst.PixFormat = frame.FormatBGRA32
	case gocv.MatTypeCV8UC1:
		dst.PixFormat = frame.FormatGray8
	default:
		dst.PixFormat = frame.FormatUnknown
	}

	// Step() is the row length including any padding.
	var b []byte
	if v.mat.IsContinuous() {
		p, err := v.mat.DataPtrUint8()
		if err != nil {
			return err
		}
		b = p
	} else {
		b = v.mat.ToBytes()
	}
	if len(dst.PixPlanes) != 1 {
		dst.PixPlanes = make([][]byte, 1)
	}
	if cap(dst.PixPlanes[0]) < len(b) {
		dst.PixPlanes[0] = make([]byte, len(b))
	}
	dst.PixPlanes[0] = dst.PixPlanes[0][:len(b)]
	copy(dst.PixPlanes[0], b)
	dst.PlaneStride = []int{v.mat.Step()}
	if !v.mat.IsContinuous() {
		dst.PlaneStride[0] = v.mat.Cols() * v.mat.Channels()
	}
	return nil
}

// Release marks the device closed. If a Read is in progress the capture is
// closed by that Read when it returns, since closing it underneath a read is
// unsafe.
func (v *device) Release() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	reading := v.reading
	v.mu.Unlock()

	if reading {
		log.WithField("camera", v.info.ID).Debugf("Release during read; closing when it returns")
		return nil
	}
	return v.shutdown()
}

func (v *device) shutdown() error {
	v.mat.Close()
	err := v.vc.Close()
	v.release()
	return err
}
