// Package mediadevices implements a capture driver on pion/mediadevices,
// which talks to V4L2 on Linux and AVFoundation on macOS.
package mediadevices

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // registers camera drivers
	pframe "github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	log "github.com/sirupsen/logrus"

	"edgecam/video/frame"
	"edgecam/video/source"
)

type Driver struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewDriver() *Driver {
	return &Driver{held: make(map[string]bool)}
}

// Permitted always reports true; the OS refuses access when the stream is
// opened instead.
func (d *Driver) Permitted() bool { return true }

func (d *Driver) Devices() []source.DeviceInfo {
	var out []source.DeviceInfo
	for _, dev := range mediadevices.EnumerateDevices() {
		if dev.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, source.DeviceInfo{
			ID:      dev.DeviceID,
			Label:   dev.Label,
			Facing:  source.FacingExternal,
			Formats: []frame.PixelFormat{frame.FormatI420, frame.FormatI422},
		})
	}
	return out
}

func (d *Driver) Acquire(id string) (source.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held[id] {
		return nil, fmt.Errorf("%w: %s is in use", frame.ErrDeviceUnavailable, id)
	}
	d.held[id] = true
	var info source.DeviceInfo
	for _, i := range d.Devices() {
		if i.ID == id {
			info = i
		}
	}
	return &device{
		info: info,
		release: func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.held, id)
		},
	}, nil
}

type device struct {
	info source.DeviceInfo

	mu      sync.Mutex
	track   mediadevices.Track
	reader  video.Reader
	closed  bool
	release func()
}

func (v *device) Info() source.DeviceInfo { return v.info }

func (v *device) Configure(s source.Surface) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.track != nil {
		return fmt.Errorf("%w: already configured", frame.ErrConfiguration)
	}
	formats, err := frameFormats(s.Format)
	if err != nil {
		return err
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(v.info.ID)
			c.Width = prop.Int(s.Size.X)
			c.Height = prop.Int(s.Size.Y)
			c.FrameFormat = formats
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", frame.ErrConfiguration, err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return fmt.Errorf("%w: no video track", frame.ErrConfiguration)
	}
	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		tracks[0].Close()
		return fmt.Errorf("%w: unexpected track type %T", frame.ErrConfiguration, tracks[0])
	}
	v.track = vt
	v.reader = vt.NewReader(false)
	log.WithField("camera", v.info.ID).Infof("Media track %s ready", vt.ID())
	return nil
}

func (v *device) Read(dst *frame.Raw) error {
	v.mu.Lock()
	reader, closed := v.reader, v.closed
	v.mu.Unlock()
	if closed {
		return io.EOF
	}
	if reader == nil {
		return errors.New("device not configured")
	}

	img, release, err := reader.Read()
	if err != nil {
		return err
	}
	defer release()
	dst.Captured = time.Now()
	fill(dst, img)
	return nil
}

// nativeFormats lists the camera formats whose decoders produce each layout
// the converter understands. MJPEG is left out: its chroma layout is only
// known once a frame is decoded.
var nativeFormats = map[frame.PixelFormat][]pframe.Format{
	frame.FormatI420: {pframe.FormatI420, pframe.FormatNV12, pframe.FormatNV21},
	frame.FormatI422: {pframe.FormatYUY2, pframe.FormatYUYV, pframe.FormatUYVY},
}

// frameFormats is the track constraint for a requested surface format.
// FormatUnknown accepts any format the converter can handle.
func frameFormats(f frame.PixelFormat) (prop.FrameFormatOneOf, error) {
	if f != frame.FormatUnknown {
		native, ok := nativeFormats[f]
		if !ok {
			return nil, fmt.Errorf("%w: cannot capture %v", frame.ErrConfiguration, f)
		}
		return prop.FrameFormatOneOf(native), nil
	}
	all := prop.FrameFormatOneOf{}
	all = append(all, nativeFormats[frame.FormatI420]...)
	all = append(all, nativeFormats[frame.FormatI422]...)
	return all, nil
}

var subsampling = map[image.YCbCrSubsampleRatio]frame.PixelFormat{
	image.YCbCrSubsampleRatio420: frame.FormatI420,
	image.YCbCrSubsampleRatio422: frame.FormatI422,
	image.YCbCrSubsampleRatio444: frame.FormatI444,
}

// fill copies img into dst. Layouts the converter does not handle are marked
// FormatUnknown so the frame is rejected.
func fill(dst *frame.Raw, img image.Image) {
	b := img.Bounds()
	dst.Dim = b.Size()
	switch m := img.(type) {
	case *image.YCbCr:
		f, ok := subsampling[m.SubsampleRatio]
		if !ok {
			dst.PixFormat = frame.FormatUnknown
			return
		}
		dst.PixFormat = f
		dst.PixPlanes = copyPlanes(dst.PixPlanes, m.Y, m.Cb, m.Cr)
		dst.PlaneStride = []int{m.YStride, m.CStride, m.CStride}
	case *image.RGBA:
		dst.PixFormat = frame.FormatRGBA32
		dst.PixPlanes = copyPlanes(dst.PixPlanes, m.Pix)
		dst.PlaneStride = []int{m.Stride}
	case *image.Gray:
		dst.PixFormat = frame.FormatGray8
		dst.PixPlanes = copyPlanes(dst.PixPlanes, m.Pix)
		dst.PlaneStride = []int{m.Stride}
	default:
		dst.PixFormat = frame.FormatUnknown
	}
}

func copyPlanes(dst [][]byte, src ...[]byte) [][]byte {
	if len(dst) != len(src) {
		dst = make([][]byte, len(src))
	}
	for i, s := range src {
		if cap(dst[i]) < len(s) {
			dst[i] = make([]byte, len(s))
		}
		dst[i] = dst[i][:len(s)]
		copy(dst[i], s)
	}
	return dst
}

func (v *device) Release() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	var err error
	if v.track != nil {
		err = v.track.Close()
	}
	v.release()
	return err
}
