package frame

import (
	"fmt"
	"image"
	"time"
)

// PixelFormat identifies the native layout of a CapturedFrame.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	// FormatRGB24 is packed R, G, B.
	FormatRGB24
	// FormatBGR24 is packed B, G, R (the OpenCV default).
	FormatBGR24
	// FormatRGBA32 is packed R, G, B, A.
	FormatRGBA32
	// FormatBGRA32 is packed B, G, R, A.
	FormatBGRA32
	// FormatARGB8888 is 32-bit ARGB words stored little-endian, so the bytes
	// in memory read B, G, R, A.
	FormatARGB8888
	// FormatGray8 is a single luminance byte per pixel.
	FormatGray8
	// FormatI420 is planar YUV 4:2:0: a full-size Y plane followed by
	// quarter-size U and V planes.
	FormatI420
	// FormatI422 is planar YUV 4:2:2: U and V planes of half width and full
	// height. Packed YUYV and UYVY cameras decode to it.
	FormatI422
	// FormatI444 is planar YUV 4:4:4 with full-size U and V planes.
	FormatI444
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB24:
		return "RGB24"
	case FormatBGR24:
		return "BGR24"
	case FormatRGBA32:
		return "RGBA32"
	case FormatBGRA32:
		return "BGRA32"
	case FormatARGB8888:
		return "ARGB8888"
	case FormatGray8:
		return "Gray8"
	case FormatI420:
		return "I420"
	case FormatI422:
		return "I422"
	case FormatI444:
		return "I444"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// PlaneCount returns how many planes a frame of this format carries, or 0 if
// the format is unknown.
func (f PixelFormat) PlaneCount() int {
	switch f {
	case FormatRGB24, FormatBGR24, FormatRGBA32, FormatBGRA32, FormatARGB8888, FormatGray8:
		return 1
	case FormatI420, FormatI422, FormatI444:
		return 3
	default:
		return 0
	}
}

// CapturedFrame is a platform pixel surface as delivered by a capture device.
// It is only valid while the callback that exposes it is running; anything
// needed afterwards must be copied out.
type CapturedFrame interface {
	Format() PixelFormat
	Size() image.Point
	// Planes returns the pixel planes. Packed formats have one plane.
	Planes() [][]byte
	// Strides returns the row length in bytes of each plane.
	Strides() []int
	// Time is the capture time.
	Time() time.Time
}

// Raw is a CapturedFrame backed by plain byte slices. Drivers fill one in
// place for every frame.
type Raw struct {
	PixFormat   PixelFormat
	Dim         image.Point
	PixPlanes   [][]byte
	PlaneStride []int
	Captured    time.Time
}

func (r *Raw) Format() PixelFormat { return r.PixFormat }
func (r *Raw) Size() image.Point   { return r.Dim }
func (r *Raw) Planes() [][]byte    { return r.PixPlanes }
func (r *Raw) Strides() []int      { return r.PlaneStride }
func (r *Raw) Time() time.Time     { return r.Captured }
