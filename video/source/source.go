package source

import (
	"fmt"
	"image"

	"edgecam/video/frame"
)

// Facing describes where a camera points.
type Facing string

const (
	FacingAny      Facing = ""
	FacingFront    Facing = "front"
	FacingBack     Facing = "back"
	FacingExternal Facing = "external"
)

// DeviceInfo describes a camera known to a Driver.
type DeviceInfo struct {
	ID     string
	Label  string
	Facing Facing
	// Formats lists the pixel formats the device can produce.
	Formats []frame.PixelFormat
}

func (d DeviceInfo) supports(f frame.PixelFormat) bool {
	if f == frame.FormatUnknown {
		return len(d.Formats) > 0
	}
	for _, s := range d.Formats {
		if s == f {
			return true
		}
	}
	return false
}

// Surface describes the target a capture session renders into.
type Surface struct {
	Size image.Point
	// Format is the requested native format. FormatUnknown lets the device
	// pick its first supported format.
	Format frame.PixelFormat
}

func (s Surface) String() string {
	return fmt.Sprintf("%dx%d/%v", s.Size.X, s.Size.Y, s.Format)
}

// Driver is the platform camera subsystem.
type Driver interface {
	// Permitted reports whether capture permission has been granted.
	Permitted() bool

	// Devices enumerates the available cameras.
	Devices() []DeviceInfo

	// Acquire takes exclusive ownership of a device. It fails with
	// frame.ErrDeviceUnavailable if the device is already held.
	Acquire(id string) (Device, error)
}

// Device is an acquired camera.
type Device interface {
	Info() DeviceInfo

	// Configure prepares a repeating capture into surfaces shaped like s.
	Configure(s Surface) error

	// Read blocks until the next frame is available and writes it into dst,
	// reusing dst's plane memory where possible. It returns io.EOF when the
	// device has no more frames.
	Read(dst *frame.Raw) error

	// Release gives the device back without blocking. A Read blocked in
	// another goroutine must return once Release has been called, as soon as
	// the underlying device allows.
	Release() error
}

// Selector picks a device. The zero value selects the first device.
type Selector struct {
	ID     string
	Facing Facing
	Index  int
}

func (s Selector) String() string {
	switch {
	case s.ID != "":
		return "id=" + s.ID
	case s.Facing != FacingAny:
		return "facing=" + string(s.Facing)
	default:
		return fmt.Sprintf("index=%d", s.Index)
	}
}

func (s Selector) match(devices []DeviceInfo) (DeviceInfo, bool) {
	switch {
	case s.ID != "":
		for _, d := range devices {
			if d.ID == s.ID {
				return d, true
			}
		}
	case s.Facing != FacingAny:
		for _, d := range devices {
			if d.Facing == s.Facing {
				return d, true
			}
		}
	default:
		if s.Index >= 0 && s.Index < len(devices) {
			return devices[s.Index], true
		}
	}
	return DeviceInfo{}, false
}
