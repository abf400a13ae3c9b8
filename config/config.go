package config

import (
	"fmt"
	"image"
	"strings"
	"time"

	"edgecam/video/frame"
	"edgecam/video/source"
)

const (
	DriverOpenCV       = "opencv"
	DriverMediaDevices = "mediadevices"
	DriverSynthetic    = "synthetic"

	BackendWindow = "window"
	BackendMJPEG  = "mjpeg"
)

type Config struct {
	Camera CameraConfig

	// Driver is one of opencv, mediadevices or synthetic.
	Driver string
	// URI, if set, is opened by the opencv driver instead of a device. Video
	// files play once.
	URI string

	// Backend is window or mjpeg.
	Backend           string
	RefreshIntervalMs int

	Canny CannyConfig
	// EdgeDetectionOff starts the pipeline with processing bypassed.
	EdgeDetectionOff bool

	Port int
	// If set, frame rate samples are stored in this MySQL database.
	DatabaseDSN string
}

type CameraConfig struct {
	// Selection, in priority order: ID, Facing (front, back, external), Index.
	ID     string
	Facing string
	Index  int

	Width  int
	Height int
	FPS    int
	// Format is the requested capture format, e.g. "I420". Empty lets the
	// device choose.
	Format string
}

type CannyConfig struct {
	Blur int
	Low  float64
	High float64
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverOpenCV
	}
	if c.Backend == "" {
		c.Backend = BackendWindow
	}
	if c.RefreshIntervalMs == 0 {
		c.RefreshIntervalMs = 16
	}
	if c.Camera.Width == 0 {
		c.Camera.Width = 640
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = 480
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = 30
	}
	if c.Canny == (CannyConfig{}) {
		c.Canny = CannyConfig{Blur: 5, Low: 50, High: 150}
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverOpenCV, DriverMediaDevices, DriverSynthetic:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.URI != "" && c.Driver != DriverOpenCV {
		return fmt.Errorf("uri is only supported by the %s driver", DriverOpenCV)
	}
	switch c.Backend {
	case BackendWindow, BackendMJPEG:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.RefreshIntervalMs < 0 {
		return fmt.Errorf("negative refresh interval %d", c.RefreshIntervalMs)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 {
		return fmt.Errorf("invalid capture size %dx%d@%d", c.Camera.Width, c.Camera.Height, c.Camera.FPS)
	}
	if c.Camera.Index < 0 {
		return fmt.Errorf("negative camera index %d", c.Camera.Index)
	}
	switch source.Facing(c.Camera.Facing) {
	case source.FacingAny, source.FacingFront, source.FacingBack, source.FacingExternal:
	default:
		return fmt.Errorf("unknown facing %q", c.Camera.Facing)
	}
	if _, err := ParseFormat(c.Camera.Format); err != nil {
		return err
	}
	if b := c.Canny.Blur; b < 0 || (b > 0 && b%2 == 0) {
		return fmt.Errorf("canny blur kernel must be odd, got %d", b)
	}
	if c.Canny.Low < 0 || c.Canny.High < c.Canny.Low {
		return fmt.Errorf("invalid canny thresholds %v/%v", c.Canny.Low, c.Canny.High)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

func (c *CameraConfig) Selector() source.Selector {
	return source.Selector{
		ID:     c.ID,
		Facing: source.Facing(c.Facing),
		Index:  c.Index,
	}
}

func (c *CameraConfig) Surface() source.Surface {
	f, _ := ParseFormat(c.Format)
	return source.Surface{
		Size:   image.Point{X: c.Width, Y: c.Height},
		Format: f,
	}
}

// ParseFormat maps a format name to its value, ignoring case. The empty
// string is frame.FormatUnknown.
func ParseFormat(s string) (frame.PixelFormat, error) {
	if s == "" {
		return frame.FormatUnknown, nil
	}
	for _, f := range source.AllFormats {
		if strings.EqualFold(f.String(), s) {
			return f, nil
		}
	}
	return frame.FormatUnknown, fmt.Errorf("unknown pixel format %q", s)
}
