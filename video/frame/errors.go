package frame

import "errors"

// Pipeline error taxonomy. Callers wrap these with fmt.Errorf("%w: ...") and
// match with errors.Is.
var (
	// ErrPermissionDenied is returned when capture permission was not granted.
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrDeviceUnavailable is returned when no device matches the selector or
	// the device is held by another owner.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrConfiguration is returned when a capture surface is incompatible with
	// the device.
	ErrConfiguration = errors.New("capture session configuration error")

	// ErrUnsupportedFormat is returned for pixel data that cannot be turned
	// into a valid PixelBuffer.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrProcessingFailure marks a failed call into the processing function.
	ErrProcessingFailure = errors.New("frame processing failed")

	// ErrGpuInitFailure marks a failed GPU setup; rendering stops.
	ErrGpuInitFailure = errors.New("gpu initialization failed")
)
