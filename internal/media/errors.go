package media

import "errors"

var (
	// ErrDeviceUnavailable is returned when a requested capture source does not exist
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrPermissionDenied is returned when a capture source exists but cannot be opened
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrDisplayUnsupported is returned when screen capture is not available
	ErrDisplayUnsupported = errors.New("display capture not supported")
)
