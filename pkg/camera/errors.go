package camera

import "errors"

// Sentinel errors for capture conditions.
var (
	// ErrDeviceUnavailable is returned when the capture device cannot be
	// opened (permission denied, no hardware) or stops delivering frames.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrNoActiveFrame is returned when sampling without an active session
	// or before the device has produced its first frame.
	ErrNoActiveFrame = errors.New("camera: no active frame")

	// ErrSessionActive is returned by Start when a session is already open.
	ErrSessionActive = errors.New("camera: session already active")
)
