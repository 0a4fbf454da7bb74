package perception

import "errors"

// Error taxonomy. None of these is fatal: each degrades one feature and is
// reported to the user.
var (
	// ErrCameraAccess is returned when the camera cannot be opened or read.
	ErrCameraAccess = errors.New("perception: camera unavailable")

	// ErrNoFrame is returned when the camera has not produced a frame yet.
	ErrNoFrame = errors.New("perception: no frame available")

	// ErrRecognition is returned when the speech recognition session fails.
	ErrRecognition = errors.New("perception: speech recognition failed")

	// ErrBackendOffline is returned when detection is requested while the
	// backend health probe reported it offline.
	ErrBackendOffline = errors.New("perception: detection backend offline")
)
