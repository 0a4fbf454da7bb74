package detect

import (
	"errors"
	"fmt"
)

// ErrEmptyFrame is returned when Detect is called without image data.
var ErrEmptyFrame = errors.New("detect: empty frame")

// DetectionError is returned when a backend call fails, either on the
// network or with a non-success HTTP status.
type DetectionError struct {
	// Op is the endpoint that failed ("health" or "detect").
	Op string

	// StatusCode is the HTTP status, 0 for network failures.
	StatusCode int

	// Message is the backend's error message, if it sent one.
	Message string

	// RequestID is the X-Request-ID sent with the request.
	RequestID string

	// Err is the underlying error for network failures.
	Err error
}

// Error implements the error interface.
func (e *DetectionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("detect [%s]: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("detect [%s]: HTTP %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("detect [%s]: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *DetectionError) Unwrap() error {
	return e.Err
}

// IsServerError returns true for HTTP 5xx responses.
func (e *DetectionError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsNetwork returns true when no HTTP response was received.
func (e *DetectionError) IsNetwork() bool {
	return e.StatusCode == 0
}
