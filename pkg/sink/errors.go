package sink

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoImage is returned when an event carries no frame.
	ErrNoImage = errors.New("sink: no image")

	// ErrUnsupportedFormat is returned for image formats other than png and jpeg.
	ErrUnsupportedFormat = errors.New("sink: unsupported image format")
)

// StatusError is a non-2xx response from the analysis endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("sink: analyze returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("sink: analyze returned %d", e.StatusCode)
}
