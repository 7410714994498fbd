package capture

import "errors"

var (
	// ErrInvalidInterval is returned when an automatic interval is not a
	// positive whole number of seconds.
	ErrInvalidInterval = errors.New("capture: interval must be a positive whole number of seconds")

	// ErrInvalidSelector is returned when a mode selector is neither
	// "manual" nor a number of milliseconds.
	ErrInvalidSelector = errors.New("capture: selector must be \"manual\" or an interval in milliseconds")

	// ErrSchedulerStopped is returned by commands sent after Run has exited.
	ErrSchedulerStopped = errors.New("capture: scheduler stopped")

	// ErrNoFrameSource is logged when a capture fires without a frame source.
	ErrNoFrameSource = errors.New("capture: no frame source")
)
