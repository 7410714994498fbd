// Package source provides the frames the capture scheduler samples: a local
// webcam through OpenCV, a robot camera over WebRTC, or a still image file.
package source

import (
	"context"
	"errors"
	"image"
)

// Source kinds.
const (
	KindWebcam = "webcam"
	KindWebRTC = "webrtc"
	KindStill  = "still"
)

// Sentinel errors for common conditions.
var (
	// ErrNoFrame is returned when no frame is available yet.
	ErrNoFrame = errors.New("source: no frame available")

	// ErrNotOpen is returned when Frame is called before Open.
	ErrNotOpen = errors.New("source: not open")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("source: closed")

	// ErrUnknownSource is returned by New for an unrecognized kind.
	ErrUnknownSource = errors.New("source: unknown source kind")
)

// Source is a live video source. Frame returns the current frame without
// blocking on the device for longer than one read.
type Source interface {
	// Open acquires the device or stream.
	Open(ctx context.Context) error

	// Frame returns the current frame.
	Frame() (image.Image, error)

	// Dimensions returns the frame size, or zeros before the first frame.
	Dimensions() (width, height int)

	// Kind names the source.
	Kind() string

	// Close releases the device or stream.
	Close() error
}
