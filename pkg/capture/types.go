// Package capture decides when a still frame is captured and submitted for
// analysis. It alternates between a visible countdown and a
// capture-and-submit action, in automatic (interval-driven) or manual
// (button-driven) mode.
//
// The state machine in state.go is pure: every transition returns the next
// State plus a list of effects. Scheduler executes those effects against a
// Clock, a Display, a FrameSource and a Sink.
package capture

import (
	"context"
	"image"
	"time"

	"github.com/google/uuid"
)

// Mode is the scheduler's operating mode.
type Mode int

const (
	// ModeManual runs no timer; captures happen only on Trigger.
	ModeManual Mode = iota
	// ModeAutomatic counts down from Interval and captures when it
	// reaches 0.
	ModeAutomatic
)

func (m Mode) String() string {
	switch m {
	case ModeAutomatic:
		return "automatic"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Trigger identifies what caused a capture.
type Trigger int

const (
	TriggerTimer Trigger = iota
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerTimer:
		return "timer"
	case TriggerManual:
		return "manual_button"
	default:
		return "unknown"
	}
}

// Event is one capture handed to the Sink. The scheduler does not keep a
// reference to Frame once the event is dispatched.
type Event struct {
	ID          uuid.UUID
	Frame       image.Image
	TriggeredBy Trigger
	At          time.Time
}

// FrameSource supplies the current video frame. It is called only at
// capture time.
type FrameSource interface {
	Frame() (image.Image, error)
}

// Sink receives capture events. Submit runs on its own goroutine and must
// absorb its own failures.
type Sink interface {
	Submit(ctx context.Context, ev Event)
}

// Display is the countdown surface owned by the scheduler.
type Display interface {
	ShowCountdown(seconds int)
	ClearCountdown()
	SetManualControlVisible(visible bool)
	SetPulse(active bool)
}

type nopDisplay struct{}

func (nopDisplay) ShowCountdown(int)            {}
func (nopDisplay) ClearCountdown()              {}
func (nopDisplay) SetManualControlVisible(bool) {}
func (nopDisplay) SetPulse(bool)                {}
