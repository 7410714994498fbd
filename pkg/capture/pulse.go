package capture

import (
	"sync/atomic"
	"time"
)

// DefaultPulseDuration is how long the capture-feedback pulse stays on.
const DefaultPulseDuration = 100 * time.Millisecond

// Pulser drives the capture-feedback pulse on a Display. Each Fire sets the
// pulse and schedules its own revert; overlapping pulses revert
// independently and revert is always a plain set-to-neutral.
type Pulser struct {
	display  Display
	clock    Clock
	duration time.Duration

	fired    atomic.Uint64
	reverted atomic.Uint64
}

// NewPulser creates a pulser. A non-positive duration uses
// DefaultPulseDuration.
func NewPulser(display Display, clock Clock, duration time.Duration) *Pulser {
	if display == nil {
		display = nopDisplay{}
	}
	if clock == nil {
		clock = RealClock{}
	}
	if duration <= 0 {
		duration = DefaultPulseDuration
	}
	return &Pulser{display: display, clock: clock, duration: duration}
}

// Fire turns the pulse on and arms its revert.
func (p *Pulser) Fire() {
	p.fired.Add(1)
	p.display.SetPulse(true)
	p.clock.AfterFunc(p.duration, func() {
		p.reverted.Add(1)
		p.display.SetPulse(false)
	})
}

// Duration returns the pulse length.
func (p *Pulser) Duration() time.Duration {
	return p.duration
}

// Pending returns the number of pulses not yet reverted.
func (p *Pulser) Pending() uint64 {
	reverted := p.reverted.Load()
	return p.fired.Load() - reverted
}
