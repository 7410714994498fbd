package capture

import "time"

// TickPeriod is the countdown resolution.
const TickPeriod = time.Second

// State is the countdown state owned by one scheduler.
type State struct {
	Mode Mode

	// Interval is the automatic period in whole seconds. It is kept across a
	// switch to manual so the dashboard can offer it again.
	Interval int

	// Remaining counts down to 0 and then resets to Interval.
	// Meaningless while manual.
	Remaining int

	// TimerArmed reports whether a timer is active. At most one is.
	TimerArmed bool

	// Generation identifies the armed timer. It grows on every arm so ticks
	// from a cancelled timer can be told apart.
	Generation uint64
}

// Effect is a side-effect command produced by a transition.
type Effect interface {
	effect()
}

// ArmTimer starts a periodic timer identified by Generation.
type ArmTimer struct {
	Generation uint64
	Period     time.Duration
}

// CancelTimer stops the timer identified by Generation.
type CancelTimer struct {
	Generation uint64
}

// ShowCountdown displays the seconds remaining.
type ShowCountdown struct {
	Seconds int
}

// ClearCountdown hides the countdown.
type ClearCountdown struct{}

// ShowManualControl shows or hides the manual trigger control.
type ShowManualControl struct {
	Visible bool
}

// EmitCapture captures the current frame and hands it to the sink.
type EmitCapture struct {
	Trigger Trigger
}

// Pulse fires the capture-feedback pulse.
type Pulse struct{}

func (ArmTimer) effect()          {}
func (CancelTimer) effect()       {}
func (ShowCountdown) effect()     {}
func (ClearCountdown) effect()    {}
func (ShowManualControl) effect() {}
func (EmitCapture) effect()       {}
func (Pulse) effect()             {}

// Start builds the initial state for the configured default mode.
func Start(mode Mode, interval int) (State, []Effect, error) {
	return State{}.SetMode(mode, interval)
}

// SetMode switches mode. Any armed timer is cancelled before a new one is
// armed, including on an automatic-to-automatic interval change.
// interval is ignored for ModeManual.
func (s State) SetMode(mode Mode, interval int) (State, []Effect, error) {
	switch mode {
	case ModeManual:
		var effects []Effect
		if s.TimerArmed {
			effects = append(effects, CancelTimer{Generation: s.Generation})
		}
		effects = append(effects, ClearCountdown{}, ShowManualControl{Visible: true})

		s.Mode = ModeManual
		s.TimerArmed = false
		s.Remaining = 0
		return s, effects, nil

	case ModeAutomatic:
		if interval <= 0 {
			return s, nil, ErrInvalidInterval
		}

		var effects []Effect
		if s.TimerArmed {
			effects = append(effects, CancelTimer{Generation: s.Generation})
		}

		s.Mode = ModeAutomatic
		s.Interval = interval
		s.Remaining = interval
		s.Generation++
		s.TimerArmed = true

		effects = append(effects,
			ShowManualControl{Visible: false},
			ArmTimer{Generation: s.Generation, Period: TickPeriod},
			ShowCountdown{Seconds: s.Remaining},
		)
		return s, effects, nil

	default:
		return s, nil, ErrInvalidSelector
	}
}

// Tick advances the countdown by one second. Ticks are ignored in manual
// mode and when generation is not the armed timer's.
//
// A tick that finds Remaining at 0 shows 0, emits a timer capture, fires the
// pulse and resets Remaining to Interval. Any other tick shows Remaining and
// then decrements it, so "0" stays visible for exactly one tick and a capture
// lands every Interval+1 ticks.
func (s State) Tick(generation uint64) (State, []Effect) {
	if s.Mode != ModeAutomatic || !s.TimerArmed || generation != s.Generation {
		return s, nil
	}

	if s.Remaining > 0 {
		shown := s.Remaining
		s.Remaining--
		return s, []Effect{ShowCountdown{Seconds: shown}}
	}

	s.Remaining = s.Interval
	return s, []Effect{
		ShowCountdown{Seconds: 0},
		EmitCapture{Trigger: TriggerTimer},
		Pulse{},
	}
}

// Trigger performs an out-of-band capture. It is valid in either mode and
// never touches the timer.
func (s State) Trigger() (State, []Effect) {
	return s, []Effect{
		EmitCapture{Trigger: TriggerManual},
		Pulse{},
	}
}
