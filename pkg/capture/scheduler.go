package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Stats counts scheduler activity.
type Stats struct {
	TimerCaptures  uint64 `json:"timer_captures"`
	ManualCaptures uint64 `json:"manual_captures"`
	Skipped        uint64 `json:"skipped"`
}

// command is a request executed on the scheduler goroutine.
type command struct {
	run   func() error
	reply chan error
}

// Scheduler runs the capture state machine. All events (ticks, mode
// changes, manual triggers) are handled one at a time on the goroutine that
// calls Run, so the state needs no locking.
type Scheduler struct {
	source  FrameSource
	sink    Sink
	display Display
	clock   Clock
	pulser  *Pulser
	logger  *slog.Logger

	pulseDuration time.Duration
	initialMode   Mode
	initialIvl    int

	cmds    chan command
	started chan struct{}
	done    chan struct{}
	runOnce sync.Once

	// owned by the Run goroutine
	state     State
	ticker    Ticker
	tickerGen uint64
	submitCtx context.Context

	timerCaptures  atomic.Uint64
	manualCaptures atomic.Uint64
	skipped        atomic.Uint64
	submissions    sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithDisplay sets the countdown surface.
func WithDisplay(d Display) Option {
	return func(s *Scheduler) { s.display = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithPulseDuration sets how long the capture-feedback pulse lasts.
func WithPulseDuration(d time.Duration) Option {
	return func(s *Scheduler) { s.pulseDuration = d }
}

// WithInitialMode sets the mode entered when Run starts. The default is
// automatic every 5 seconds.
func WithInitialMode(mode Mode, interval int) Option {
	return func(s *Scheduler) {
		s.initialMode = mode
		s.initialIvl = interval
	}
}

// New creates a scheduler. source may be nil, in which case every capture
// is skipped and logged.
func New(source FrameSource, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:        source,
		sink:          sink,
		display:       nopDisplay{},
		clock:         RealClock{},
		logger:        slog.Default(),
		pulseDuration: DefaultPulseDuration,
		initialMode:   ModeAutomatic,
		initialIvl:    5,
		cmds:          make(chan command),
		started:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.display == nil {
		s.display = nopDisplay{}
	}
	s.pulser = NewPulser(s.display, s.clock, s.pulseDuration)
	return s
}

// Run enters the initial mode and processes events until ctx is cancelled.
// It may be called once. In-flight submissions are not cancelled when Run
// returns.
func (s *Scheduler) Run(ctx context.Context) error {
	err := ErrSchedulerStopped
	s.runOnce.Do(func() { err = s.run(ctx) })
	return err
}

func (s *Scheduler) run(ctx context.Context) error {
	defer close(s.done)

	s.submitCtx = context.WithoutCancel(ctx)

	next, effects, err := Start(s.initialMode, s.initialIvl)
	if err != nil {
		return fmt.Errorf("initial mode: %w", err)
	}
	s.apply(next, effects)
	close(s.started)

	s.logger.Info("scheduler started",
		"mode", s.state.Mode,
		"interval_s", s.state.Interval,
		"pulse", s.pulser.Duration(),
	)

	for {
		var tickC <-chan time.Time
		if s.ticker != nil {
			tickC = s.ticker.C()
		}

		select {
		case <-ctx.Done():
			s.teardown()
			return ctx.Err()

		case <-tickC:
			s.apply(s.state.Tick(s.tickerGen))

		case cmd := <-s.cmds:
			cmd.reply <- cmd.run()
		}
	}
}

func (s *Scheduler) teardown() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.state.TimerArmed = false
	s.display.ClearCountdown()
	s.logger.Info("scheduler stopped")
}

// apply commits next and executes effects in order.
func (s *Scheduler) apply(next State, effects []Effect) {
	s.state = next
	for _, e := range effects {
		switch e := e.(type) {
		case CancelTimer:
			if s.ticker != nil && s.tickerGen == e.Generation {
				s.ticker.Stop()
				s.ticker = nil
			}
		case ArmTimer:
			if s.ticker != nil {
				// unreachable from State transitions, which always cancel first
				s.ticker.Stop()
			}
			s.ticker = s.clock.NewTicker(e.Period)
			s.tickerGen = e.Generation
		case ShowCountdown:
			s.display.ShowCountdown(e.Seconds)
		case ClearCountdown:
			s.display.ClearCountdown()
		case ShowManualControl:
			s.display.SetManualControlVisible(e.Visible)
		case EmitCapture:
			s.emit(e.Trigger)
		case Pulse:
			s.pulser.Fire()
		}
	}
}

// emit grabs the current frame and hands it to the sink without waiting.
func (s *Scheduler) emit(trigger Trigger) {
	if s.source == nil {
		s.skipped.Add(1)
		s.logger.Warn("capture skipped", "trigger", trigger, "error", ErrNoFrameSource)
		return
	}

	frame, err := s.source.Frame()
	if err != nil {
		s.skipped.Add(1)
		s.logger.Warn("capture skipped", "trigger", trigger, "error", err)
		return
	}

	ev := Event{
		ID:          uuid.New(),
		Frame:       frame,
		TriggeredBy: trigger,
		At:          s.clock.Now(),
	}

	if trigger == TriggerTimer {
		s.timerCaptures.Add(1)
	} else {
		s.manualCaptures.Add(1)
	}
	s.logger.Debug("capture", "id", ev.ID, "trigger", trigger)

	if s.sink == nil {
		return
	}
	s.submissions.Add(1)
	go func() {
		defer s.submissions.Done()
		s.sink.Submit(s.submitCtx, ev)
	}()
}

// do runs fn on the scheduler goroutine. ctx bounds only the wait for the
// loop to accept the command; once accepted, fn has been applied and its
// result is returned.
func (s *Scheduler) do(ctx context.Context, fn func() error) error {
	cmd := command{run: fn, reply: make(chan error, 1)}

	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-cmd.reply
}

// SetMode switches mode. interval is in seconds and ignored for ModeManual.
func (s *Scheduler) SetMode(ctx context.Context, mode Mode, interval int) error {
	return s.do(ctx, func() error {
		next, effects, err := s.state.SetMode(mode, interval)
		if err != nil {
			return err
		}
		s.apply(next, effects)
		s.logger.Info("mode changed", "mode", mode, "interval_s", next.Interval)
		return nil
	})
}

// SetSelector switches mode from a dashboard selector value.
func (s *Scheduler) SetSelector(ctx context.Context, selector string) error {
	mode, interval, err := ParseSelector(selector)
	if err != nil {
		return err
	}
	return s.SetMode(ctx, mode, interval)
}

// Trigger performs a manual capture. It is valid in any mode.
func (s *Scheduler) Trigger(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.apply(s.state.Trigger())
		return nil
	})
}

// Snapshot returns the current state. Because it runs on the scheduler
// goroutine, every event received before it has been fully handled.
func (s *Scheduler) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := s.do(ctx, func() error {
		st = s.state
		return nil
	})
	return st, err
}

// Started is closed once the initial mode has been applied.
func (s *Scheduler) Started() <-chan struct{} {
	return s.started
}

// Done is closed when Run returns.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// WaitSubmissions blocks until every dispatched submission has returned.
func (s *Scheduler) WaitSubmissions() {
	s.submissions.Wait()
}

// Stats returns capture counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		TimerCaptures:  s.timerCaptures.Load(),
		ManualCaptures: s.manualCaptures.Load(),
		Skipped:        s.skipped.Load(),
	}
}
