package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"
)

// fakeClock hands out tickers and timers driven by the test.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{period: d, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// active returns the tickers that have not been stopped.
func (c *fakeClock) active() []*fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTicker
	for _, t := range c.tickers {
		if !t.isStopped() {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// fireTimers runs every pending one-shot timer.
func (c *fakeClock) fireTimers() int {
	c.mu.Lock()
	pending := c.timers
	c.timers = nil
	c.mu.Unlock()

	n := 0
	for _, t := range pending {
		if t.fire() {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	period time.Duration
	ch     chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeTimer struct {
	d time.Duration
	f func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (t *fakeTimer) fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
	return true
}

// recordingDisplay records every display call.
type recordingDisplay struct {
	mu        sync.Mutex
	countdown []int
	cleared   int
	manual    []bool
	pulse     []bool
}

func (d *recordingDisplay) ShowCountdown(seconds int) {
	d.mu.Lock()
	d.countdown = append(d.countdown, seconds)
	d.mu.Unlock()
}

func (d *recordingDisplay) ClearCountdown() {
	d.mu.Lock()
	d.cleared++
	d.mu.Unlock()
}

func (d *recordingDisplay) SetManualControlVisible(visible bool) {
	d.mu.Lock()
	d.manual = append(d.manual, visible)
	d.mu.Unlock()
}

func (d *recordingDisplay) SetPulse(active bool) {
	d.mu.Lock()
	d.pulse = append(d.pulse, active)
	d.mu.Unlock()
}

func (d *recordingDisplay) countdowns() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.countdown...)
}

func (d *recordingDisplay) lastManual() (bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.manual) == 0 {
		return false, false
	}
	return d.manual[len(d.manual)-1], true
}

func (d *recordingDisplay) lastPulse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pulse) == 0 {
		return false
	}
	return d.pulse[len(d.pulse)-1]
}

// recordingSink collects submitted events.
type recordingSink struct {
	events chan Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan Event, 64)}
}

func (s *recordingSink) Submit(ctx context.Context, ev Event) {
	s.events <- ev
}

func (s *recordingSink) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// blockingSink never returns until released.
type blockingSink struct {
	release chan struct{}
	entered chan struct{}
}

func (s *blockingSink) Submit(ctx context.Context, ev Event) {
	s.entered <- struct{}{}
	<-s.release
}

type stubSource struct {
	err error
}

func (s stubSource) Frame() (image.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 3)), nil
}

var errCameraGone = errors.New("camera gone")

// harness runs a scheduler on a fake clock.
type harness struct {
	t       *testing.T
	clock   *fakeClock
	display *recordingDisplay
	sink    *recordingSink
	sched   *Scheduler
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, source FrameSource, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		clock:   newFakeClock(),
		display: &recordingDisplay{},
		sink:    newRecordingSink(),
	}
	base := []Option{WithClock(h.clock), WithDisplay(h.display)}
	h.sched = New(source, h.sink, append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.sched.Run(ctx)

	select {
	case <-h.sched.Started():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not start")
	}

	t.Cleanup(func() {
		cancel()
		<-h.sched.Done()
	})
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

// tick delivers one tick to the single active ticker and waits until the
// scheduler has handled it.
func (h *harness) tick() {
	h.t.Helper()

	active := h.clock.active()
	if len(active) != 1 {
		h.t.Fatalf("active tickers = %d, want 1", len(active))
	}

	select {
	case active[0].ch <- h.clock.Now():
	case <-time.After(time.Second):
		h.t.Fatal("tick not received")
	}
	h.sync()
}

func (h *harness) sync() State {
	h.t.Helper()
	st, err := h.sched.Snapshot(h.ctx())
	if err != nil {
		h.t.Fatalf("Snapshot: %v", err)
	}
	return st
}

// waitEvents waits for n submitted events.
func (h *harness) waitEvents(n int) []Event {
	h.t.Helper()
	var out []Event
	deadline := time.After(time.Second)
	for len(out) < n {
		select {
		case ev := <-h.sink.events:
			out = append(out, ev)
		case <-deadline:
			h.t.Fatalf("got %d events, want %d", len(out), n)
		}
	}
	return out
}
