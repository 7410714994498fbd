// Package app wires the capture scheduler, frame source, analysis sink,
// result feed and dashboard into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-gridscan/internal/config"
	"github.com/teslashibe/go-gridscan/internal/httpc"
	"github.com/teslashibe/go-gridscan/internal/log"
	"github.com/teslashibe/go-gridscan/pkg/capture"
	"github.com/teslashibe/go-gridscan/pkg/feed"
	"github.com/teslashibe/go-gridscan/pkg/sink"
	"github.com/teslashibe/go-gridscan/pkg/source"
	"github.com/teslashibe/go-gridscan/pkg/web"
)

// App is the gridscan application orchestrator.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	source      source.Source
	sourceReady bool

	sink       *sink.HTTPSink
	scheduler  *capture.Scheduler
	feed       *feed.Feed
	subscriber feed.Channel
	web        *web.Server

	// overridable in tests
	newSource func(config.CameraConfig, *slog.Logger) (source.Source, error)
}

// Option configures an App.
type Option func(*App)

// WithSource replaces the configured frame source.
func WithSource(src source.Source) Option {
	return func(a *App) {
		a.newSource = func(config.CameraConfig, *slog.Logger) (source.Source, error) { return src, nil }
	}
}

// WithChannel replaces the results subscriber.
func WithChannel(ch feed.Channel) Option {
	return func(a *App) { a.subscriber = ch }
}

// New validates cfg and builds every component. Nothing is opened yet.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := config.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	config.Normalize(&cfg)

	a := &App{
		cfg:       cfg,
		logger:    log.Component("app"),
		newSource: source.New,
	}
	for _, opt := range opts {
		opt(a)
	}

	src, err := a.newSource(cfg.Camera, log.Component("source"))
	if err != nil {
		return nil, err
	}
	a.source = src

	a.sink = sink.NewHTTP(cfg.Analyze.URL,
		sink.WithClient(httpc.NewClient(cfg.Analyze.Timeout)),
		sink.WithFormat(cfg.Capture.Format, cfg.Capture.Quality),
		sink.WithLogger(log.Component("sink")))

	a.web = web.NewServer(web.Config{
		Port:      cfg.Server.Port,
		StaticDir: cfg.Server.StaticDir,
		Logger:    log.Component("web"),
		AccessLog: cfg.Log.Level == "debug",
	})

	a.feed = feed.New()
	a.feed.OnAppend(a.onRow)

	if a.subscriber == nil {
		a.subscriber = feed.NewSubscriber(cfg.Results.URL,
			feed.WithEvent(cfg.Results.Event),
			feed.WithReconnectDelay(cfg.Results.ReconnectDelay),
			feed.WithSubscriberLogger(log.Component("feed")))
	}
	if cs, ok := a.subscriber.(web.ChannelStatus); ok {
		a.web.SetChannel(cs)
	}
	return a, nil
}

// Init opens the frame source and builds the scheduler. A source that
// fails to open is logged and the scheduler starts in manual mode with
// captures skipped until a frame is available.
func (a *App) Init(ctx context.Context) error {
	mode, interval, err := capture.ParseSelector(a.cfg.Capture.Selector)
	if err != nil {
		return err
	}

	if err := a.source.Open(ctx); err != nil {
		a.logger.Error("frame source unavailable, starting in manual mode",
			"source", a.source.Kind(), "error", err)
		mode = capture.ModeManual
	} else {
		a.sourceReady = true
		w, h := a.source.Dimensions()
		a.web.SetFrameSize(w, h)
		a.logger.Info("frame source open", "source", a.source.Kind(), "width", w, "height", h)
	}
	a.web.SetSource(a.source.Kind(), a.sourceReady)

	a.scheduler = capture.New(a.source, a.sink,
		capture.WithDisplay(a.web),
		capture.WithLogger(log.Component("capture")),
		capture.WithPulseDuration(a.cfg.Capture.Pulse()),
		capture.WithInitialMode(mode, interval))
	a.web.Attach(a.scheduler, a.feed)
	return nil
}

// Run starts every component and blocks until ctx is done. It returns the
// first component error other than cancellation.
func (a *App) Run(ctx context.Context) error {
	if a.scheduler == nil {
		return errors.New("app: Run before Init")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			a.logger.Error("component stopped", "component", name, "error", err)
			errOnce.Do(func() {
				firstErr = fmt.Errorf("%s: %w", name, err)
				cancel()
			})
		}()
	}

	run("web", a.web.Run)
	run("capture", a.scheduler.Run)
	run("feed", func(ctx context.Context) error { return a.feed.Attach(ctx, a.subscriber) })
	if a.sourceReady {
		run("preview", func(ctx context.Context) error {
			return source.Preview(ctx, a.source, a.cfg.Capture.PreviewFPS, a.onPreview)
		})
	}

	a.logger.Info("gridscan running",
		"dashboard", "http://localhost:"+a.cfg.Server.Port,
		"selector", a.cfg.Capture.Selector,
		"analyze", a.cfg.Analyze.URL,
		"results", a.cfg.Results.URL)

	<-ctx.Done()
	wg.Wait()
	return firstErr
}

// Shutdown waits for in-flight submissions and releases the source.
func (a *App) Shutdown() {
	if a.scheduler != nil {
		a.scheduler.WaitSubmissions()
		st := a.scheduler.Stats()
		a.logger.Info("captures",
			"timer", st.TimerCaptures,
			"manual", st.ManualCaptures,
			"skipped", st.Skipped)
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.Warn("closing source", "error", err)
		}
	}
	sent := a.sink.Stats()
	a.logger.Info("goodbye", "sent", sent.Sent, "failed", sent.Failed, "rows", a.feed.Len())
}

// Feed returns the result feed.
func (a *App) Feed() *feed.Feed { return a.feed }

// Scheduler returns the capture scheduler. It is nil before Init.
func (a *App) Scheduler() *capture.Scheduler { return a.scheduler }

// Web returns the dashboard server.
func (a *App) Web() *web.Server { return a.web }

func (a *App) onRow(row feed.Row) {
	a.logger.Info("result", "seq", row.Seq, "name", row.Name, "status", row.Status)
	a.web.AddRow(row)
}

func (a *App) onPreview(img image.Image) {
	a.web.SendFrame(img)
}
