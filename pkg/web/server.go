// Package web serves the operator dashboard: mode selector, manual trigger,
// countdown and pulse feedback, the results table and a live preview.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-gridscan/pkg/capture"
	"github.com/teslashibe/go-gridscan/pkg/feed"
	"github.com/teslashibe/go-gridscan/pkg/hub"
	"github.com/teslashibe/go-gridscan/pkg/protocol"
)

// previewQuality is the JPEG quality of live preview frames.
const previewQuality = 70

// Controller is the scheduler surface the dashboard drives.
type Controller interface {
	SetSelector(ctx context.Context, selector string) error
	Trigger(ctx context.Context) error
	Snapshot(ctx context.Context) (capture.State, error)
}

// Results is the row store the dashboard reads.
type Results interface {
	Rows() []feed.Row
	Since(seq int) []feed.Row
	Len() int
}

// ChannelStatus reports the health of the results push channel.
type ChannelStatus interface {
	Connected() bool
	Stats() feed.SubscriberStats
}

// Config holds server settings.
type Config struct {
	Port      string
	StaticDir string
	Logger    *slog.Logger

	// AccessLog enables per-request logging.
	AccessLog bool
}

// Server is the dashboard. It implements capture.Display.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	view   View
	viewMu sync.RWMutex

	ctrlMu     sync.RWMutex
	controller Controller
	results    Results
	channel    ChannelStatus

	statusHub   *hub.Hub
	cameraHub   *hub.Hub
	resultsTail *hub.Tail
}

// NewServer creates the dashboard server.
func NewServer(cfg Config) *Server {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}

	s := &Server{
		port:      cfg.Port,
		logger:    l,
		statusHub: hub.New("status", l),
		cameraHub: hub.New("camera", l),
	}
	s.resultsTail = hub.NewTail("results", s.rowsAfter, l)

	app := fiber.New(fiber.Config{
		AppName:               "gridscan",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/mode", s.handleMode)
	api.Post("/capture", s.handleCapture)
	api.Get("/results", s.handleResults)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/results", websocket.New(s.handleResultsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Attach connects the scheduler and the result store.
func (s *Server) Attach(ctrl Controller, results Results) {
	s.ctrlMu.Lock()
	s.controller = ctrl
	s.results = results
	s.ctrlMu.Unlock()
}

// SetChannel connects the push channel whose health the status reports.
func (s *Server) SetChannel(ch ChannelStatus) {
	s.ctrlMu.Lock()
	s.channel = ch
	s.ctrlMu.Unlock()
}

func (s *Server) attached() (Controller, Results) {
	s.ctrlMu.RLock()
	defer s.ctrlMu.RUnlock()
	return s.controller, s.results
}

// Run listens on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("web: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go s.resultsTail.Run(ctx)

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	}
}

// View returns the current view state.
func (s *Server) View() View {
	s.viewMu.RLock()
	v := s.view
	s.viewMu.RUnlock()
	return s.withHealth(v)
}

// withHealth adds push channel and broadcast counters to v.
func (s *Server) withHealth(v View) View {
	s.ctrlMu.RLock()
	ch := s.channel
	s.ctrlMu.RUnlock()

	if ch != nil {
		v.ChannelConnected = ch.Connected()
		v.Channel = ch.Stats()
	}
	v.DroppedBroadcasts = s.statusHub.Dropped() + s.cameraHub.Dropped()
	return v
}

// update mutates the view and broadcasts the result.
func (s *Server) update(fn func(*View)) {
	s.viewMu.Lock()
	fn(&s.view)
	v := s.view
	s.viewMu.Unlock()

	s.broadcast(s.statusHub, protocol.TypeStatus, s.withHealth(v))
}

func (s *Server) broadcast(h *hub.Hub, t protocol.MessageType, v any) {
	msg, err := encode(t, v)
	if err != nil {
		s.logger.Error("encode broadcast", "event", t, "error", err)
		return
	}
	h.Broadcast(msg)
}

func encode(t protocol.MessageType, v any) (hub.Message, error) {
	m, err := protocol.NewMessage(t, v)
	if err != nil {
		return hub.Message{}, err
	}
	data, err := m.Bytes()
	if err != nil {
		return hub.Message{}, err
	}
	return hub.NewJSONMessage(data), nil
}

// ShowCountdown implements capture.Display.
func (s *Server) ShowCountdown(seconds int) {
	s.update(func(v *View) {
		v.Countdown = seconds
		v.CountdownVisible = true
	})
}

// ClearCountdown implements capture.Display.
func (s *Server) ClearCountdown() {
	s.update(func(v *View) {
		v.Countdown = 0
		v.CountdownVisible = false
	})
}

// SetManualControlVisible implements capture.Display.
func (s *Server) SetManualControlVisible(visible bool) {
	s.update(func(v *View) {
		v.ManualControlVisible = visible
		if visible {
			v.Mode = capture.ModeManual.String()
		} else {
			v.Mode = capture.ModeAutomatic.String()
		}
	})
}

// SetPulse implements capture.Display.
func (s *Server) SetPulse(active bool) {
	s.update(func(v *View) { v.PulseActive = active })
}

// SetFrameSize records the source's frame dimensions.
func (s *Server) SetFrameSize(width, height int) {
	s.update(func(v *View) {
		v.FrameWidth = width
		v.FrameHeight = height
	})
}

// SetSource records which frame source is live.
func (s *Server) SetSource(kind string, ok bool) {
	s.update(func(v *View) {
		v.Source = kind
		v.SourceReady = ok
	})
}

// AddRow wakes results viewers after a row is appended. Viewers read rows
// from the store, so none is skipped however far behind a viewer is.
func (s *Server) AddRow(row feed.Row) {
	s.update(func(v *View) { v.Rows = row.Seq })
	s.resultsTail.Notify()
}

// rowsAfter encodes the stored rows after seq for a results viewer.
func (s *Server) rowsAfter(seq int) ([]hub.Message, int) {
	_, results := s.attached()
	if results == nil {
		return nil, seq
	}
	rows := results.Since(seq)
	msgs := make([]hub.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := encode(protocol.TypeRow, row)
		if err != nil {
			s.logger.Error("encode row", "seq", row.Seq, "error", err)
			return msgs, seq
		}
		msgs = append(msgs, msg)
		seq = row.Seq
	}
	return msgs, seq
}

// SendFrame JPEG-encodes img for preview viewers. Without viewers it does
// nothing.
func (s *Server) SendFrame(img image.Image) {
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewQuality}); err != nil {
		s.logger.Debug("preview encode failed", "error", err)
		return
	}
	s.cameraHub.BroadcastBinary(buf.Bytes())
}

// syncState copies scheduler state into the view.
func (s *Server) syncState(st capture.State) View {
	s.viewMu.Lock()
	s.view.Mode = st.Mode.String()
	s.view.Selector = capture.Selector(st.Mode, st.Interval)
	s.view.Interval = st.Interval
	v := s.view
	s.viewMu.Unlock()
	return s.withHealth(v)
}

var errNotAttached = errors.New("web: scheduler not attached")

var _ capture.Display = (*Server)(nil)
