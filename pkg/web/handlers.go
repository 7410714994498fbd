package web

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-gridscan/pkg/capture"
	"github.com/teslashibe/go-gridscan/pkg/feed"
	"github.com/teslashibe/go-gridscan/pkg/hub"
	"github.com/teslashibe/go-gridscan/pkg/protocol"
)

// requestTimeout bounds how long a handler waits on the scheduler.
const requestTimeout = 2 * time.Second

// handleStatus returns the view, refreshed from the scheduler.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	ctrl, _ := s.attached()
	if ctrl == nil {
		return c.JSON(s.View())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	st, err := ctrl.Snapshot(ctx)
	if err != nil {
		return c.JSON(s.View())
	}
	return c.JSON(s.syncState(st))
}

// handleMode applies a selector value.
func (s *Server) handleMode(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	ctrl, _ := s.attached()
	if ctrl == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": errNotAttached.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	if err := ctrl.SetSelector(ctx, req.Selector); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	st, err := ctrl.Snapshot(ctx)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	v := s.syncState(st)
	s.broadcast(s.statusHub, protocol.TypeStatus, v)
	return c.JSON(v)
}

// handleCapture requests a manual capture. It is accepted in either mode.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	ctrl, _ := s.attached()
	if ctrl == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": errNotAttached.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	if err := ctrl.Trigger(ctx); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accepted": true,
	})
}

// handleResults returns the rows in order, or with ?since=N only those
// after row N.
func (s *Server) handleResults(c *fiber.Ctx) error {
	since := c.QueryInt("since", 0)
	if since < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "since must be >= 0",
		})
	}

	_, results := s.attached()
	rows := []feed.Row{}
	if results != nil {
		if since > 0 {
			rows = append(rows, results.Since(since)...)
		} else {
			rows = append(rows, results.Rows()...)
		}
	}
	return c.JSON(fiber.Map{
		"columns": feed.Columns,
		"rows":    rows,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrInvalidSelector), errors.Is(err, capture.ErrInvalidInterval):
		return fiber.StatusBadRequest
	case errors.Is(err, capture.ErrSchedulerStopped), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// handleStatusWS streams view changes, starting with the current view.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	greeting, err := encode(protocol.TypeStatus, s.View())
	if err != nil {
		return
	}
	s.serveClient(s.statusHub, c, greeting)
}

// handleResultsWS streams every row after ?since=N (default 0), then
// follows new rows. A reconnecting viewer passes the last seq it showed.
func (s *Server) handleResultsWS(c *websocket.Conn) {
	since, err := strconv.Atoi(c.Query("since", "0"))
	if err != nil || since < 0 {
		since = 0
	}
	s.resultsTail.Serve(c, since)
}

// handleCameraWS streams binary JPEG preview frames.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.serveClient(s.cameraHub, c)
}

func (s *Server) serveClient(h *hub.Hub, c *websocket.Conn, greeting ...hub.Message) {
	client := hub.NewClient(h, c, greeting...)
	if client == nil {
		return
	}
	client.Run()
}
