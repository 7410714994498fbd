package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-gridscan/pkg/protocol"
)

// Default subscriber settings.
const (
	DefaultReconnectDelay = 2 * time.Second
	MaxReconnectDelay     = 30 * time.Second
	DefaultReadLimit      = 1 << 20
)

// SubscriberStats counts what the subscriber has seen.
type SubscriberStats struct {
	Connects  uint64 `json:"connects"`
	Delivered uint64 `json:"delivered"`
	Ignored   uint64 `json:"ignored"`
	Malformed uint64 `json:"malformed"`
}

// Subscriber is a Channel backed by a websocket push endpoint. Each text
// frame is a protocol.Message; messages whose event matches are decoded and
// their objects delivered in order. The connection is re-established after
// a drop until the context ends.
type Subscriber struct {
	url            string
	event          protocol.MessageType
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	logger         *slog.Logger

	connected atomic.Bool
	connects  atomic.Uint64
	delivered atomic.Uint64
	ignored   atomic.Uint64
	malformed atomic.Uint64
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithEvent sets the event name to listen for.
func WithEvent(event string) SubscriberOption {
	return func(s *Subscriber) {
		if event != "" {
			s.event = protocol.MessageType(event)
		}
	}
}

// WithReconnectDelay sets the initial delay between reconnect attempts.
// Zero disables reconnecting.
func WithReconnectDelay(d time.Duration) SubscriberOption {
	return func(s *Subscriber) { s.reconnectDelay = d }
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) SubscriberOption {
	return func(s *Subscriber) { s.dialer = d }
}

// WithSubscriberLogger sets the structured logger.
func WithSubscriberLogger(l *slog.Logger) SubscriberOption {
	return func(s *Subscriber) { s.logger = l }
}

// NewSubscriber creates a subscriber for the websocket endpoint at url.
func NewSubscriber(url string, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		url:            url,
		event:          protocol.TypeResults,
		reconnectDelay: DefaultReconnectDelay,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connected reports whether a connection is currently open.
func (s *Subscriber) Connected() bool {
	return s.connected.Load()
}

// Stats returns a snapshot of the counters.
func (s *Subscriber) Stats() SubscriberStats {
	return SubscriberStats{
		Connects:  s.connects.Load(),
		Delivered: s.delivered.Load(),
		Ignored:   s.ignored.Load(),
		Malformed: s.malformed.Load(),
	}
}

// Run delivers records to h until ctx is done. With reconnects disabled it
// returns the first connection error.
func (s *Subscriber) Run(ctx context.Context, h Handler) error {
	delay := s.reconnectDelay
	for {
		err := s.session(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.reconnectDelay <= 0 {
			return err
		}

		if err == nil {
			delay = s.reconnectDelay
		}
		s.logger.Warn("results channel lost, reconnecting", "url", s.url, "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, MaxReconnectDelay)
	}
}

// session runs one connection. A nil error means the connection was open
// and then dropped.
func (s *Subscriber) session(ctx context.Context, h Handler) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	conn.SetReadLimit(DefaultReadLimit)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	s.connected.Store(true)
	defer s.connected.Store(false)
	s.connects.Add(1)
	s.logger.Info("results channel connected", "url", s.url)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			s.logger.Debug("results read failed", "error", err)
			return nil
		}
		s.handle(data, h)
	}
}

func (s *Subscriber) handle(data []byte, h Handler) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.malformed.Add(1)
		s.logger.Warn("malformed results message", "error", err)
		return
	}
	if msg.Type != s.event {
		s.ignored.Add(1)
		return
	}

	var payload protocol.ResultsData
	if err := msg.ParseData(&payload); err != nil {
		s.malformed.Add(1)
		s.logger.Warn("malformed results payload", "error", err)
		return
	}

	recs, err := DecodeObjects(payload.Objects)
	if err != nil {
		s.malformed.Add(1)
		if errors.Is(err, ErrNoObjects) {
			s.logger.Warn("results message without objects")
		} else {
			s.logger.Warn("undecodable results objects", "error", err)
		}
		return
	}

	for _, rec := range recs {
		s.delivered.Add(1)
		h(rec)
	}
}
