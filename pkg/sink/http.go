package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/teslashibe/go-gridscan/internal/httpc"
	"github.com/teslashibe/go-gridscan/pkg/capture"
)

// FormField is the form field carrying the image data URL.
const FormField = "image"

// maxBody bounds how much of a response is read.
const maxBody = 64 << 10

// Response is the analysis endpoint's acknowledgement.
type Response struct {
	Status string `json:"status"`
}

// Stats counts submissions.
type Stats struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

// HTTPSink posts each capture to the analysis endpoint as a form-encoded
// data URL. Results do not come back on this path; they arrive later on
// the results channel.
type HTTPSink struct {
	url     string
	client  *http.Client
	format  string
	quality int
	logger  *slog.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

// Option configures an HTTPSink.
type Option func(*HTTPSink)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(s *HTTPSink) { s.client = c }
}

// WithFormat sets the image format and JPEG quality.
func WithFormat(format string, quality int) Option {
	return func(s *HTTPSink) {
		s.format = format
		s.quality = quality
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *HTTPSink) { s.logger = l }
}

// NewHTTP creates a sink posting to target.
func NewHTTP(target string, opts ...Option) *HTTPSink {
	s := &HTTPSink{
		url:     target,
		client:  httpc.Client,
		format:  FormatPNG,
		quality: DefaultJPEGQuality,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit implements capture.Sink. Failures are logged and counted; the
// frame is not retried.
func (s *HTTPSink) Submit(ctx context.Context, ev capture.Event) {
	resp, err := s.Post(ctx, ev)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("submission failed",
			"id", ev.ID,
			"trigger", ev.TriggeredBy,
			"error", err)
		return
	}
	s.sent.Add(1)
	s.logger.Info("frame submitted",
		"id", ev.ID,
		"trigger", ev.TriggeredBy,
		"status", resp.Status)
}

// Post encodes the event's frame and posts it, returning the parsed
// acknowledgement.
func (s *HTTPSink) Post(ctx context.Context, ev capture.Event) (*Response, error) {
	dataURL, err := Encode(ev.Frame, s.format, s.quality)
	if err != nil {
		return nil, err
	}

	resp, err := httpc.PostForm(ctx, s.client, s.url, url.Values{FormField: {dataURL}})
	if err != nil {
		return nil, fmt.Errorf("sink: post: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("sink: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out Response
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			s.logger.Debug("non-JSON analyze response", "body", string(body))
			out.Status = string(body)
		}
	}
	return &out, nil
}

// Stats returns submission counters.
func (s *HTTPSink) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Failed: s.failed.Load()}
}
