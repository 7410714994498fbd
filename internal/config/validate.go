package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/teslashibe/go-gridscan/pkg/capture"
)

var (
	validSources = map[string]bool{"webcam": true, "webrtc": true, "still": true}
	validFormats = map[string]bool{"png": true, "jpeg": true}
	validLevels  = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
)

// Validate checks configuration correctness and reports every problem
// found, joined. It performs declarative validation only and does not
// mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Server.Port == "" {
		add(fmt.Errorf("server.port is required"))
	}
	if !validLevels[cfg.Log.Level] {
		add(fmt.Errorf("log.level %q must be debug, info, warn or error", cfg.Log.Level))
	}

	// camera
	if !validSources[cfg.Camera.Source] {
		add(fmt.Errorf("camera.source %q must be webcam, webrtc or still", cfg.Camera.Source))
	}
	switch cfg.Camera.Source {
	case "still":
		if cfg.Camera.Path == "" {
			add(fmt.Errorf("camera.path is required for the still source"))
		}
	case "webrtc":
		add(checkURL("camera.signalling_url", cfg.Camera.SignallingURL, "ws", "wss"))
	case "webcam":
		if cfg.Camera.Device < 0 {
			add(fmt.Errorf("camera.device must be >= 0"))
		}
	}

	// capture
	if _, _, err := capture.ParseSelector(cfg.Capture.Selector); err != nil {
		add(fmt.Errorf("capture.selector: %w", err))
	}
	if cfg.Capture.PulseMs < 0 {
		add(fmt.Errorf("capture.pulse_ms must be >= 0"))
	}
	if cfg.Capture.Format != "" && !validFormats[cfg.Capture.Format] {
		add(fmt.Errorf("capture.format %q must be png or jpeg", cfg.Capture.Format))
	}
	if cfg.Capture.Quality < 0 || cfg.Capture.Quality > 100 {
		add(fmt.Errorf("capture.quality must be between 0 and 100"))
	}
	if cfg.Capture.PreviewFPS < 0 || cfg.Capture.PreviewFPS > 30 {
		add(fmt.Errorf("capture.preview_fps must be between 0 and 30"))
	}

	// analyze
	add(checkURL("analyze.url", cfg.Analyze.URL, "http", "https"))

	// results
	add(checkURL("results.url", cfg.Results.URL, "ws", "wss"))
	if cfg.Results.ReconnectDelay < 0 {
		add(fmt.Errorf("results.reconnect_delay must be >= 0"))
	}

	return errors.Join(errs...)
}

func checkURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s %q has no host", field, raw)
			}
			return nil
		}
	}
	return fmt.Errorf("%s %q must use scheme %v", field, raw, schemes)
}
