package config

import "time"

// Normalize fills zero values left by a sparse YAML file.
// It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Capture.PulseMs == 0 {
		cfg.Capture.PulseMs = int(DefaultPulse / time.Millisecond)
	}
	if cfg.Capture.Format == "" {
		cfg.Capture.Format = "png"
	}
	if cfg.Capture.Quality == 0 {
		cfg.Capture.Quality = 85
	}
	if cfg.Results.Event == "" {
		cfg.Results.Event = DefaultResultsEvent
	}
	if cfg.Results.ReconnectDelay == 0 {
		cfg.Results.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Analyze.Timeout == 0 {
		cfg.Analyze.Timeout = 30 * time.Second
	}
}
