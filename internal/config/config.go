// Package config loads go-gridscan configuration from a YAML file,
// environment variables and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultPort           = "8080"
	DefaultSelector       = "5000"
	DefaultPulse          = 100 * time.Millisecond
	DefaultAnalyzeURL     = "http://localhost:3100/analyze"
	DefaultResultsURL     = "ws://localhost:3100/ws/results"
	DefaultResultsEvent   = "results_channel"
	DefaultReconnectDelay = 2 * time.Second
)

// Config holds all configuration for the gridscan application.
// Flag parsing is done in cmd/gridscan/main.go; this struct is data only.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Camera  CameraConfig  `yaml:"camera"`
	Capture CaptureConfig `yaml:"capture"`
	Analyze AnalyzeConfig `yaml:"analyze"`
	Results ResultsConfig `yaml:"results"`
}

// ---- SERVER ----

type ServerConfig struct {
	Port      string `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ---- CAMERA ----

type CameraConfig struct {
	// Source selects the frame source: "webcam", "webrtc" or "still".
	Source string `yaml:"source"`

	// webcam
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// still
	Path string `yaml:"path"`

	// webrtc
	SignallingURL string `yaml:"signalling_url"`
	Producer      string `yaml:"producer"`
}

// ---- CAPTURE ----

type CaptureConfig struct {
	// Selector is the initial mode: interval in milliseconds or "manual".
	Selector   string `yaml:"selector"`
	PulseMs    int    `yaml:"pulse_ms"`
	Format     string `yaml:"format"`  // png, jpeg
	Quality    int    `yaml:"quality"` // jpeg only
	PreviewFPS int    `yaml:"preview_fps"`
}

// Pulse returns the capture-feedback duration.
func (c CaptureConfig) Pulse() time.Duration {
	return time.Duration(c.PulseMs) * time.Millisecond
}

// ---- ANALYZE ----

type AnalyzeConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ---- RESULTS ----

type ResultsConfig struct {
	URL            string        `yaml:"url"`
	Event          string        `yaml:"event"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// Default returns sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: DefaultPort, StaticDir: "./web"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Camera: CameraConfig{
			Source:   "webcam",
			Width:    1280,
			Height:   720,
			Producer: "reachymini",
		},
		Capture: CaptureConfig{
			Selector:   DefaultSelector,
			PulseMs:    int(DefaultPulse / time.Millisecond),
			Format:     "png",
			Quality:    85,
			PreviewFPS: 5,
		},
		Analyze: AnalyzeConfig{URL: DefaultAnalyzeURL, Timeout: 30 * time.Second},
		Results: ResultsConfig{
			URL:            DefaultResultsURL,
			Event:          DefaultResultsEvent,
			ReconnectDelay: DefaultReconnectDelay,
		},
	}
}

// Load reads a YAML file on top of Default. An empty path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv applies GRIDSCAN_* environment overrides.
// Call this after Load and before flag overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GRIDSCAN_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("GRIDSCAN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("GRIDSCAN_CAMERA_SOURCE"); v != "" {
		c.Camera.Source = v
	}
	if v := os.Getenv("GRIDSCAN_CAMERA_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Camera.Device = n
		}
	}
	if v := os.Getenv("GRIDSCAN_SIGNALLING_URL"); v != "" {
		c.Camera.SignallingURL = v
	}
	if v := os.Getenv("GRIDSCAN_SELECTOR"); v != "" {
		c.Capture.Selector = v
	}
	if v := os.Getenv("GRIDSCAN_ANALYZE_URL"); v != "" {
		c.Analyze.URL = v
	}
	if v := os.Getenv("GRIDSCAN_RESULTS_URL"); v != "" {
		c.Results.URL = v
	}
}
