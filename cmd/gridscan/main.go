// gridscan - shelf scanner: captures frames on a countdown or on demand,
// posts them for analysis and shows the results as they stream back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-gridscan/internal/config"
	"github.com/teslashibe/go-gridscan/internal/log"
	"github.com/teslashibe/go-gridscan/pkg/app"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridscan: %v\n", err)
		os.Exit(2)
	}

	log.Setup(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	a, err := app.New(*cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads the config file, applies environment overrides and then
// any flags that were set explicitly.
func parseFlags(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("gridscan", flag.ContinueOnError)

	configPath := fs.String("config", os.Getenv("GRIDSCAN_CONFIG"), "Path to YAML config file")
	debug := fs.Bool("debug", false, "Enable verbose debug logging")
	port := fs.String("port", "", "Dashboard port")
	selector := fs.String("selector", "", `Capture mode: "manual" or an interval in milliseconds`)
	sourceKind := fs.String("source", "", "Frame source: webcam, webrtc or still")
	device := fs.Int("device", -1, "Webcam device index")
	still := fs.String("still", "", "Image file for the still source")
	signalling := fs.String("signalling-url", "", "WebRTC signalling URL, e.g. ws://reachy.local:8443")
	analyzeURL := fs.String("analyze-url", "", "Analysis endpoint")
	resultsURL := fs.String("results-url", "", "Results push channel")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if *debug {
		cfg.Log.Level = "debug"
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *selector != "" {
		cfg.Capture.Selector = *selector
	}
	if *sourceKind != "" {
		cfg.Camera.Source = *sourceKind
	}
	if *device >= 0 {
		cfg.Camera.Device = *device
	}
	if *still != "" {
		cfg.Camera.Path = *still
		if *sourceKind == "" {
			cfg.Camera.Source = "still"
		}
	}
	if *signalling != "" {
		cfg.Camera.SignallingURL = *signalling
	}
	if *analyzeURL != "" {
		cfg.Analyze.URL = *analyzeURL
	}
	if *resultsURL != "" {
		cfg.Results.URL = *resultsURL
	}
	return cfg, nil
}
