package source

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-gridscan/internal/config"
)

// New builds the source selected by cfg.Source. The source is not opened.
func New(cfg config.CameraConfig, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Source) {
	case KindWebcam, "":
		return NewCamera(cfg.Device, cfg.Width, cfg.Height), nil
	case KindWebRTC:
		return NewWebRTC(cfg.SignallingURL, cfg.Producer, WithWebRTCLogger(logger)), nil
	case KindStill:
		return NewStill(cfg.Path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
	}
}
