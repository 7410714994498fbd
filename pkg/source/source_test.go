package source

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-gridscan/internal/config"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 200, A: 255})

	path := filepath.Join(t.TempDir(), "shelf.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStill_OpenAndFrame(t *testing.T) {
	s := NewStill(writePNG(t, 32, 24))

	if _, err := s.Frame(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Frame before Open err = %v, want ErrNotOpen", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	img, err := s.Frame()
	if err != nil {
		t.Fatal(err)
	}
	if w, h := s.Dimensions(); w != 32 || h != 24 {
		t.Errorf("Dimensions = %dx%d, want 32x24", w, h)
	}
	if _, g, _, _ := img.At(0, 0).RGBA(); g>>8 != 200 {
		t.Errorf("pixel green = %d, want 200", g>>8)
	}

	s.Close()
	if _, err := s.Frame(); err == nil {
		t.Error("Frame after Close should fail")
	}
}

func TestStill_MissingFile(t *testing.T) {
	s := NewStill(filepath.Join(t.TempDir(), "nope.png"))
	if err := s.Open(context.Background()); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestStill_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewStill(path).Open(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestStillImage(t *testing.T) {
	s := NewStillImage(image.NewGray(image.Rect(0, 0, 5, 5)))
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Frame(); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if _, err := s.Frame(); err != nil {
		t.Errorf("in-memory still should survive Close: %v", err)
	}
}

func TestNew_Kinds(t *testing.T) {
	tests := []struct {
		cfg  config.CameraConfig
		kind string
	}{
		{config.CameraConfig{Source: "webcam"}, KindWebcam},
		{config.CameraConfig{Source: ""}, KindWebcam},
		{config.CameraConfig{Source: "WebRTC", SignallingURL: "ws://robot:8443"}, KindWebRTC},
		{config.CameraConfig{Source: "still", Path: "x.png"}, KindStill},
	}
	for _, tt := range tests {
		src, err := New(tt.cfg, nil)
		if err != nil {
			t.Errorf("New(%q) error: %v", tt.cfg.Source, err)
			continue
		}
		if src.Kind() != tt.kind {
			t.Errorf("New(%q).Kind() = %q, want %q", tt.cfg.Source, src.Kind(), tt.kind)
		}
	}

	if _, err := New(config.CameraConfig{Source: "hologram"}, nil); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("err = %v, want ErrUnknownSource", err)
	}
}

type countingSource struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingSource) Frame() (image.Image, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, ErrNoFrame
	}
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func TestPreview_DeliversFrames(t *testing.T) {
	src := &countingSource{}
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan struct{}, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- Preview(ctx, src, 50, func(image.Image) {
			select {
			case got <- struct{}{}:
			default:
			}
		})
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("no preview frame")
		}
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Preview err = %v, want context.Canceled", err)
	}
}

func TestPreview_SkipsFailures(t *testing.T) {
	src := &countingSource{fail: true}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	called := false
	Preview(ctx, src, 50, func(image.Image) { called = true })
	if called {
		t.Error("fn called for a failed frame")
	}
	if src.calls.Load() == 0 {
		t.Error("source never polled")
	}
}

func TestPreview_Disabled(t *testing.T) {
	if err := Preview(context.Background(), &countingSource{}, 0, nil); err != nil {
		t.Errorf("err = %v", err)
	}
}
