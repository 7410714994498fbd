package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
)

// Still serves one image file as every frame.
type Still struct {
	path string

	mu  sync.RWMutex
	img image.Image
}

// NewStill creates a source for the PNG or JPEG file at path.
func NewStill(path string) *Still {
	return &Still{path: path}
}

// NewStillImage creates an already-open source around img.
func NewStillImage(img image.Image) *Still {
	return &Still{img: img}
}

// Open reads and decodes the file.
func (s *Still) Open(ctx context.Context) error {
	if s.path == "" {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.img == nil {
			return fmt.Errorf("source: still: no path")
		}
		return nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("source: still: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("source: still: decode %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
	return nil
}

// Frame returns the image.
func (s *Still) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return nil, ErrNotOpen
	}
	return s.img, nil
}

// Dimensions returns the image size.
func (s *Still) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Kind implements Source.
func (s *Still) Kind() string { return KindStill }

// Close drops the image.
func (s *Still) Close() error {
	s.mu.Lock()
	if s.path != "" {
		s.img = nil
	}
	s.mu.Unlock()
	return nil
}
