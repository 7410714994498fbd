package source

import (
	"context"
	"image"
	"time"
)

// FrameSource is the part of Source that Preview needs.
type FrameSource interface {
	Frame() (image.Image, error)
}

// Preview calls fn with a frame from src fps times per second until ctx is
// done. Frames that fail are skipped. A non-positive fps returns at once.
func Preview(ctx context.Context, src FrameSource, fps int, fn func(image.Image)) error {
	if fps <= 0 || src == nil {
		return nil
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			img, err := src.Frame()
			if err != nil {
				continue
			}
			fn(img)
		}
	}
}
