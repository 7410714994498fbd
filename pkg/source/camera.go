package source

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Camera reads frames from a local video device through OpenCV.
type Camera struct {
	device int
	width  int
	height int

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// NewCamera creates a webcam source. Zero width or height keeps the
// device default.
func NewCamera(device, width, height int) *Camera {
	return &Camera{device: device, width: width, height: height}
}

// Open opens the device and applies the requested resolution.
func (c *Camera) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	vc, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return fmt.Errorf("source: open camera %d: %w", c.device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("source: camera %d did not open", c.device)
	}
	if c.width > 0 && c.height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cap = vc
	c.mat = gocv.NewMat()
	c.closed = false
	return nil
}

// Frame grabs the next frame from the device.
func (c *Camera) Frame() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.cap == nil {
		return nil, ErrNotOpen
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, ErrNoFrame
	}
	return c.mat.ToImage()
}

// Dimensions returns the negotiated frame size.
func (c *Camera) Dimensions() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return 0, 0
	}
	return int(c.cap.Get(gocv.VideoCaptureFrameWidth)), int(c.cap.Get(gocv.VideoCaptureFrameHeight))
}

// Kind implements Source.
func (c *Camera) Kind() string { return KindWebcam }

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.cap == nil {
		c.closed = true
		return nil
	}
	c.closed = true
	c.mat.Close()
	err := c.cap.Close()
	c.cap = nil
	return err
}
