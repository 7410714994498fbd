package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"time"
)

// minDecodeBytes is the smallest access-unit buffer worth handing to ffmpeg.
const minDecodeBytes = 100

// jpegSOI starts each frame in ffmpeg's MJPEG output.
var jpegSOI = []byte{0xff, 0xd8, 0xff}

// h264Decoder turns an Annex-B H264 buffer into one image by piping it
// through ffmpeg.
type h264Decoder struct {
	binary  string
	timeout time.Duration
}

func newH264Decoder() *h264Decoder {
	return &h264Decoder{binary: "ffmpeg", timeout: 2 * time.Second}
}

// Decode returns the last complete frame in data.
func (d *h264Decoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if len(data) < minDecodeBytes {
		return nil, ErrNoFrame
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.binary,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("source: ffmpeg: %w", ctx.Err())
		}
		return nil, fmt.Errorf("source: ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	out := stdout.Bytes()
	if i := bytes.LastIndex(out, jpegSOI); i > 0 {
		out = out[i:]
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("source: decode ffmpeg output: %w", err)
	}
	if isBlank(img) {
		return nil, ErrNoFrame
	}
	return img, nil
}

// isBlank reports frames that are uniformly dark or mid-gray, which the
// decoder emits before it has seen a usable keyframe.
func isBlank(img image.Image) bool {
	b := img.Bounds()
	if b.Dx() < 10 || b.Dy() < 10 {
		return true
	}

	var rSum, gSum, bSum, n int
	for y := b.Min.Y; y < b.Max.Y; y += b.Dy() / 10 {
		for x := b.Min.X; x < b.Max.X; x += b.Dx() / 10 {
			r, g, bl, _ := img.At(x, y).RGBA()
			rSum += int(r >> 8)
			gSum += int(g >> 8)
			bSum += int(bl >> 8)
			n++
		}
	}

	avgR, avgG, avgB := rSum/n, gSum/n, bSum/n
	if avgR < 30 && avgG < 30 && avgB < 30 {
		return true
	}
	diff := abs(avgR-avgG) + abs(avgG-avgB) + abs(avgR-avgB)
	return diff < 15 && avgR > 100 && avgR < 150
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// NAL unit types of interest.
const (
	nalIDR = 5
	nalSPS = 7
)

// nalTypes lists the NAL unit types in an Annex-B buffer.
func nalTypes(annexB []byte) []byte {
	var types []byte
	for i := 0; i+3 < len(annexB); i++ {
		if annexB[i] != 0 || annexB[i+1] != 0 {
			continue
		}
		switch {
		case annexB[i+2] == 1:
			types = append(types, annexB[i+3]&0x1f)
			i += 3
		case annexB[i+2] == 0 && i+4 < len(annexB) && annexB[i+3] == 1:
			types = append(types, annexB[i+4]&0x1f)
			i += 4
		}
	}
	return types
}

// startsGOP reports whether the buffer carries parameter sets or an IDR.
func startsGOP(annexB []byte) bool {
	for _, t := range nalTypes(annexB) {
		if t == nalSPS || t == nalIDR {
			return true
		}
	}
	return false
}
