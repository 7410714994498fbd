// Package sink delivers captured frames to the analysis endpoint.
package sink

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
)

// Image formats accepted by Encode.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// DefaultJPEGQuality is used when quality is out of range.
const DefaultJPEGQuality = 85

// Encode renders img as a data URL in the given format.
func Encode(img image.Image, format string, quality int) (string, error) {
	if img == nil {
		return "", ErrNoImage
	}

	var buf bytes.Buffer
	var mime string

	switch strings.ToLower(format) {
	case FormatPNG, "":
		mime = "image/png"
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("sink: encode png: %w", err)
		}
	case FormatJPEG, "jpg":
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		mime = "image/jpeg"
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", fmt.Errorf("sink: encode jpeg: %w", err)
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
