// Client-side image optimization.
//
// Every image is bounded before it is sent: the longest side is resized
// down to a fixed maximum, and if the encoded payload still exceeds the
// size ceiling a second, more aggressive resize/re-encode pass runs.
// This is a bandwidth and latency guard, not an optional nicety.

package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// OptimizeOptions bounds the optimized image.
type OptimizeOptions struct {
	MaxDim   int // longest side after the first pass, px
	MaxBytes int // encoded payload ceiling triggering the second pass
}

// Second-pass parameters relative to the first pass.
const (
	aggressiveDimFactor = 70 // percent of MaxDim
	normalQuality       = 80
	aggressiveQuality   = 60
)

// Optimize decodes a base64 image data URI, resizes it so neither
// dimension exceeds opts.MaxDim, and re-encodes as JPEG. If the encoded
// payload still exceeds opts.MaxBytes, an aggressive second pass with a
// smaller bound and lower quality is applied.
func Optimize(dataURI string, opts OptimizeOptions) (string, error) {
	raw, err := decodeDataURI(dataURI)
	if err != nil {
		return "", err
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	encoded, err := encodePass(img, opts.MaxDim, normalQuality)
	if err != nil {
		return "", err
	}

	if len(encoded) > opts.MaxBytes {
		aggressiveDim := opts.MaxDim * aggressiveDimFactor / 100
		encoded, err = encodePass(img, aggressiveDim, aggressiveQuality)
		if err != nil {
			return "", err
		}
	}

	return encoded, nil
}

// encodePass bounds the image to maxDim and encodes it as a JPEG data URI.
func encodePass(img image.Image, maxDim, quality int) (string, error) {
	bounds := img.Bounds()
	if bounds.Dx() > maxDim || bounds.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeDataURI returns the raw bytes of a base64 image data URI.
func decodeDataURI(dataURI string) ([]byte, error) {
	if !strings.HasPrefix(dataURI, "data:") {
		return nil, fmt.Errorf("not a data URI")
	}
	_, payload, found := strings.Cut(dataURI, ",")
	if !found {
		return nil, fmt.Errorf("malformed data URI")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI payload: %w", err)
	}
	return raw, nil
}
