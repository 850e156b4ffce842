// Package capture decodes and crops screen captures of the PDF viewer before
// they are sent to a vision model.
package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

var (
	ErrEmptyImage  = errors.New("image data required")
	ErrEmptyRegion = errors.New("selection does not overlap the image")
)

// MaxImageBytes bounds the decoded size of a capture.
const MaxImageBytes = 15 << 20

// Region is a drag-selected rectangle in CSS pixels. Negative sizes mean the
// drag went up or left from the origin.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Normalize flips negative sizes so Width and Height are non-negative.
func (r Region) Normalize() Region {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// DecodeImage accepts a data:image/...;base64, URL or bare base64 and decodes
// a PNG, JPEG or GIF image.
func DecodeImage(data string) (image.Image, error) {
	raw, err := decodePayload(data)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func decodePayload(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 {
			return nil, errors.New("malformed data url")
		}
		header := data[len("data:"):comma]
		if !strings.HasPrefix(header, "image/") || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("unsupported data url %q", header)
		}
		data = data[comma+1:]
	}
	if data == "" {
		return nil, ErrEmptyImage
	}
	if base64.StdEncoding.DecodedLen(len(data)) > MaxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxImageBytes)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return raw, nil
}

// Rect maps a region to image pixels using scale (device pixel ratio, default
// 1) and clamps it to bounds.
func Rect(bounds image.Rectangle, region Region, scale float64) (image.Rectangle, error) {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	region = region.Normalize()
	rect := image.Rect(
		bounds.Min.X+int(math.Floor(region.X*scale)),
		bounds.Min.Y+int(math.Floor(region.Y*scale)),
		bounds.Min.X+int(math.Ceil((region.X+region.Width)*scale)),
		bounds.Min.Y+int(math.Ceil((region.Y+region.Height)*scale)),
	).Intersect(bounds)
	if rect.Empty() {
		return image.Rectangle{}, ErrEmptyRegion
	}
	return rect, nil
}

// Crop cuts the selected region out of img.
func Crop(img image.Image, region Region, scale float64) (image.Image, error) {
	rect, err := Rect(img.Bounds(), region, scale)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, rect), nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Prepare decodes a capture, crops it when region is set and returns PNG bytes.
func Prepare(data string, region *Region, scale float64) ([]byte, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	if region != nil {
		if img, err = Crop(img, *region, scale); err != nil {
			return nil, err
		}
	}
	return EncodePNG(img)
}
