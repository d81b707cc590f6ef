package marker

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

// Region is a crop rectangle. Coordinates may be expressed in display space;
// Clamp scales them to the frame's native resolution.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Clamp scales r from a displayW x displayH viewport to the frame's native
// resolution and clamps it to the frame bounds. The result always has at
// least a 1x1 extent and never extends outside the source image. If the
// display dimensions are zero the region is treated as already native.
func (r Region) Clamp(f *Frame, displayW, displayH int) Region {
	w, h := f.Width(), f.Height()

	scaled := r
	if displayW > 0 && displayH > 0 {
		scaled.X = r.X * w / displayW
		scaled.Y = r.Y * h / displayH
		scaled.Width = r.Width * w / displayW
		scaled.Height = r.Height * h / displayH
	}

	scaled.X = clamp(scaled.X, 0, w-1)
	scaled.Y = clamp(scaled.Y, 0, h-1)
	scaled.Width = clamp(scaled.Width, 1, w-scaled.X)
	scaled.Height = clamp(scaled.Height, 1, h-scaled.Y)
	return scaled
}

// Crop rasterizes the clamped sub-rectangle of the frame as a JPEG. The frame
// must be labeled first; unnamed markers cannot be stored.
func Crop(f *Frame, region Region, displayW, displayH int) ([]byte, error) {
	if f == nil || f.Image == nil {
		return nil, ErrCaptureUnavailable
	}
	if f.Label == "" {
		return nil, ErrNameRequired
	}

	r := region.Clamp(f, displayW, displayH)
	b := f.Image.Bounds()
	rect := image.Rect(b.Min.X+r.X, b.Min.Y+r.Y, b.Min.X+r.X+r.Width, b.Min.Y+r.Y+r.Height)

	out := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(out, out.Bounds(), f.Image, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding crop: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
