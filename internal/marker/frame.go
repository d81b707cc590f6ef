// Package marker implements the capture side of treasure authoring: holding
// the most recent camera frame, clamping crop regions, and rasterizing the
// cropped marker image that is sent to the validator and the asset store.
package marker

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	_ "image/jpeg"
	_ "image/png"
)

var (
	// ErrCaptureUnavailable is returned when no usable frame can be read:
	// empty body, undecodable data, or a zero-dimension image.
	ErrCaptureUnavailable = errors.New("capture unavailable")

	// ErrNameRequired is returned when a crop is requested for a frame that
	// has no label yet.
	ErrNameRequired = errors.New("marker name required")
)

// Frame is one captured camera frame plus the metadata recorded at capture
// time. Latitude and longitude are fixed here, not at save time.
type Frame struct {
	Image      image.Image
	Label      string
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
}

// NewFrame decodes a JPEG or PNG frame from r. The coordinates are whatever
// fix the capturing device had at the moment of capture; a degraded session
// may pass zeroes.
func NewFrame(r io.Reader, lat, lon float64) (*Frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrCaptureUnavailable
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrCaptureUnavailable
	}

	return &Frame{
		Image:      img,
		Latitude:   lat,
		Longitude:  lon,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// Width returns the native pixel width of the frame.
func (f *Frame) Width() int { return f.Image.Bounds().Dx() }

// Height returns the native pixel height of the frame.
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }
