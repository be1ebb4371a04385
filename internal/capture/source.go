// Package capture produces a rate-limited stream of encoded screen
// frames from a display source.
package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Source captures raw pixels. A nil region means the full display.
type Source interface {
	Capture(region *image.Rectangle) (image.Image, error)
}

// DisplaySource captures a physical display by index.
type DisplaySource struct {
	Display int
}

// Capture grabs the configured display, or just the given region of it.
func (s *DisplaySource) Capture(region *image.Rectangle) (image.Image, error) {
	if region != nil {
		img, err := screenshot.CaptureRect(*region)
		if err != nil {
			return nil, fmt.Errorf("capture region %v failed: %w", *region, err)
		}
		return img, nil
	}

	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if s.Display < 0 || s.Display >= n {
		return nil, fmt.Errorf("invalid display %d, have %d displays", s.Display, n)
	}

	bounds := screenshot.GetDisplayBounds(s.Display)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("capture display %d failed: %w", s.Display, err)
	}
	return img, nil
}
