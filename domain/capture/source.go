package capture

import (
	"errors"
	"fmt"
	"image"

	"github.com/vova616/screenshot"
)

// ErrNoDisplay is returned when no display can be captured.
var ErrNoDisplay = errors.New("capture: no display source")

// DisplaySource grabs a bitmap of the entire display.
type DisplaySource interface {
	Grab() (*image.RGBA, error)
}

// ScreenshotSource captures the primary screen.
type ScreenshotSource struct{}

func (ScreenshotSource) Grab() (*image.RGBA, error) {
	rect, err := screenshot.ScreenRect()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDisplay, err)
	}
	if rect.Empty() {
		return nil, ErrNoDisplay
	}
	img, err := screenshot.CaptureScreen()
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return img, nil
}

// DisplaySourceFunc adapts a function to DisplaySource.
type DisplaySourceFunc func() (*image.RGBA, error)

func (f DisplaySourceFunc) Grab() (*image.RGBA, error) { return f() }

var errOutsideDisplay = errors.New("capture: roi outside display")

// RegionGrabber is implemented by sources that can copy a sub-rectangle of
// the display directly. GrabRect clips want to the display and returns the
// pixels with a zero origin together with the screen rectangle they cover.
type RegionGrabber interface {
	GrabRect(want image.Rectangle) (*image.RGBA, image.Rectangle, error)
}

func (ScreenshotSource) GrabRect(want image.Rectangle) (*image.RGBA, image.Rectangle, error) {
	screen, err := screenshot.ScreenRect()
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("%w: %v", ErrNoDisplay, err)
	}
	r := want.Intersect(screen)
	if r.Empty() {
		return nil, image.Rectangle{}, errOutsideDisplay
	}
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("capture rect: %w", err)
	}
	return img, r, nil
}
