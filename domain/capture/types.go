package capture

import (
	"image"
	"time"
)

// ROI is a screen rectangle in pixel coordinates. A ROI with non-positive
// width or height is treated as absent.
type ROI struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether the ROI has positive extent.
func (r ROI) Valid() bool { return r.Width > 0 && r.Height > 0 }

// Rect converts the ROI to an image.Rectangle in screen coordinates.
func (r ROI) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// ROIFromRect builds a ROI from a rectangle; empty rectangles map to the zero ROI.
func ROIFromRect(rect image.Rectangle) ROI {
	rect = rect.Canon()
	if rect.Empty() {
		return ROI{}
	}
	return ROI{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()}
}

// ROIProvider returns the currently selected region. Implementations hand out
// values, so samplers never mutate the edit surface's copy.
type ROIProvider interface{ ROI() ROI }

// CaptureResult carries one cropped ROI bitmap. Image bounds start at (0,0);
// recognizer bounding boxes live in that space.
type CaptureResult struct {
	Image      *image.NRGBA
	Width      int
	Height     int
	ROI        ROI
	CapturedAt time.Time
	Sequence   uint64
}

// Origin returns the screen position of the image's (0,0) pixel.
func (c *CaptureResult) Origin() image.Point {
	if c == nil {
		return image.Point{}
	}
	return image.Pt(c.ROI.X, c.ROI.Y)
}

// CaptureStats summarises sampler behaviour for instrumentation.
type CaptureStats struct {
	Captures    uint64
	Skipped     uint64
	Failures    uint64
	AvgCapture  time.Duration
	LastCapture time.Time
	Sequence    uint64
}
