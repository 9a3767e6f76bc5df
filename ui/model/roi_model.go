package model

import (
	"image"
	"sync/atomic"

	"github.com/soocke/guard-overlay-go/domain/capture"
)

// ROIModel holds the selected region of interest. The selection overlay
// writes it on the UI thread while the screen stream reads it from its own
// goroutine, so the value is swapped atomically and handed out by copy.
// The zero value means no region and is usable.
type ROIModel struct {
	roi atomic.Pointer[capture.ROI]
}

func NewROIModel(initial capture.ROI) *ROIModel {
	m := &ROIModel{}
	m.Set(initial)
	return m
}

// Set replaces the region. Non-positive extents clear it.
func (m *ROIModel) Set(r capture.ROI) {
	if m == nil {
		return
	}
	if !r.Valid() {
		m.roi.Store(nil)
		return
	}
	m.roi.Store(&r)
}

// SetRect sets the region from screen coordinates. Use an empty rect to clear.
func (m *ROIModel) SetRect(r image.Rectangle) { m.Set(capture.ROIFromRect(r)) }

// ROI returns the current region; the zero ROI when none is selected.
func (m *ROIModel) ROI() capture.ROI {
	if m == nil {
		return capture.ROI{}
	}
	if p := m.roi.Load(); p != nil {
		return *p
	}
	return capture.ROI{}
}

// Rect returns the region in screen coordinates (may be empty).
func (m *ROIModel) Rect() image.Rectangle {
	r := m.ROI()
	if !r.Valid() {
		return image.Rectangle{}
	}
	return r.Rect()
}
