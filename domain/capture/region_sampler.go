package capture

import (
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
)

const captureStatsLogInterval = 5 * time.Second

// RegionSampler produces a still image of one ROI by grabbing the full display
// and cropping it. It is safe for concurrent use although the pipeline only
// calls it from one in-flight cycle at a time.
type RegionSampler struct {
	source       DisplaySource
	logger       *slog.Logger
	latest       atomic.Pointer[CaptureResult]
	captures     atomic.Uint64
	skipped      atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
	lastStatsLog atomic.Int64
}

// NewRegionSampler constructs a sampler. A nil source yields a sampler whose
// every Sample returns nil.
func NewRegionSampler(source DisplaySource, logger *slog.Logger) *RegionSampler {
	return &RegionSampler{source: source, logger: logger}
}

// Sample returns the cropped ROI, or nil when the ROI is absent, no display is
// available or the ROI lies entirely outside the display.
func (s *RegionSampler) Sample(roi ROI) *CaptureResult {
	if !roi.Valid() {
		s.skipped.Add(1)
		return nil
	}
	if s.source == nil {
		s.failures.Add(1)
		return nil
	}
	start := time.Now()
	cropped, rect, err := s.grab(roi.Rect())
	if err != nil {
		s.failures.Add(1)
		if s.logger != nil {
			s.logger.Debug("capture roi", "roi", roi.Rect().String(), "error", err)
		}
		return nil
	}
	b := cropped.Bounds()
	res := &CaptureResult{
		Image:      cropped,
		Width:      b.Dx(),
		Height:     b.Dy(),
		ROI:        ROIFromRect(rect),
		CapturedAt: time.Now(),
		Sequence:   s.sequence.Add(1),
	}
	s.captureNanos.Add(uint64(time.Since(start).Nanoseconds()))
	s.captures.Add(1)
	s.latest.Store(res)
	s.maybeLogStats()
	return res
}

// grab returns the pixels under want, clipped to the display, with a
// zero-origin image and the screen rectangle actually covered.
func (s *RegionSampler) grab(want image.Rectangle) (*image.NRGBA, image.Rectangle, error) {
	if rg, ok := s.source.(RegionGrabber); ok {
		img, rect, err := rg.GrabRect(want)
		if err != nil {
			return nil, image.Rectangle{}, err
		}
		if img == nil || rect.Empty() {
			return nil, image.Rectangle{}, errOutsideDisplay
		}
		return imaging.Clone(img), rect, nil
	}
	full, err := s.source.Grab()
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	if full == nil {
		return nil, image.Rectangle{}, ErrNoDisplay
	}
	rect := want.Intersect(full.Bounds())
	if rect.Empty() {
		return nil, image.Rectangle{}, errOutsideDisplay
	}
	return imaging.Crop(full, rect), rect, nil
}

// Latest returns the most recent successful capture, or nil.
func (s *RegionSampler) Latest() *CaptureResult { return s.latest.Load() }

func (s *RegionSampler) Stats() CaptureStats {
	captures := s.captures.Load()
	var avg time.Duration
	if total := s.captureNanos.Load(); captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
	}
	st := CaptureStats{
		Captures:   captures,
		Skipped:    s.skipped.Load(),
		Failures:   s.failures.Load(),
		AvgCapture: avg,
		Sequence:   s.sequence.Load(),
	}
	if last := s.latest.Load(); last != nil {
		st.LastCapture = last.CapturedAt
	}
	return st
}

func (s *RegionSampler) maybeLogStats() {
	if s.logger == nil {
		return
	}
	now := time.Now().UnixNano()
	last := s.lastStatsLog.Load()
	if now-last < int64(captureStatsLogInterval) || !s.lastStatsLog.CompareAndSwap(last, now) {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"skipped", stats.Skipped,
		"failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
	)
}
