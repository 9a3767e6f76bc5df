package pipeline

import (
	"context"
	"image"
	"strings"
	"sync/atomic"
	"time"

	"github.com/soocke/guard-overlay-go/domain/capture"
	"github.com/soocke/guard-overlay-go/domain/mitigation"
	"github.com/soocke/guard-overlay-go/domain/moderation"
	"github.com/soocke/guard-overlay-go/domain/ocr"
)

const DefaultCaptureInterval = time.Second

// Sampler captures one ROI.
type Sampler interface {
	Sample(roi capture.ROI) *capture.CaptureResult
}

// ScreenStream samples the ROI on a fixed interval and runs OCR on each frame.
type ScreenStream struct {
	*core
	roi      capture.ROIProvider
	sampler  Sampler
	ocr      ocr.TextRecognizer
	interval atomic.Int64
	captures atomic.Uint64
}

func NewScreenStream(roi capture.ROIProvider, sampler Sampler, rec ocr.TextRecognizer, deps Deps, opts Options) *ScreenStream {
	if rec == nil {
		rec = ocr.Stub{}
	}
	s := &ScreenStream{core: newCore(StreamScreen, deps, opts), roi: roi, sampler: sampler, ocr: rec}
	s.SetInterval(opts.Interval)
	return s
}

func (s *ScreenStream) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultCaptureInterval
	}
	s.interval.Store(int64(d))
}

func (s *ScreenStream) Interval() time.Duration { return time.Duration(s.interval.Load()) }

// Captures counts sampler invocations.
func (s *ScreenStream) Captures() uint64 { return s.captures.Load() }

// Run ticks until ctx is done, then tears the stream down.
func (s *ScreenStream) Run(ctx context.Context) {
	defer s.teardown()
	timer := time.NewTimer(s.Interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Tick()
			timer.Reset(s.Interval())
		}
	}
}

// Tick starts one cycle unless the ROI is unset or a cycle is still in flight.
// It never blocks on recognition.
func (s *ScreenStream) Tick() bool {
	s.ticks.Add(1)
	var roi capture.ROI
	if s.roi != nil {
		roi = s.roi.ROI()
	}
	if !roi.Valid() {
		s.skipped.Add(1)
		return false
	}
	ticket, ok := s.fsm.TryBegin()
	if !ok {
		s.dropped.Add(1)
		return false
	}
	go s.cycle(s.cycleContext(), ticket, roi)
	return true
}

func (s *ScreenStream) cycle(ctx context.Context, ticket uint64, roi capture.ROI) {
	defer s.guard(ticket)
	var res *capture.CaptureResult
	if s.sampler != nil {
		s.captures.Add(1)
		res = s.sampler.Sample(roi)
	}
	if res == nil {
		s.fsm.Abandon(ticket)
		return
	}
	if !s.fsm.Advance(ticket, StageRecognizing) {
		return
	}
	lines, err := s.ocr.Recognize(ctx, res)
	if err != nil {
		if ctx.Err() == nil {
			s.fail(ticket, err)
		}
		return
	}
	lines = ocr.ClampLines(lines, image.Rect(0, 0, res.Width, res.Height))
	if len(lines) > 0 {
		texts := make([]string, len(lines))
		for i, l := range lines {
			texts[i] = l.Text
		}
		s.lastText.Store(strings.Join(texts, " / "))
	}
	s.decide(ctx, ticket, lines, func(r moderation.Result) mitigation.Geometry {
		boxes := make([]image.Rectangle, 0, len(r.Flagged))
		for _, i := range r.Flagged {
			boxes = append(boxes, lines[i].Box)
		}
		return mitigation.ComputeGeometry(s.mode(), roi.Rect(), boxes, res.Image, res.Origin())
	})
}
