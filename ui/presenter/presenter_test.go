package presenter

import (
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soocke/guard-overlay-go/domain/capture"
	"github.com/soocke/guard-overlay-go/domain/mitigation"
	"github.com/soocke/guard-overlay-go/domain/pipeline"
	"github.com/soocke/guard-overlay-go/ui/model"
)

type mockModel struct{ enabled bool }

func (m *mockModel) Enabled() bool     { return m.enabled }
func (m *mockModel) SetEnabled(b bool) { m.enabled = b }

type mockStreams struct{ started, stopped int }

func (s *mockStreams) Start() { s.started++ }
func (s *mockStreams) Stop()  { s.stopped++ }

type mockView struct {
	reset, editableCalls int
	lastEditable         bool
	monitoring           bool
}

func (v *mockView) PreviewReset()         { v.reset++ }
func (v *mockView) ConfigEditable(b bool) { v.editableCalls++; v.lastEditable = b }
func (v *mockView) SetMonitoring(b bool)  { v.monitoring = b }

func TestMonitorPresenter_EnableDisable_Idempotent(t *testing.T) {
	m := &mockModel{}
	streams := &mockStreams{}
	view := &mockView{}
	p := NewMonitorPresenter(m, streams, view)

	p.Enable()
	if !m.Enabled() || streams.started != 1 || view.lastEditable || view.editableCalls != 1 || !view.monitoring {
		t.Fatalf("enable failed: enabled=%v started=%d editableCalls=%d lastEditable=%v", m.Enabled(), streams.started, view.editableCalls, view.lastEditable)
	}
	p.Enable()
	if streams.started != 1 {
		t.Fatalf("enable not idempotent: started=%d", streams.started)
	}

	p.Disable()
	if m.Enabled() || streams.stopped != 1 || view.reset != 1 || !view.lastEditable || view.editableCalls != 2 || view.monitoring {
		t.Fatalf("disable failed: enabled=%v stopped=%d reset=%d editableCalls=%d lastEditable=%v", m.Enabled(), streams.stopped, view.reset, view.editableCalls, view.lastEditable)
	}
	p.Disable()
	if streams.stopped != 1 || view.reset != 1 {
		t.Fatalf("disable not idempotent: stopped=%d reset=%d", streams.stopped, view.reset)
	}
}

func TestMonitorPresenter_Toggle(t *testing.T) {
	m := &mockModel{}
	streams := &mockStreams{}
	p := NewMonitorPresenter(m, streams, &mockView{})
	p.Toggle()
	if !m.Enabled() || streams.started != 1 {
		t.Fatalf("toggle enable failed")
	}
	p.Toggle()
	if m.Enabled() || streams.stopped != 1 {
		t.Fatalf("toggle disable failed")
	}
}

type labelView struct{ labels map[string][]string }

func (v *labelView) SetStageLabel(stream, text string) {
	v.labels[stream] = append(v.labels[stream], text)
}

func TestStagePresenter_ReflectsLatestPerStream(t *testing.T) {
	view := &labelView{labels: map[string][]string{}}
	p := NewStagePresenter(view)
	p.OnStage("screen", pipeline.StageIdle, pipeline.StageCapturing, nil)
	p.OnStage("screen", pipeline.StageCapturing, pipeline.StageRecognizing, nil)
	p.OnStage("audio", pipeline.StageIdle, pipeline.StageError, &pipeline.Fault{Code: pipeline.FaultPermissionDenied, RetryIn: 2 * time.Second})
	p.Tick(time.Now())
	if got := view.labels["screen"]; len(got) != 1 || got[0] != pipeline.StageRecognizing.String() {
		t.Fatalf("expected only latest screen stage, got %v", got)
	}
	if got := view.labels["audio"]; len(got) != 1 || !strings.Contains(got[0], "PERMISSION_DENIED") {
		t.Fatalf("expected audio fault label, got %v", got)
	}
	// Same text again is not re-pushed.
	p.OnStage("screen", pipeline.StageRecognizing, pipeline.StageRecognizing, nil)
	p.Tick(time.Now())
	if got := view.labels["screen"]; len(got) != 1 {
		t.Fatalf("expected unchanged label to be skipped, got %v", got)
	}
}

func TestStagePresenter_ConcurrentListeners(t *testing.T) {
	view := &labelView{labels: map[string][]string{}}
	p := NewStagePresenter(view)
	var wg sync.WaitGroup
	for _, s := range []string{"screen", "audio"} {
		wg.Add(1)
		go func(stream string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p.OnStage(stream, pipeline.StageIdle, pipeline.StageCapturing, nil)
				p.OnStage(stream, pipeline.StageCapturing, pipeline.StageIdle, nil)
			}
		}(s)
	}
	for i := 0; i < 50; i++ {
		p.Tick(time.Now())
	}
	wg.Wait()
	p.Tick(time.Now())
	for _, s := range []string{"screen", "audio"} {
		got := view.labels[s]
		if len(got) == 0 || got[len(got)-1] != pipeline.StageIdle.String() {
			t.Fatalf("expected %s to settle on idle, got %v", s, got)
		}
	}
}

type sessionView struct {
	session, total, masked time.Duration
	episodes               uint64
}

func (v *sessionView) SetSession(s, t time.Duration) { v.session, v.total = s, t }
func (v *sessionView) SetMasked(m time.Duration, e uint64) {
	v.masked, v.episodes = m, e
}

type maskState struct {
	active   bool
	episodes uint64
}

func (m *maskState) Active() bool     { return m.active }
func (m *maskState) Episodes() uint64 { return m.episodes }

func TestSessionPresenter_TracksMaskTime(t *testing.T) {
	mon := &mockModel{enabled: true}
	mask := &maskState{}
	view := &sessionView{}
	p := NewSessionPresenter(model.NewSessionModel(), mon, mask, view)
	base := time.Unix(0, 0)
	p.Tick(base)
	mask.active, mask.episodes = true, 1
	p.Tick(base.Add(time.Second))
	p.Tick(base.Add(4 * time.Second))
	if view.session != 4*time.Second || view.masked != 3*time.Second || view.episodes != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
}

type maskView struct {
	shown  [][]MaskRegion
	hidden int
}

func (v *maskView) ShowMask(r []MaskRegion) { v.shown = append(v.shown, r) }
func (v *maskView) HideMask()               { v.hidden++ }

func solid(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	return img
}

func TestMaskPresenter_LatestWinsOnTick(t *testing.T) {
	view := &maskView{}
	p := NewMaskPresenter(view, nil)
	p.Show(mitigation.Mask{Style: mitigation.StyleOpaque, Regions: []mitigation.Region{{Rect: image.Rect(0, 0, 10, 10)}}})
	p.Show(mitigation.Mask{Style: mitigation.StyleOpaque, Regions: []mitigation.Region{{Rect: image.Rect(5, 5, 20, 20)}}})
	if len(view.shown) != 0 {
		t.Fatalf("expected nothing painted before tick")
	}
	p.Tick(time.Now())
	if len(view.shown) != 1 || view.shown[0][0].Rect != image.Rect(5, 5, 20, 20) || view.shown[0][0].Image != nil {
		t.Fatalf("expected newest opaque mask, got %+v", view.shown)
	}
	if !p.Visible() {
		t.Fatalf("expected visible")
	}
	p.Tick(time.Now())
	if len(view.shown) != 1 {
		t.Fatalf("expected no repaint without a new frame")
	}
	p.Clear()
	p.Tick(time.Now())
	p.Clear()
	p.Tick(time.Now())
	if view.hidden != 1 || p.Visible() {
		t.Fatalf("expected one hide, got %d", view.hidden)
	}
}

func TestMaskPresenter_MosaicRegions(t *testing.T) {
	view := &maskView{}
	p := NewMaskPresenter(view, nil)
	snap := solid(100, 20)
	p.Show(mitigation.Mask{Style: mitigation.StyleMosaic, Regions: []mitigation.Region{
		{Rect: image.Rect(10, 10, 110, 30), Snapshot: snap, Origin: image.Pt(10, 10)},
		{Rect: image.Rect(500, 500, 510, 510), Snapshot: snap, Origin: image.Pt(10, 10)},
	}})
	p.Tick(time.Now())
	regions := view.shown[0]
	if regions[0].Image == nil || regions[0].Image.Bounds().Dx() != 100 {
		t.Fatalf("expected pixelated snapshot, got %+v", regions[0])
	}
	if regions[0].Rect != image.Rect(10, 10, 110, 30) {
		t.Fatalf("unexpected mosaic rect %v", regions[0].Rect)
	}
	if regions[1].Image != nil {
		t.Fatalf("expected region outside snapshot to fall back to opaque")
	}
}

type fakeSource struct {
	mu  sync.Mutex
	res *capture.CaptureResult
}

func (s *fakeSource) Latest() *capture.CaptureResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res
}

type fakeStats struct{ st pipeline.Stats }

func (f fakeStats) Stats() pipeline.Stats { return f.st }

type previewView struct {
	mu               sync.Mutex
	captures, mosaic int
	scores           []string
}

func (v *previewView) UpdateCapture(image.Image) { v.mu.Lock(); v.captures++; v.mu.Unlock() }
func (v *previewView) UpdateMosaic(image.Image)  { v.mu.Lock(); v.mosaic++; v.mu.Unlock() }
func (v *previewView) SetScore(s string)         { v.mu.Lock(); v.scores = append(v.scores, s); v.mu.Unlock() }

func (v *previewView) counts() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.captures, v.mosaic
}

func TestPreviewPresenter_ShowsEachSequenceOnce(t *testing.T) {
	img := solid(800, 40)
	img.SetNRGBA(0, 0, color.NRGBA{A: 255})
	src := &fakeSource{res: &capture.CaptureResult{Image: img, Sequence: 1}}
	view := &previewView{}
	enabled := true
	p := NewPreviewPresenter(func() bool { return enabled }, src, fakeStats{st: pipeline.Stats{LastScore: 0.9, GateActive: true, Flagged: 2}}, view, nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.ProcessFrame()
		if c, _ := view.counts(); c >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		p.ProcessFrame()
		time.Sleep(2 * time.Millisecond)
	}
	c, m := view.counts()
	if c != 1 || m != 1 {
		t.Fatalf("expected one capture and one mosaic, got %d/%d", c, m)
	}
	if len(view.scores) != 1 || !strings.Contains(view.scores[0], "0.90") || !strings.Contains(view.scores[0], "ON") {
		t.Fatalf("unexpected score labels %v", view.scores)
	}

	enabled = false
	src.mu.Lock()
	src.res = &capture.CaptureResult{Image: img, Sequence: 2}
	src.mu.Unlock()
	for i := 0; i < 10; i++ {
		p.ProcessFrame()
		time.Sleep(2 * time.Millisecond)
	}
	if c, _ := view.counts(); c != 1 {
		t.Fatalf("expected no updates while disabled, got %d", c)
	}
}

func TestLoop_NilSafe(t *testing.T) {
	var l *Loop
	l.Tick()
	scheduled := 0
	(&Loop{Schedule: func() { scheduled++ }}).Tick()
	if scheduled != 1 {
		t.Fatalf("expected schedule called once, got %d", scheduled)
	}
}
