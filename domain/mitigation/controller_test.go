package mitigation

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recRenderer struct {
	mu     sync.Mutex
	shows  []Mask
	clears int
}

func (r *recRenderer) Show(m Mask) {
	r.mu.Lock()
	r.shows = append(r.shows, m)
	r.mu.Unlock()
}

func (r *recRenderer) Clear() {
	r.mu.Lock()
	r.clears++
	r.mu.Unlock()
}

func (r *recRenderer) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shows), r.clears
}

func (r *recRenderer) last() Mask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shows[len(r.shows)-1]
}

type countTone struct {
	n     atomic.Int32
	err   error
	block chan struct{}
}

func (c *countTone) Play() error {
	if c.block != nil {
		<-c.block
	}
	c.n.Add(1)
	return c.err
}

func waitForTones(t *testing.T, c *countTone, n int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.n.Load() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d tones (got %d)", n, c.n.Load())
}

func roiGeom() Geometry {
	return Geometry{Rects: []image.Rectangle{image.Rect(0, 0, 100, 20)}}
}

func TestController_OneTonePerActivationEdge(t *testing.T) {
	r := &recRenderer{}
	tone := &countTone{}
	c := NewController(r, tone, StyleOpaque, nil)
	for i := 0; i < 5; i++ {
		c.Update("screen", true, roiGeom())
	}
	waitForTones(t, tone, 1)
	time.Sleep(20 * time.Millisecond)
	if tone.n.Load() != 1 {
		t.Fatalf("expected one tone while active, got %d", tone.n.Load())
	}
	shows, _ := r.counts()
	if shows != 1 {
		t.Fatalf("expected one render for unchanged geometry, got %d", shows)
	}
	if m := r.last(); len(m.Regions) != 1 || m.Regions[0].Rect != image.Rect(0, 0, 100, 20) || m.Style != StyleOpaque {
		t.Fatalf("unexpected mask %+v", m)
	}
	c.Update("screen", false, Geometry{})
	if _, clears := r.counts(); clears != 1 || c.Active() {
		t.Fatalf("expected mask cleared, clears=%d", clears)
	}
	c.Update("screen", true, roiGeom())
	waitForTones(t, tone, 2)
	if c.Episodes() != 2 {
		t.Fatalf("expected 2 episodes, got %d", c.Episodes())
	}
}

func TestController_UnionAcrossStreams(t *testing.T) {
	r := &recRenderer{}
	c := NewController(r, nil, StyleMosaic, nil)
	c.Update("screen", true, roiGeom())
	c.Update("audio", true, Geometry{Rects: []image.Rectangle{image.Rect(0, 30, 50, 40)}})
	if m := r.last(); len(m.Regions) != 2 {
		t.Fatalf("expected union of 2 regions, got %+v", m)
	}
	c.Update("screen", false, Geometry{})
	if m := r.last(); len(m.Regions) != 1 || m.Regions[0].Rect != image.Rect(0, 30, 50, 40) {
		t.Fatalf("expected audio region only, got %+v", m)
	}
	if !c.Active() || c.StreamActive("screen") {
		t.Fatalf("unexpected active state")
	}
	c.Update("audio", false, Geometry{})
	if _, clears := r.counts(); clears != 1 {
		t.Fatalf("expected single clear when last stream drops, got %d", clears)
	}
}

func TestController_ToneDoesNotBlockAndFailuresSwallowed(t *testing.T) {
	tone := &countTone{err: errors.New("no device"), block: make(chan struct{})}
	c := NewController(&recRenderer{}, tone, StyleOpaque, nil)
	done := make(chan struct{})
	go func() {
		c.Update("screen", true, roiGeom())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("update blocked on tone playback")
	}
	close(tone.block)
	waitForTones(t, tone, 1)
	deadline := time.Now().Add(time.Second)
	for c.ToneFailures() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.ToneFailures() != 1 {
		t.Fatalf("expected failure counted, got %d", c.ToneFailures())
	}
}

func TestController_TonePanicRecovered(t *testing.T) {
	c := NewController(nil, ToneFunc(func() error { panic("driver") }), StyleOpaque, nil)
	c.Update("audio", true, roiGeom())
	deadline := time.Now().Add(time.Second)
	for c.ToneFailures() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.ToneFailures() != 1 {
		t.Fatalf("expected recovered panic counted")
	}
}

func TestComputeGeometry(t *testing.T) {
	roi := image.Rect(100, 50, 200, 70)
	boxes := []image.Rectangle{image.Rect(0, 0, 30, 10), image.Rect(90, 15, 150, 30)}
	g := ComputeGeometry(ModeLines, roi, boxes, nil, roi.Min)
	if len(g.Rects) != 2 || g.Rects[0] != image.Rect(100, 50, 130, 60) || g.Rects[1] != image.Rect(190, 65, 200, 70) {
		t.Fatalf("unexpected line geometry %v", g.Rects)
	}
	g = ComputeGeometry(ModeROI, roi, boxes, nil, roi.Min)
	if len(g.Rects) != 1 || g.Rects[0] != roi {
		t.Fatalf("expected roi geometry, got %v", g.Rects)
	}
	g = ComputeGeometry(ModeLines, roi, nil, nil, roi.Min)
	if len(g.Rects) != 1 || g.Rects[0] != roi {
		t.Fatalf("expected fallback to roi, got %v", g.Rects)
	}
}
