package gate

import "testing"

func TestGate_HysteresisSequence(t *testing.T) {
	g := New(0.7, 0.4)
	steps := []struct {
		score   float64
		active  bool
		changed bool
	}{
		{0.9, true, true},
		{0.5, true, false},
		{0.5, true, false},
		{0.3, false, true},
		{0.5, false, false},
		{0.69, false, false},
		{0.7, true, true},
		{0.4, true, false},
		{0.39, false, true},
	}
	for i, s := range steps {
		active, changed := g.Update(s.score)
		if active != s.active || changed != s.changed {
			t.Fatalf("step %d score %v: expected (%v,%v), got (%v,%v)", i, s.score, s.active, s.changed, active, changed)
		}
	}
	if g.Last() != 0.39 {
		t.Fatalf("expected last score 0.39, got %v", g.Last())
	}
}

func TestGate_InvalidThresholdsFallBack(t *testing.T) {
	for _, tt := range []struct{ on, off float64 }{{0.3, 0.5}, {0, 0}, {1.5, 0.2}, {0.5, 0.5}} {
		on, off := New(tt.on, tt.off).Thresholds()
		if on != DefaultOn || off != DefaultOff {
			t.Fatalf("New(%v,%v): expected defaults, got %v/%v", tt.on, tt.off, on, off)
		}
	}
}

func TestGate_SetThresholdsKeepsLatch(t *testing.T) {
	g := New(0.7, 0.4)
	g.Update(0.8)
	g.SetThresholds(0.9, 0.6)
	if !g.Active() {
		t.Fatalf("expected latch kept across threshold change")
	}
	if active, _ := g.Update(0.5); active {
		t.Fatalf("expected new off threshold to apply")
	}
	g.Update(0.95)
	g.Reset()
	if g.Active() || g.Last() != 0 {
		t.Fatalf("expected reset latch")
	}
}
