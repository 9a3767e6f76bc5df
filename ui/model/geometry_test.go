package model

import (
	"image"
	"testing"
)

func TestParseGeometry(t *testing.T) {
	tests := []struct {
		in   string
		want image.Rectangle
		ok   bool
	}{
		{"100x20+0+0", image.Rect(0, 0, 100, 20), true},
		{" 640x90+-10+800\n", image.Rect(-10, 800, 630, 890), true},
		{"0x20+0+0", image.Rectangle{}, false},
		{"garbage", image.Rectangle{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseGeometry(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseGeometry(%q): expected %v/%v, got %v/%v", tt.in, tt.want, tt.ok, got, ok)
		}
	}
}

func TestDefaultSelectionRoundTripsThroughGeometry(t *testing.T) {
	sel := DefaultSelection(image.Rect(0, 0, 1920, 1080))
	if sel != image.Rect(320, 804, 1600, 924) {
		t.Fatalf("unexpected default selection %v", sel)
	}
	got, ok := ParseGeometry(FormatGeometry(sel))
	if !ok || got != sel {
		t.Fatalf("expected %v, got %v", sel, got)
	}
}
