package moderation

import (
	"image"

	"github.com/soocke/guard-overlay-go/domain/ocr"
)

// Websocket event types of the moderation protocol.
const (
	EventOCRLines = "ocr_lines"
	EventToxLines = "tox_lines"
	EventError    = "error"
)

// WireBox is a bounding box on the wire.
type WireBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WireLine is one {text, bbox} entry.
type WireLine struct {
	Text string  `json:"text"`
	BBox WireBox `json:"bbox"`
}

// Envelope carries both requests and replies; ID correlates them.
type Envelope struct {
	Type    string     `json:"type"`
	ID      string     `json:"id,omitempty"`
	Lines   []WireLine `json:"lines,omitempty"`
	Indices []int      `json:"indices,omitempty"`
	Score   float64    `json:"score,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// RemoteVerdict is the service's answer for a batch.
type RemoteVerdict struct {
	Indices []int   `json:"indices"`
	Score   float64 `json:"score"`
}

func ToWire(lines []ocr.Line) []WireLine {
	out := make([]WireLine, len(lines))
	for i, l := range lines {
		out[i] = WireLine{Text: l.Text, BBox: WireBox{X: l.Box.Min.X, Y: l.Box.Min.Y, Width: l.Box.Dx(), Height: l.Box.Dy()}}
	}
	return out
}

func FromWire(lines []WireLine) []ocr.Line {
	out := make([]ocr.Line, len(lines))
	for i, l := range lines {
		b := l.BBox
		out[i] = ocr.Line{Text: l.Text, Box: image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height), Confidence: 1}
	}
	return out
}
