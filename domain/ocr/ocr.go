package ocr

import (
	"context"
	"image"
	"strings"

	"github.com/soocke/guard-overlay-go/domain/capture"
)

// Line is one recognized text line. Box is in the capture image's coordinate space.
type Line struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Word is a single recognized token; Key identifies the line it belongs to.
type Word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
	Key        string
}

// TextRecognizer converts a capture into ordered text lines.
// Empty input yields an empty slice and no error.
type TextRecognizer interface {
	Recognize(ctx context.Context, res *capture.CaptureResult) ([]Line, error)
}

// Stub recognizes nothing. It stands in when no OCR backend is installed.
type Stub struct{}

func (Stub) Recognize(context.Context, *capture.CaptureResult) ([]Line, error) {
	return []Line{}, nil
}

// GroupWords merges words sharing a Key into lines, in order of first appearance.
// A line's box is the union of its word boxes and its confidence the word mean.
func GroupWords(words []Word) []Line {
	lines := []Line{}
	index := map[string]int{}
	counts := []int{}
	texts := [][]string{}
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		i, ok := index[w.Key]
		if !ok {
			i = len(lines)
			index[w.Key] = i
			lines = append(lines, Line{Box: w.Box})
			counts = append(counts, 0)
			texts = append(texts, nil)
		} else {
			lines[i].Box = lines[i].Box.Union(w.Box)
		}
		texts[i] = append(texts[i], text)
		lines[i].Confidence += w.Confidence
		counts[i]++
	}
	for i := range lines {
		lines[i].Text = strings.Join(texts[i], " ")
		lines[i].Confidence /= float64(counts[i])
	}
	return lines
}

// ClampLines drops lines without text and clips boxes to bounds.
func ClampLines(lines []Line, bounds image.Rectangle) []Line {
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l.Text) == "" {
			continue
		}
		l.Box = l.Box.Intersect(bounds)
		out = append(out, l)
	}
	return out
}

func emptyCapture(res *capture.CaptureResult) bool {
	return res == nil || res.Image == nil || res.Width <= 0 || res.Height <= 0
}
