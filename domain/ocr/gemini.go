package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/soocke/guard-overlay-go/domain/capture"
)

const geminiInstruction = `You are an OCR engine for chat overlays. Return every visible text line of the image as JSON:
{"lines":[{"text":"...","box":[x,y,width,height]}]}
Coordinates are pixels relative to the image's top-left corner. Keep lines top to bottom. Return {"lines":[]} when there is no text.`

// Gemini recognizes text lines through the Gemini vision API.
type Gemini struct {
	APIKey string
	Model  string
}

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{APIKey: strings.TrimSpace(apiKey), Model: strings.TrimSpace(model)}
}

func (g *Gemini) Recognize(ctx context.Context, res *capture.CaptureResult) ([]Line, error) {
	if emptyCapture(res) {
		return []Line{}, nil
	}
	if g.APIKey == "" {
		return nil, errors.New("gemini ocr: api key is empty")
	}
	var png bytes.Buffer
	if err := imaging.Encode(&png, res.Image, imaging.PNG); err != nil {
		return nil, fmt.Errorf("gemini ocr: encode frame: %w", err)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(geminiInstruction)}}
	parts := []genai.Part{
		genai.Text("Extract the text lines."),
		&genai.Blob{MIMEType: "image/png", Data: png.Bytes()},
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return ParseGeminiLines(FirstText(resp), res.Image.Bounds())
	}
	return nil, lastErr
}

type geminiLines struct {
	Lines []struct {
		Text string `json:"text"`
		Box  []int  `json:"box"`
	} `json:"lines"`
}

// ParseGeminiLines decodes the model's JSON reply into lines clipped to bounds.
func ParseGeminiLines(txt string, bounds image.Rectangle) ([]Line, error) {
	txt = stripCodeFences(strings.TrimSpace(txt))
	if txt == "" {
		return []Line{}, nil
	}
	var out geminiLines
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		return nil, fmt.Errorf("gemini ocr: bad JSON: %w", err)
	}
	lines := make([]Line, 0, len(out.Lines))
	for _, l := range out.Lines {
		var box image.Rectangle
		if len(l.Box) == 4 {
			box = image.Rect(l.Box[0], l.Box[1], l.Box[0]+l.Box[2], l.Box[1]+l.Box[3])
		} else {
			box = bounds
		}
		lines = append(lines, Line{Text: strings.TrimSpace(l.Text), Box: box, Confidence: 1})
	}
	return ClampLines(lines, bounds), nil
}

// FirstText returns the first text part of a Gemini response.
func FirstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func ptrFloat32(v float32) *float32 { return &v }
