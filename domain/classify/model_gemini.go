package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiModerationInstruction = `You moderate short chat and subtitle lines, mostly Korean.
Decide whether the line is abusive, hateful, harassing or sexually explicit.
Reply with JSON only: {"harmful":true|false,"confidence":0..1,"label":"short category"}.`

// GeminiJudge asks a Gemini model for a verdict. The client is created lazily
// and reused across calls.
type GeminiJudge struct {
	APIKey string
	Model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiJudge(apiKey, model string) *GeminiJudge {
	return &GeminiJudge{APIKey: strings.TrimSpace(apiKey), Model: strings.TrimSpace(model)}
}

func (g *GeminiJudge) Name() string { return "gemini" }

func (g *GeminiJudge) Judge(ctx context.Context, text string) (ModelVerdict, error) {
	if g.APIKey == "" {
		return ModelVerdict{}, errors.New("gemini judge: api key is empty")
	}
	cl, err := g.clientFor(ctx)
	if err != nil {
		return ModelVerdict{}, err
	}
	m := cl.GenerativeModel(g.Model)
	temp := float32(0)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(geminiModerationInstruction)}}
	resp, err := m.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return ModelVerdict{}, fmt.Errorf("gemini judge: %w", err)
	}
	return ParseModelVerdict(firstText(resp))
}

// Close releases the underlying client.
func (g *GeminiJudge) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

func (g *GeminiJudge) clientFor(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return nil, err
	}
	g.client = cl
	return cl, nil
}

// ParseModelVerdict decodes a {"harmful","confidence","label"} reply.
func ParseModelVerdict(txt string) (ModelVerdict, error) {
	txt = strings.TrimSpace(txt)
	txt = strings.TrimPrefix(txt, "```json")
	txt = strings.TrimPrefix(txt, "```")
	txt = strings.TrimSuffix(txt, "```")
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return ModelVerdict{}, errors.New("model verdict: empty response")
	}
	var out struct {
		Harmful    bool    `json:"harmful"`
		Confidence float64 `json:"confidence"`
		Label      string  `json:"label"`
	}
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		return ModelVerdict{}, fmt.Errorf("model verdict: bad JSON: %w", err)
	}
	return ModelVerdict{Harmful: out.Harmful, Confidence: clamp01(out.Confidence), Label: out.Label}, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
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
