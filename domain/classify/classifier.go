package classify

import (
	"context"
	"log/slog"
	"strings"
)

// Verdict is the binary outcome of a judgment.
type Verdict string

const (
	Safe    Verdict = "SAFE"
	Harmful Verdict = "HARMFUL"
)

// Judgment sources.
const (
	SourceWhitelist = "whitelist"
	SourceBlocklist = "blocklist"
	SourceModel     = "model"
	SourceDefault   = "default"
)

// Judgment is a classifier verdict for one text.
type Judgment struct {
	Verdict    Verdict
	Reason     string
	Text       string
	Source     string
	Confidence float64
}

func (j Judgment) Harmful() bool { return j.Verdict == Harmful }

// ModelVerdict is what a model-based judge reports for text no rule matched.
type ModelVerdict struct {
	Harmful    bool
	Confidence float64
	Label      string
}

// ModelJudge is the injected model capability (local or remote).
type ModelJudge interface {
	Name() string
	Judge(ctx context.Context, text string) (ModelVerdict, error)
}

// Classifier applies whitelist, then blocklist, then the optional model.
type Classifier struct {
	rules             *RuleStore
	model             ModelJudge
	keywordConfidence float64
	logger            *slog.Logger
}

// NewClassifier builds a classifier. A nil model makes it rule-only.
func NewClassifier(rules *RuleStore, model ModelJudge, keywordConfidence float64, logger *slog.Logger) *Classifier {
	if rules == nil {
		rules = NewRuleStore("", logger)
	}
	if keywordConfidence <= 0 || keywordConfidence > 1 {
		keywordConfidence = 0.9
	}
	return &Classifier{rules: rules, model: model, keywordConfidence: keywordConfidence, logger: logger}
}

// Judge classifies text against one consistent rule snapshot.
func (c *Classifier) Judge(ctx context.Context, text string) Judgment {
	normalized := Normalize(text)
	if normalized == "" {
		return Judgment{Verdict: Safe, Text: text, Source: SourceDefault}
	}
	rs := c.rules.snapshot()
	for _, t := range rs.whitelist {
		if contains(normalized, t.normalized) {
			return Judgment{Verdict: Safe, Reason: t.word, Text: text, Source: SourceWhitelist, Confidence: 1}
		}
	}
	for _, t := range rs.badwords {
		if contains(normalized, t.normalized) {
			return Judgment{Verdict: Harmful, Reason: t.word, Text: text, Source: SourceBlocklist, Confidence: c.keywordConfidence}
		}
	}
	if c.model == nil {
		return Judgment{Verdict: Safe, Text: text, Source: SourceDefault}
	}
	mv, err := c.model.Judge(ctx, text)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("model judge failed", "model", c.model.Name(), "error", err)
		}
		return Judgment{Verdict: Safe, Text: text, Source: SourceDefault}
	}
	j := Judgment{Verdict: Safe, Text: text, Source: SourceModel, Confidence: clamp01(mv.Confidence), Reason: mv.Label}
	if mv.Harmful {
		j.Verdict = Harmful
	}
	return j
}

// Rules exposes the backing store.
func (c *Classifier) Rules() *RuleStore { return c.rules }

func contains(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
