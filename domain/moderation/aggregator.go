package moderation

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/soocke/guard-overlay-go/domain/classify"
	"github.com/soocke/guard-overlay-go/domain/ocr"
)

// DefaultScoreFloor is the minimum aggregate score once any line is flagged.
const DefaultScoreFloor = 0.5

// SourceRemote marks judgments contributed by the remote service.
const SourceRemote = "remote"

// LineJudge classifies one line of text.
type LineJudge interface {
	Judge(ctx context.Context, text string) classify.Judgment
}

// RemoteModerator is the optional remote verdict service.
type RemoteModerator interface {
	Moderate(ctx context.Context, lines []ocr.Line) (RemoteVerdict, error)
}

// Result is the aggregate verdict over one line batch. Score is nil when the
// batch had no lines at all.
type Result struct {
	Flagged   []int
	Score     *float64
	Judgments []classify.Judgment
	Top       int
	Remote    bool
}

// ScoreValue returns the score, treating "no lines" as 0.
func (r Result) ScoreValue() float64 {
	if r.Score == nil {
		return 0
	}
	return *r.Score
}

// TopJudgment returns the judgment of the line that set the score; ties go to
// the lowest index.
func (r Result) TopJudgment() (classify.Judgment, bool) {
	if r.Top < 0 || r.Top >= len(r.Judgments) {
		return classify.Judgment{}, false
	}
	return r.Judgments[r.Top], true
}

// Harmful returns the judgments of flagged lines in index order.
func (r Result) Harmful() []classify.Judgment {
	out := make([]classify.Judgment, 0, len(r.Flagged))
	for _, i := range r.Flagged {
		if i >= 0 && i < len(r.Judgments) {
			out = append(out, r.Judgments[i])
		}
	}
	return out
}

// Aggregator flags lines and computes the batch score.
type Aggregator struct {
	judge  LineJudge
	remote RemoteModerator
	floor  float64
	logger *slog.Logger
}

// NewAggregator builds an aggregator. remote may be nil.
func NewAggregator(judge LineJudge, remote RemoteModerator, floor float64, logger *slog.Logger) *Aggregator {
	if floor <= 0 || floor > 1 {
		floor = DefaultScoreFloor
	}
	return &Aggregator{judge: judge, remote: remote, floor: floor, logger: logger}
}

// Aggregate judges lines in index order. The score is the highest confidence
// among flagged lines, raised to the floor; 0 when nothing is flagged.
func (a *Aggregator) Aggregate(ctx context.Context, lines []ocr.Line) Result {
	if len(lines) == 0 {
		return Result{Flagged: []int{}, Judgments: []classify.Judgment{}, Top: -1}
	}
	res := Result{Flagged: []int{}, Judgments: make([]classify.Judgment, len(lines)), Top: -1}
	flagged := make(map[int]bool, len(lines))
	best := 0.0
	note := func(i int, conf float64) {
		if !flagged[i] {
			flagged[i] = true
			res.Flagged = append(res.Flagged, i)
		}
		if res.Top < 0 || conf > best || (conf == best && i < res.Top) {
			best, res.Top = conf, i
		}
	}
	for i, l := range lines {
		j := classify.Judgment{Verdict: classify.Safe, Text: l.Text, Source: classify.SourceDefault}
		if a.judge != nil {
			j = a.judge.Judge(ctx, l.Text)
		}
		res.Judgments[i] = j
		if j.Harmful() {
			note(i, j.Confidence)
		}
	}
	if a.remote != nil {
		rv, err := a.remote.Moderate(ctx, lines)
		switch {
		case err == nil:
			res.Remote = true
			for _, i := range rv.Indices {
				if i < 0 || i >= len(lines) {
					continue
				}
				if !res.Judgments[i].Harmful() {
					res.Judgments[i] = classify.Judgment{
						Verdict:    classify.Harmful,
						Reason:     SourceRemote,
						Text:       lines[i].Text,
						Source:     SourceRemote,
						Confidence: rv.Score,
					}
				}
				note(i, rv.Score)
			}
		case errors.Is(err, ErrDisconnected), errors.Is(err, ErrRateLimited):
		default:
			if a.logger != nil {
				a.logger.Warn("remote moderation", "error", err)
			}
		}
	}
	sort.Ints(res.Flagged)
	score := 0.0
	if len(res.Flagged) > 0 {
		score = best
		if score < a.floor {
			score = a.floor
		}
		if score > 1 {
			score = 1
		}
	}
	res.Score = &score
	return res
}
