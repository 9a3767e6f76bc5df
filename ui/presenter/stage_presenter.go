package presenter

import (
	"fmt"
	"sync"
	"time"

	"github.com/soocke/guard-overlay-go/domain/pipeline"
)

// StageView sets one stream's stage label in the view.
type StageView interface{ SetStageLabel(stream, text string) }

type stageUpdate struct {
	stage pipeline.Stage
	fault *pipeline.Fault
}

// StagePresenter receives stage transitions from the pipeline goroutines and
// reflects the latest one per stream on the UI tick.
type StagePresenter struct {
	view StageView

	mu      sync.Mutex
	pending map[string]stageUpdate
	latest  map[string]string
}

func NewStagePresenter(view StageView) *StagePresenter {
	return &StagePresenter{view: view, pending: map[string]stageUpdate{}, latest: map[string]string{}}
}

// OnStage queues a transition. It matches pipeline.StageListener and runs
// under the stage machine's lock, so it only records.
func (p *StagePresenter) OnStage(stream string, _, next pipeline.Stage, fault *pipeline.Fault) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.pending[stream] = stageUpdate{stage: next, fault: fault}
	p.mu.Unlock()
}

// Tick flushes queued transitions, updating labels whose text changed.
func (p *StagePresenter) Tick(now time.Time) {
	if p == nil || p.view == nil {
		return
	}
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[string]stageUpdate, len(pending))
	p.mu.Unlock()
	for stream, u := range pending {
		text := StageText(u.stage, u.fault)
		if p.latest[stream] == text {
			continue
		}
		p.latest[stream] = text
		p.view.SetStageLabel(stream, text)
	}
}

// StageText renders a stage for display, naming the fault while in error.
func StageText(s pipeline.Stage, f *pipeline.Fault) string {
	if s == pipeline.StageError && f != nil {
		return fmt.Sprintf("%s (%s, retry %s)", s, f.Code, f.RetryIn.Round(100*time.Millisecond))
	}
	return s.String()
}
