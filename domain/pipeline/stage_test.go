package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/soocke/guard-overlay-go/domain/capture"
)

type transitionRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *transitionRecorder) listen(_ string, prev, next Stage, _ *Fault) {
	r.mu.Lock()
	r.steps = append(r.steps, prev.String()+"->"+next.String())
	r.mu.Unlock()
}

func (r *transitionRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

func waitForStage(t *testing.T, m *StageMachine, want Stage, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Current() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for stage %s (current %s)", want, m.Current())
}

func TestStageMachine_FullCycle(t *testing.T) {
	m := NewStageMachine("screen", time.Second, nil)
	rec := &transitionRecorder{}
	m.AddListener(rec.listen)
	ticket, ok := m.TryBegin()
	if !ok {
		t.Fatalf("expected begin from idle")
	}
	if _, ok := m.TryBegin(); ok {
		t.Fatalf("expected second begin to be refused")
	}
	for _, s := range []Stage{StageRecognizing, StageClassifying, StageMasking} {
		if !m.Advance(ticket, s) {
			t.Fatalf("advance to %s refused", s)
		}
	}
	if !m.Finish(ticket) {
		t.Fatalf("finish refused")
	}
	want := []string{"idle->capturing", "capturing->recognizing", "recognizing->classifying", "classifying->masking", "masking->idle"}
	got := rec.snapshot()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestStageMachine_FailCoolsDownThenIdle(t *testing.T) {
	m := NewStageMachine("audio", 20*time.Millisecond, nil)
	m.backoff = func(int) time.Duration { return 0 }
	ticket, _ := m.TryBegin()
	m.Advance(ticket, StageRecognizing)
	wait, ok := m.Fail(ticket, fmt.Errorf("stt: %w", os.ErrPermission))
	if !ok || wait != 20*time.Millisecond {
		t.Fatalf("expected 20ms cooldown, got %v %v", wait, ok)
	}
	if m.Current() != StageError {
		t.Fatalf("expected error stage, got %s", m.Current())
	}
	if f := m.LastFault(); f == nil || f.Code != FaultPermissionDenied {
		t.Fatalf("unexpected fault %+v", f)
	}
	if _, ok := m.TryBegin(); ok {
		t.Fatalf("expected begin refused during cooldown")
	}
	waitForStage(t, m, StageIdle, time.Second)
	ticket, ok = m.TryBegin()
	if !ok {
		t.Fatalf("expected begin after cooldown")
	}
	m.Finish(ticket)
	if m.LastFault() != nil {
		t.Fatalf("expected fault cleared after clean cycle")
	}
}

func TestStageMachine_BackoffGrowsAndResets(t *testing.T) {
	m := NewStageMachine("screen", time.Millisecond, nil)
	var seen []int
	m.backoff = func(a int) time.Duration { seen = append(seen, a); return time.Millisecond }
	for i := 0; i < 3; i++ {
		ticket, _ := m.TryBegin()
		m.Fail(ticket, errors.New("x"))
		waitForStage(t, m, StageIdle, time.Second)
	}
	ticket, _ := m.TryBegin()
	m.Finish(ticket)
	ticket, _ = m.TryBegin()
	m.Fail(ticket, errors.New("x"))
	if fmt.Sprint(seen) != "[0 1 2 0]" {
		t.Fatalf("unexpected attempt sequence %v", seen)
	}
}

func TestStageMachine_ResetInvalidatesTicket(t *testing.T) {
	m := NewStageMachine("screen", time.Second, nil)
	ticket, _ := m.TryBegin()
	m.Advance(ticket, StageRecognizing)
	m.Reset()
	if m.Advance(ticket, StageClassifying) || m.Finish(ticket) {
		t.Fatalf("stale ticket must be ignored")
	}
	if _, ok := m.Fail(ticket, errors.New("late")); ok {
		t.Fatalf("stale failure must be ignored")
	}
	if m.Current() != StageIdle || m.LastFault() != nil {
		t.Fatalf("expected idle without fault, got %s", m.Current())
	}
}

func TestStageMachine_HoldKeepsMasking(t *testing.T) {
	m := NewStageMachine("screen", time.Second, nil)
	ticket, _ := m.TryBegin()
	m.Advance(ticket, StageRecognizing)
	m.Advance(ticket, StageClassifying)
	m.Advance(ticket, StageMasking)
	m.Hold(ticket, 30*time.Millisecond)
	if _, ok := m.TryBegin(); ok || m.Current() != StageMasking {
		t.Fatalf("expected masking hold")
	}
	waitForStage(t, m, StageIdle, time.Second)
}

func TestClassifyFault(t *testing.T) {
	tests := []struct {
		err  error
		want FaultCode
	}{
		{fmt.Errorf("open: %w", os.ErrPermission), FaultPermissionDenied},
		{fmt.Errorf("run: %w", exec.ErrNotFound), FaultNotFound},
		{capture.ErrNoDisplay, FaultNotFound},
		{context.Canceled, FaultAborted},
		{errors.New("device busy"), FaultNotReadable},
		{errors.New("mystery"), FaultGeneric},
	}
	for _, tt := range tests {
		if got := ClassifyFault(tt.err); got != tt.want {
			t.Fatalf("ClassifyFault(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
	if BackoffFor(0) != time.Second || BackoffFor(2) != 7*time.Second || BackoffFor(9) != 7*time.Second {
		t.Fatalf("unexpected backoff table")
	}
}
