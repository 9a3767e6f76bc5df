package pipeline

import (
	"log/slog"
	"sync"
	"time"
)

// Stage is the current step of one stream's cycle.
type Stage int

const (
	StageIdle Stage = iota
	StageCapturing
	StageRecognizing
	StageClassifying
	StageMasking
	StageError
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageCapturing:
		return "capturing"
	case StageRecognizing:
		return "recognizing"
	case StageClassifying:
		return "classifying"
	case StageMasking:
		return "masking"
	case StageError:
		return "error"
	default:
		return "unknown"
	}
}

// StageListener is invoked on every transition, with the fault when next is StageError.
type StageListener func(stream string, prev, next Stage, fault *Fault)

// StageMachine serializes one stream's cycles. A cycle starts with TryBegin,
// which hands out a ticket; every later call carries that ticket and is
// ignored once Reset has invalidated it, so late results from an abandoned
// cycle cannot move the machine.
type StageMachine struct {
	mu        sync.Mutex
	stream    string
	stage     Stage
	ticket    uint64
	fault     *Fault
	attempts  int
	cooldown  time.Duration
	backoff   func(attempt int) time.Duration
	timer     *time.Timer
	listeners []StageListener
	logger    *slog.Logger
}

// NewStageMachine starts idle. cooldown is the minimum time spent in StageError.
func NewStageMachine(stream string, cooldown time.Duration, logger *slog.Logger) *StageMachine {
	if cooldown <= 0 {
		cooldown = DefaultErrorCooldown
	}
	return &StageMachine{stream: stream, cooldown: cooldown, backoff: BackoffFor, logger: logger}
}

func (m *StageMachine) AddListener(l StageListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *StageMachine) Current() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

// LastFault returns the most recent fault, or nil after a clean cycle.
func (m *StageMachine) LastFault() *Fault {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fault == nil {
		return nil
	}
	f := *m.fault
	return &f
}

// SetCooldown changes the minimum error cooldown for later faults.
func (m *StageMachine) SetCooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.cooldown = d
	m.mu.Unlock()
}

// TryBegin moves idle to capturing. It returns false, leaving the state
// untouched, when a cycle is already in flight or cooling down.
func (m *StageMachine) TryBegin() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stage != StageIdle {
		return 0, false
	}
	m.ticket++
	m.transition(StageCapturing, nil)
	return m.ticket, true
}

// Advance moves the cycle identified by ticket forward. It reports false
// when the ticket is stale or the machine is not mid-cycle.
func (m *StageMachine) Advance(ticket uint64, next Stage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ownsLocked(ticket) || next == StageError || next == StageIdle {
		return false
	}
	m.transition(next, nil)
	return true
}

// Commit runs fn while ticket still owns the machine, holding the lock so a
// concurrent Reset lands either before fn (fn is skipped) or after it. fn must
// not call back into the machine.
func (m *StageMachine) Commit(ticket uint64, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ownsLocked(ticket) {
		return false
	}
	fn()
	return true
}

// Finish ends a clean cycle and resets the fault backoff.
func (m *StageMachine) Finish(ticket uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ownsLocked(ticket) {
		return false
	}
	m.attempts = 0
	m.fault = nil
	m.transition(StageIdle, nil)
	return true
}

// Abandon returns to idle without recording a fault. Used when a sensor has
// nothing to offer.
func (m *StageMachine) Abandon(ticket uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ownsLocked(ticket) {
		return false
	}
	m.transition(StageIdle, nil)
	return true
}

// Fail moves to StageError and schedules the return to idle after the
// cooldown, stretched by the backoff table for consecutive faults.
func (m *StageMachine) Fail(ticket uint64, err error) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ownsLocked(ticket) {
		return 0, false
	}
	f := NewFault(err)
	f.Attempt = m.attempts
	wait := m.backoff(m.attempts)
	if wait < m.cooldown {
		wait = m.cooldown
	}
	f.RetryIn = wait
	m.attempts++
	m.fault = &f
	m.transition(StageError, &f)
	m.scheduleIdleLocked(ticket, wait)
	return wait, true
}

// Hold keeps the current stage for d before returning to idle; ticks during
// the hold are dropped.
func (m *StageMachine) Hold(ticket uint64, d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ownsLocked(ticket) {
		return false
	}
	m.attempts = 0
	m.fault = nil
	if d <= 0 {
		m.transition(StageIdle, nil)
		return true
	}
	m.scheduleIdleLocked(ticket, d)
	return true
}

// Reset cancels pending timers, invalidates the in-flight ticket and
// returns to idle.
func (m *StageMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.ticket++
	m.attempts = 0
	m.fault = nil
	m.transition(StageIdle, nil)
}

func (m *StageMachine) ownsLocked(ticket uint64) bool {
	return ticket == m.ticket && m.stage != StageIdle && m.timer == nil
}

func (m *StageMachine) scheduleIdleLocked(ticket uint64, d time.Duration) {
	m.stopTimerLocked()
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.timer != t || m.ticket != ticket {
			return
		}
		m.timer = nil
		m.transition(StageIdle, nil)
	})
	m.timer = t
}

func (m *StageMachine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// transition must be called with mu held.
func (m *StageMachine) transition(next Stage, f *Fault) {
	prev := m.stage
	if prev == next {
		return
	}
	m.stage = next
	if m.logger != nil {
		if f != nil {
			m.logger.Warn("pipeline transition", "stream", m.stream, "from", prev.String(), "to", next.String(),
				"fault", f.Code.String(), "error", f.Message, "retry_in", f.RetryIn)
		} else {
			m.logger.Debug("pipeline transition", "stream", m.stream, "from", prev.String(), "to", next.String())
		}
	}
	for _, l := range m.listeners {
		l(m.stream, prev, next, f)
	}
}
