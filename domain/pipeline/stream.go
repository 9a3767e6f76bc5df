package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/guard-overlay-go/domain/classify"
	"github.com/soocke/guard-overlay-go/domain/gate"
	"github.com/soocke/guard-overlay-go/domain/mitigation"
	"github.com/soocke/guard-overlay-go/domain/moderation"
	"github.com/soocke/guard-overlay-go/domain/ocr"
)

// Stream names.
const (
	StreamScreen = "screen"
	StreamAudio  = "audio"
)

// Moderator scores a line batch.
type Moderator interface {
	Aggregate(ctx context.Context, lines []ocr.Line) moderation.Result
}

// MaskSink receives gate decisions with the geometry to cover.
type MaskSink interface {
	Update(stream string, active bool, g mitigation.Geometry)
}

// EventSink records harmful judgments.
type EventSink interface {
	Append(stream string, j classify.Judgment) (bool, error)
}

// Deps are the collaborators shared by both streams. Mask and Events may be nil.
type Deps struct {
	Moderator Moderator
	Mask      MaskSink
	Events    EventSink
	Logger    *slog.Logger
}

// Options tune a stream. Zero values take the defaults.
type Options struct {
	Interval      time.Duration
	ErrorCooldown time.Duration
	MaskHold      time.Duration
	GateOn        float64
	GateOff       float64
	MaskMode      mitigation.Mode
}

// Stats is a point-in-time view of one stream.
type Stats struct {
	Stream     string
	Stage      string
	Fault      *Fault
	Ticks      uint64
	Dropped    uint64
	Skipped    uint64
	Cycles     uint64
	Failures   uint64
	Flagged    uint64
	GateActive bool
	LastScore  float64
	LastText   string
}

// core holds what both streams share: the state machine, the gate and the
// classify → gate → mitigate tail of the cycle.
type core struct {
	name   string
	fsm    *StageMachine
	gate   *gate.Gate
	deps   Deps
	logger *slog.Logger

	hold     atomic.Int64
	maskMode atomic.Value

	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	ticks    atomic.Uint64
	dropped  atomic.Uint64
	skipped  atomic.Uint64
	cycles   atomic.Uint64
	failures atomic.Uint64
	flagged  atomic.Uint64
	lastText atomic.Value
}

func newCore(name string, deps Deps, opts Options) *core {
	if opts.MaskHold < 0 {
		opts.MaskHold = 0
	}
	c := &core{
		name:   name,
		fsm:    NewStageMachine(name, opts.ErrorCooldown, deps.Logger),
		gate:   gate.New(opts.GateOn, opts.GateOff),
		deps:   deps,
		logger: deps.Logger,
	}
	c.hold.Store(int64(opts.MaskHold))
	mode := opts.MaskMode
	if mode == "" {
		mode = mitigation.ModeROI
	}
	c.maskMode.Store(mode)
	c.lastText.Store("")
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Machine exposes the stream's state machine for listeners and diagnostics.
func (c *core) Machine() *StageMachine { return c.fsm }

// Gate exposes the stream's hysteresis gate.
func (c *core) Gate() *gate.Gate { return c.gate }

func (c *core) SetMaskHold(d time.Duration) {
	if d >= 0 {
		c.hold.Store(int64(d))
	}
}

func (c *core) SetMaskMode(m mitigation.Mode) { c.maskMode.Store(m) }

func (c *core) mode() mitigation.Mode { return c.maskMode.Load().(mitigation.Mode) }

func (c *core) Stats() Stats {
	return Stats{
		Stream:     c.name,
		Stage:      c.fsm.Current().String(),
		Fault:      c.fsm.LastFault(),
		Ticks:      c.ticks.Load(),
		Dropped:    c.dropped.Load(),
		Skipped:    c.skipped.Load(),
		Cycles:     c.cycles.Load(),
		Failures:   c.failures.Load(),
		Flagged:    c.flagged.Load(),
		GateActive: c.gate.Active(),
		LastScore:  c.gate.Last(),
		LastText:   c.lastText.Load().(string),
	}
}

func (c *core) cycleContext() context.Context {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	return c.ctx
}

// teardown abandons in-flight work and drops this stream's share of the mask.
func (c *core) teardown() {
	c.ctxMu.Lock()
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.ctxMu.Unlock()
	c.fsm.Reset()
	c.gate.Reset()
	if c.deps.Mask != nil {
		c.deps.Mask.Update(c.name, false, mitigation.Geometry{})
	}
}

func (c *core) fail(ticket uint64, err error) {
	c.failures.Add(1)
	c.fsm.Fail(ticket, err)
}

// guard converts a panic inside a cycle into a stage fault.
func (c *core) guard(ticket uint64) {
	if r := recover(); r != nil {
		if c.logger != nil {
			c.logger.Error("pipeline panic", "stream", c.name, "panic", r, "stack", string(debug.Stack()))
		}
		c.fail(ticket, fmt.Errorf("panic: %v", r))
	}
}

// decide runs classify → gate → mitigate for one batch and ends the cycle.
// It reports false when the cycle was abandoned underneath it.
func (c *core) decide(ctx context.Context, ticket uint64, lines []ocr.Line, geometry func(moderation.Result) mitigation.Geometry) (moderation.Result, bool) {
	if !c.fsm.Advance(ticket, StageClassifying) {
		return moderation.Result{}, false
	}
	var res moderation.Result
	if c.deps.Moderator != nil {
		res = c.deps.Moderator.Aggregate(ctx, lines)
	}
	if !c.fsm.Advance(ticket, StageMasking) {
		return res, false
	}
	if h := res.Harmful(); len(h) > 0 {
		c.flagged.Add(uint64(len(h)))
		for _, j := range h {
			if c.deps.Events == nil {
				break
			}
			if _, err := c.deps.Events.Append(c.name, j); err != nil && c.logger != nil {
				c.logger.Warn("event log append", "stream", c.name, "error", err)
			}
		}
		if top, ok := res.TopJudgment(); ok && c.logger != nil {
			c.logger.Info("harmful content", "stream", c.name, "lines", len(h), "score", res.ScoreValue(),
				"top_line", res.Top, "reason", top.Reason, "source", top.Source)
		}
	}
	// The gate and mask only move while the cycle is still current; a
	// teardown racing the event log must win.
	var active, changed bool
	if !c.fsm.Commit(ticket, func() {
		active, changed = c.gate.Update(res.ScoreValue())
		if c.deps.Mask != nil {
			c.deps.Mask.Update(c.name, active, geometry(res))
		}
	}) {
		return res, false
	}
	c.cycles.Add(1)
	if changed && active {
		c.fsm.Hold(ticket, time.Duration(c.hold.Load()))
	} else {
		c.fsm.Finish(ticket)
	}
	return res, true
}
