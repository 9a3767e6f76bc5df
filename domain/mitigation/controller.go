// Package mitigation turns gate edges into a visible mask and an alert tone.
package mitigation

import (
	"image"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
)

// Style selects how masked regions are painted.
type Style string

const (
	StyleOpaque Style = "opaque"
	StyleMosaic Style = "mosaic"
)

// ParseStyle falls back to opaque for unknown values.
func ParseStyle(s string) Style {
	if Style(s) == StyleMosaic {
		return StyleMosaic
	}
	return StyleOpaque
}

// Geometry is what one stream wants covered. Rects are in screen pixels.
// Snapshot, when present, is the last captured ROI image whose top-left
// sits at Origin; mosaic rendering pixelates it.
type Geometry struct {
	Rects    []image.Rectangle
	Snapshot *image.NRGBA
	Origin   image.Point
}

// Mask is the union of all active streams' geometry.
type Mask struct {
	Style   Style
	Regions []Region
}

// Region is one rectangle to cover, optionally with the pixels under it.
type Region struct {
	Rect     image.Rectangle
	Snapshot *image.NRGBA
	Origin   image.Point
}

// Renderer paints the mask. Implementations are called from the gate's
// goroutine and must hand off to their display thread without blocking.
type Renderer interface {
	Show(m Mask)
	Clear()
}

// TonePlayer plays one alert.
type TonePlayer interface {
	Play() error
}

// ToneFunc adapts a function to TonePlayer.
type ToneFunc func() error

func (f ToneFunc) Play() error { return f() }

// Controller owns the overlay for both streams. The mask is shown while any
// stream is active and cleared when the last one deactivates.
type Controller struct {
	mu       sync.Mutex
	renderer Renderer
	tone     TonePlayer
	style    Style
	logger   *slog.Logger
	active   map[string]Geometry
	toneOn   bool

	episodes  atomic.Uint64
	tones     atomic.Uint64
	toneFails atomic.Uint64
}

func NewController(renderer Renderer, tone TonePlayer, style Style, logger *slog.Logger) *Controller {
	return &Controller{
		renderer: renderer,
		tone:     tone,
		style:    style,
		logger:   logger,
		active:   make(map[string]Geometry),
		toneOn:   true,
	}
}

// SetStyle changes the paint style for subsequent renders.
func (c *Controller) SetStyle(s Style) {
	c.mu.Lock()
	c.style = s
	c.mu.Unlock()
}

// SetToneEnabled toggles the alert tone.
func (c *Controller) SetToneEnabled(on bool) {
	c.mu.Lock()
	c.toneOn = on
	c.mu.Unlock()
}

// Update applies one gate decision for stream. A rising edge renders the mask
// and plays one tone; repeated active updates only re-render if the geometry
// moved; a falling edge clears the stream's share of the mask.
func (c *Controller) Update(stream string, active bool, g Geometry) {
	c.mu.Lock()
	prev, was := c.active[stream]
	var playTone bool
	switch {
	case active && !was:
		c.active[stream] = g
		c.episodes.Add(1)
		playTone = c.toneOn && c.tone != nil
		c.renderLocked()
	case active && was:
		if !sameRects(prev.Rects, g.Rects) || prev.Snapshot != g.Snapshot {
			c.active[stream] = g
			c.renderLocked()
		}
	case !active && was:
		delete(c.active, stream)
		c.renderLocked()
	}
	c.mu.Unlock()

	if playTone {
		c.tones.Add(1)
		go c.playTone(stream)
	}
	if c.logger != nil && active != was {
		c.logger.Info("mitigation", "stream", stream, "active", active, "rects", len(g.Rects))
	}
}

// Active reports whether any stream currently holds the mask.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active) > 0
}

// StreamActive reports whether stream holds the mask.
func (c *Controller) StreamActive(stream string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[stream]
	return ok
}

// Episodes counts rising edges across all streams.
func (c *Controller) Episodes() uint64 { return c.episodes.Load() }

// Tones counts tone playbacks started; failures are counted separately.
func (c *Controller) Tones() uint64        { return c.tones.Load() }
func (c *Controller) ToneFailures() uint64 { return c.toneFails.Load() }

// ClearAll drops every stream's mask, used on shutdown.
func (c *Controller) ClearAll() {
	c.mu.Lock()
	had := len(c.active) > 0
	c.active = make(map[string]Geometry)
	if had && c.renderer != nil {
		c.renderer.Clear()
	}
	c.mu.Unlock()
}

func (c *Controller) renderLocked() {
	if c.renderer == nil {
		return
	}
	if len(c.active) == 0 {
		c.renderer.Clear()
		return
	}
	streams := make([]string, 0, len(c.active))
	for s := range c.active {
		streams = append(streams, s)
	}
	sort.Strings(streams)
	m := Mask{Style: c.style}
	for _, s := range streams {
		g := c.active[s]
		for _, r := range g.Rects {
			if r.Empty() {
				continue
			}
			m.Regions = append(m.Regions, Region{Rect: r, Snapshot: g.Snapshot, Origin: g.Origin})
		}
	}
	if len(m.Regions) == 0 {
		c.renderer.Clear()
		return
	}
	c.renderer.Show(m)
}

func (c *Controller) playTone(stream string) {
	defer func() {
		if r := recover(); r != nil {
			c.toneFails.Add(1)
			if c.logger != nil {
				c.logger.Warn("alert tone panic", "stream", stream, "panic", r, "stack", string(debug.Stack()))
			}
		}
	}()
	if err := c.tone.Play(); err != nil {
		c.toneFails.Add(1)
		if c.logger != nil {
			c.logger.Debug("alert tone failed", "stream", stream, "error", err)
		}
	}
}

func sameRects(a, b []image.Rectangle) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
