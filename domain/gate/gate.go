package gate

import "sync"

const (
	DefaultOn  = 0.7
	DefaultOff = 0.4
)

// Gate is a hysteresis latch over a stream of scores. It turns on at
// score >= on and off at score < off, with on > off.
type Gate struct {
	mu     sync.Mutex
	on     float64
	off    float64
	active bool
	last   float64
}

// New returns an inactive gate. Invalid thresholds fall back to 0.7/0.4.
func New(on, off float64) *Gate {
	g := &Gate{}
	g.SetThresholds(on, off)
	return g
}

// Update feeds one score and reports the resulting state and whether it flipped.
func (g *Gate) Update(score float64) (active, changed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = score
	switch {
	case !g.active && score >= g.on:
		g.active = true
		return true, true
	case g.active && score < g.off:
		g.active = false
		return false, true
	}
	return g.active, false
}

func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Last returns the most recent score fed to the gate.
func (g *Gate) Last() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// SetThresholds replaces both thresholds. The latch state is kept.
func (g *Gate) SetThresholds(on, off float64) {
	if on <= 0 || on > 1 || off < 0 || off >= on {
		on, off = DefaultOn, DefaultOff
	}
	g.mu.Lock()
	g.on, g.off = on, off
	g.mu.Unlock()
}

// Thresholds returns the current on/off pair.
func (g *Gate) Thresholds() (on, off float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.on, g.off
}

// Reset clears the latch.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.active = false
	g.last = 0
	g.mu.Unlock()
}
