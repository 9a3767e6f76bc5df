package model

import (
	"sync/atomic"
)

// MonitorModel tracks whether screen and audio monitoring are enabled. The
// zero value has both streams disabled and is usable.
// Concurrency-safe via atomic Bool because UI callbacks and server status reads may race.
type MonitorModel struct {
	screen atomic.Bool
	audio  atomic.Bool
}

// Enabled reports whether any stream is enabled.
func (m *MonitorModel) Enabled() bool {
	if m == nil {
		return false
	}
	return m.screen.Load() || m.audio.Load()
}

func (m *MonitorModel) ScreenEnabled() bool {
	if m == nil {
		return false
	}
	return m.screen.Load()
}

func (m *MonitorModel) AudioEnabled() bool {
	if m == nil {
		return false
	}
	return m.audio.Load()
}

// SetEnabled stores both flags at once.
func (m *MonitorModel) SetEnabled(b bool) {
	m.SetScreen(b)
	m.SetAudio(b)
}

func (m *MonitorModel) SetScreen(b bool) {
	if m == nil {
		return
	}
	m.screen.Store(b)
}

func (m *MonitorModel) SetAudio(b bool) {
	if m == nil {
		return
	}
	m.audio.Store(b)
}
