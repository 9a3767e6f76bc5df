package model

import (
	"time"
)

// SessionModel tracks the current monitoring session, the accumulated
// monitoring time and how long the mask has been up in total.
// It is decoupled from the UI; presenters should poll Values() and update views.
// The zero value is ready to use.
type SessionModel struct {
	active              bool
	captureStart        time.Time
	lastSessionDuration time.Duration
	accumulated         time.Duration

	masked      bool
	maskStart   time.Time
	maskedTotal time.Duration
}

// NewSessionModel returns a pointer to a ready-to-use SessionModel.
func NewSessionModel() *SessionModel { return &SessionModel{} }

// OnTick updates the model using the current monitoring state and timestamp.
// Call periodically (for example, from a presenter tick).
func (m *SessionModel) OnTick(monitoring bool, now time.Time) {
	if m == nil {
		return
	}
	if monitoring {
		if !m.active { // transition off -> on
			m.active = true
			m.captureStart = now
			m.lastSessionDuration = 0
		}
		m.lastSessionDuration = now.Sub(m.captureStart)
	} else if m.active { // transition on -> off
		m.lastSessionDuration = now.Sub(m.captureStart)
		m.accumulated += m.lastSessionDuration
		m.active = false
	}
}

// OnMask records whether the mask is currently shown.
func (m *SessionModel) OnMask(masked bool, now time.Time) {
	if m == nil {
		return
	}
	switch {
	case masked && !m.masked:
		m.masked = true
		m.maskStart = now
	case !masked && m.masked:
		m.maskedTotal += now.Sub(m.maskStart)
		m.masked = false
	}
}

// Values returns the current session duration and the total accumulated duration.
// The total includes the ongoing session when active.
func (m *SessionModel) Values() (session, total time.Duration) {
	if m == nil {
		return 0, 0
	}
	session = m.lastSessionDuration
	total = m.accumulated
	if m.active {
		total += session
	}
	return
}

// Masked returns the total time the mask was shown, including an ongoing episode.
func (m *SessionModel) Masked(now time.Time) time.Duration {
	if m == nil {
		return 0
	}
	d := m.maskedTotal
	if m.masked {
		d += now.Sub(m.maskStart)
	}
	return d
}
