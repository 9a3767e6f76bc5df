package presenter

import (
	"time"

	"github.com/soocke/guard-overlay-go/ui/model"
)

// MonitorEnabledModel reports whether monitoring is enabled.
type MonitorEnabledModel interface{ Enabled() bool }

// MaskState reports the mitigation controller's state.
type MaskState interface {
	Active() bool
	Episodes() uint64
}

// SessionView displays formatted session durations and mask statistics.
type SessionView interface {
	SetSession(session, total time.Duration)
	SetMasked(masked time.Duration, episodes uint64)
}

// SessionPresenter formats session and mask figures from the model to the view.
type SessionPresenter struct {
	sess *model.SessionModel
	mon  MonitorEnabledModel
	mask MaskState
	view SessionView
}

// NewSessionPresenter returns a new SessionPresenter. mask may be nil.
func NewSessionPresenter(sess *model.SessionModel, mon MonitorEnabledModel, mask MaskState, view SessionView) *SessionPresenter {
	return &SessionPresenter{sess: sess, mon: mon, mask: mask, view: view}
}

// Tick advances the session model and pushes values to the view.
func (p *SessionPresenter) Tick(now time.Time) {
	if p == nil || p.sess == nil || p.mon == nil || p.view == nil {
		return
	}
	p.sess.OnTick(p.mon.Enabled(), now)
	s, t := p.sess.Values()
	p.view.SetSession(s, t)
	if p.mask == nil {
		return
	}
	p.sess.OnMask(p.mask.Active(), now)
	p.view.SetMasked(p.sess.Masked(now), p.mask.Episodes())
}
