package presenter

import "time"

// Loop aggregates feature presenters and drives periodic updates.
//
// It calls Tick/ProcessFrame on the sub-presenters and invokes a
// scheduler callback. The zero value is usable (methods are nil-safe).
type Loop struct {
	Session  *SessionPresenter
	Stage    *StagePresenter
	Preview  *PreviewPresenter
	Mask     *MaskPresenter
	Schedule func()
}

func NewLoop(sess *SessionPresenter, stage *StagePresenter, preview *PreviewPresenter, mask *MaskPresenter, schedule func()) *Loop {
	return &Loop{Session: sess, Stage: stage, Preview: preview, Mask: mask, Schedule: schedule}
}

func (l *Loop) Tick() {
	if l == nil {
		return
	}
	now := time.Now()
	// The mask goes first so a rising edge is painted before anything else redraws.
	if l.Mask != nil {
		l.Mask.Tick(now)
	}
	if l.Stage != nil {
		l.Stage.Tick(now)
	}
	if l.Session != nil {
		l.Session.Tick(now)
	}
	if l.Preview != nil {
		l.Preview.ProcessFrame()
	}
	if l.Schedule != nil {
		l.Schedule()
	}
}
