package view

import (
	"fmt"
	"time"

	//lint:ignore ST1001 Dot import for concise Tk widget DSL.
	. "modernc.org/tk9.0"
)

// SessionStats shows monitoring durations and mask figures.
type SessionStats interface {
	SetSession(d time.Duration)
	SetTotal(d time.Duration)
	SetMasked(d time.Duration, episodes uint64)
}

type sessionStats struct {
	sessionLbl *LabelWidget
	totalLbl   *LabelWidget
	maskedLbl  *LabelWidget
}

// NewSessionStats creates the labels at (row, startCol..startCol+2).
// If parent is nil, labels are positioned relative to the App root.
func NewSessionStats(parent *FrameWidget, row, startCol int) SessionStats {
	s := &sessionStats{sessionLbl: Label(Width(14)), totalLbl: Label(Width(14)), maskedLbl: Label(Width(22))}
	for i, l := range []*LabelWidget{s.sessionLbl, s.totalLbl, s.maskedLbl} {
		if parent != nil {
			Grid(l, In(parent), Row(row), Column(startCol+i), Sticky("w"), Padx("0.2m"))
		} else {
			Grid(l, Row(row), Column(startCol+i), Sticky("w"), Padx("0.2m"))
		}
	}
	s.sessionLbl.Configure(Txt("Session: 00:00"))
	s.totalLbl.Configure(Txt("Total: 00:00"))
	s.maskedLbl.Configure(Txt("Masked: 00:00 (0)"))
	return s
}

func (s *sessionStats) SetSession(d time.Duration) {
	if s == nil || s.sessionLbl == nil {
		return
	}
	s.sessionLbl.Configure(Txt("Session: " + clock(d)))
}

func (s *sessionStats) SetTotal(d time.Duration) {
	if s == nil || s.totalLbl == nil {
		return
	}
	s.totalLbl.Configure(Txt("Total: " + clock(d)))
}

// SetMasked shows total masked time and the number of mask episodes.
func (s *sessionStats) SetMasked(d time.Duration, episodes uint64) {
	if s == nil || s.maskedLbl == nil {
		return
	}
	s.maskedLbl.Configure(Txt(fmt.Sprintf("Masked: %s (%d)", clock(d), episodes)))
}

func clock(d time.Duration) string {
	seconds := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
