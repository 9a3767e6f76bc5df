package server

import (
	"time"

	"github.com/soocke/guard-overlay-go/domain/capture"
	"github.com/soocke/guard-overlay-go/domain/pipeline"
)

// Status is the /status payload.
type Status struct {
	Uptime          string         `json:"uptime"`
	Streams         []StreamStatus `json:"streams"`
	MaskActive      bool           `json:"mask_active"`
	Episodes        uint64         `json:"episodes"`
	ROI             capture.ROI    `json:"roi"`
	Capture         CaptureStatus  `json:"capture"`
	RemoteURL       string         `json:"remote_url,omitempty"`
	RemoteConnected bool           `json:"remote_connected"`
	EventsWritten   int            `json:"events_written"`
}

// StreamStatus mirrors pipeline.Stats for JSON.
type StreamStatus struct {
	Name       string  `json:"name"`
	Stage      string  `json:"stage"`
	FaultCode  string  `json:"fault_code,omitempty"`
	Fault      string  `json:"fault,omitempty"`
	Ticks      uint64  `json:"ticks"`
	Dropped    uint64  `json:"dropped"`
	Skipped    uint64  `json:"skipped"`
	Cycles     uint64  `json:"cycles"`
	Failures   uint64  `json:"failures"`
	Flagged    uint64  `json:"flagged"`
	GateActive bool    `json:"gate_active"`
	LastScore  float64 `json:"last_score"`
}

// CaptureStatus mirrors capture.CaptureStats for JSON.
type CaptureStatus struct {
	Captures     uint64  `json:"captures"`
	Skipped      uint64  `json:"skipped"`
	Failures     uint64  `json:"failures"`
	AvgCaptureMS float64 `json:"avg_capture_ms"`
	LastCapture  string  `json:"last_capture,omitempty"`
}

func StreamStatusFrom(st pipeline.Stats) StreamStatus {
	out := StreamStatus{
		Name:       st.Stream,
		Stage:      st.Stage,
		Ticks:      st.Ticks,
		Dropped:    st.Dropped,
		Skipped:    st.Skipped,
		Cycles:     st.Cycles,
		Failures:   st.Failures,
		Flagged:    st.Flagged,
		GateActive: st.GateActive,
		LastScore:  st.LastScore,
	}
	if st.Fault != nil {
		out.FaultCode = st.Fault.Code.String()
		out.Fault = st.Fault.Message
	}
	return out
}

func CaptureStatusFrom(st capture.CaptureStats) CaptureStatus {
	out := CaptureStatus{
		Captures:     st.Captures,
		Skipped:      st.Skipped,
		Failures:     st.Failures,
		AvgCaptureMS: float64(st.AvgCapture) / float64(time.Millisecond),
	}
	if !st.LastCapture.IsZero() {
		out.LastCapture = st.LastCapture.UTC().Format(time.RFC3339)
	}
	return out
}
