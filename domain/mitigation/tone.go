package mitigation

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

// BeepTone plays a short sine tone through the default audio device.
// The speaker is opened lazily on the first Play.
type BeepTone struct {
	Frequency float64
	Duration  time.Duration

	once    sync.Once
	initErr error
	buf     *beep.Buffer
}

func NewBeepTone(freq float64, d time.Duration) *BeepTone {
	if freq <= 0 {
		freq = 880
	}
	if d <= 0 {
		d = 250 * time.Millisecond
	}
	return &BeepTone{Frequency: freq, Duration: d}
}

func (t *BeepTone) init() error {
	sr := beep.SampleRate(44100)
	sine, err := generators.SineTone(sr, t.Frequency)
	if err != nil {
		return fmt.Errorf("sine tone: %w", err)
	}
	t.buf = beep.NewBuffer(beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2})
	t.buf.Append(beep.Take(sr.N(t.Duration), sine))
	if err := speaker.Init(sr, sr.N(50*time.Millisecond)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	return nil
}

// Play blocks until the tone has been handed to the device and finished.
func (t *BeepTone) Play() error {
	t.once.Do(func() { t.initErr = t.init() })
	if t.initErr != nil {
		return t.initErr
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(t.buf.Streamer(0, t.buf.Len()), beep.Callback(func() { close(done) })))
	select {
	case <-done:
	case <-time.After(t.Duration + time.Second):
	}
	return nil
}
