package pipeline

import (
	"context"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/soocke/guard-overlay-go/domain/capture"
	"github.com/soocke/guard-overlay-go/domain/mitigation"
	"github.com/soocke/guard-overlay-go/domain/moderation"
	"github.com/soocke/guard-overlay-go/domain/ocr"
	"github.com/soocke/guard-overlay-go/domain/speech"
)

// AudioOptions extend Options with the buffering window.
type AudioOptions struct {
	Options
	Quiet    time.Duration
	MaxBytes int
}

// Transcript is published for every recognized fragment. Score is set only
// for final fragments that went through classification.
type Transcript struct {
	Text    string
	Partial bool
	Score   *float64
	At      time.Time
}

// AudioStream buffers audio chunks, transcribes each quiet-delimited batch
// and classifies final transcripts.
type AudioStream struct {
	*core
	rec speech.Recognizer
	src speech.Source
	roi capture.ROIProvider
	buf *speech.Buffer

	subMu  sync.Mutex
	subs   map[int]func(Transcript)
	nextID int

	srcMu    sync.Mutex
	srcFault *Fault
}

func NewAudioStream(rec speech.Recognizer, src speech.Source, roi capture.ROIProvider, deps Deps, opts AudioOptions) *AudioStream {
	if rec == nil {
		rec = speech.Stub{}
	}
	a := &AudioStream{
		core: newCore(StreamAudio, deps, opts.Options),
		rec:  rec,
		src:  src,
		roi:  roi,
		subs: make(map[int]func(Transcript)),
	}
	a.buf = speech.NewBuffer(opts.Quiet, opts.MaxBytes, a.onFlush, deps.Logger)
	return a
}

// Push appends one chunk. Chunks without a timestamp are stamped now.
func (a *AudioStream) Push(c speech.Chunk) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	a.buf.Append(c)
}

// Flush forces the pending batch out immediately.
func (a *AudioStream) Flush() { a.buf.Flush() }

// Buffer exposes the batch buffer for diagnostics.
func (a *AudioStream) Buffer() *speech.Buffer { return a.buf }

// SourceFault reports why the audio source could not start, if it failed.
func (a *AudioStream) SourceFault() *Fault {
	a.srcMu.Lock()
	defer a.srcMu.Unlock()
	return a.srcFault
}

// Subscribe registers fn for transcripts and returns its cancel function.
func (a *AudioStream) Subscribe(fn func(Transcript)) func() {
	a.subMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	a.subMu.Unlock()
	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

// Run pumps the audio source into the buffer until ctx is done. An
// unavailable source is recorded and the stream waits idle.
func (a *AudioStream) Run(ctx context.Context) {
	defer a.teardown()
	if a.src == nil {
		<-ctx.Done()
		return
	}
	ch, err := a.src.Start(ctx)
	if err != nil {
		f := NewFault(err)
		a.srcMu.Lock()
		a.srcFault = &f
		a.srcMu.Unlock()
		if a.logger != nil {
			a.logger.Warn("audio source unavailable", "source", a.src.Name(), "fault", f.Code.String(), "error", err)
		}
		<-ctx.Done()
		return
	}
	a.srcMu.Lock()
	a.srcFault = nil
	a.srcMu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				if a.logger != nil {
					a.logger.Info("audio source closed", "source", a.src.Name())
				}
				a.buf.Flush()
				<-ctx.Done()
				return
			}
			a.Push(c)
		}
	}
}

func (a *AudioStream) teardown() {
	a.buf.Discard()
	a.core.teardown()
}

func (a *AudioStream) onFlush(data []byte) {
	a.ticks.Add(1)
	ticket, ok := a.fsm.TryBegin()
	if !ok {
		a.dropped.Add(1)
		if a.logger != nil {
			a.logger.Debug("audio batch dropped", "bytes", len(data), "stage", a.fsm.Current().String())
		}
		return
	}
	go a.cycle(a.cycleContext(), ticket, data)
}

func (a *AudioStream) cycle(ctx context.Context, ticket uint64, data []byte) {
	defer a.guard(ticket)
	if !a.fsm.Advance(ticket, StageRecognizing) {
		return
	}
	frag, err := a.rec.Transcribe(ctx, data)
	if err != nil {
		if ctx.Err() == nil {
			a.fail(ticket, err)
		}
		return
	}
	text := strings.TrimSpace(frag.Text)
	if !frag.Final {
		if text != "" {
			a.publish(Transcript{Text: text, Partial: true, At: time.Now()})
		}
		a.fsm.Finish(ticket)
		return
	}
	if text == "" {
		a.fsm.Finish(ticket)
		return
	}
	a.lastText.Store(text)
	var roi capture.ROI
	if a.roi != nil {
		roi = a.roi.ROI()
	}
	line := ocr.Line{Text: text, Box: image.Rect(0, 0, roi.Width, roi.Height), Confidence: 1}
	res, ok := a.decide(ctx, ticket, []ocr.Line{line}, func(moderation.Result) mitigation.Geometry {
		if !roi.Valid() {
			return mitigation.Geometry{}
		}
		return mitigation.ComputeGeometry(mitigation.ModeROI, roi.Rect(), nil, nil, roi.Rect().Min)
	})
	if ok {
		a.publish(Transcript{Text: text, Score: res.Score, At: time.Now()})
	}
}

func (a *AudioStream) publish(t Transcript) {
	a.subMu.Lock()
	fns := make([]func(Transcript), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}
