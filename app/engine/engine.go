// Package engine assembles the moderation pipeline from configuration: the
// recognizers, classifier, remote transport, both streams, the mitigation
// controller and the local server. It carries no UI dependency; the Tk shell
// plugs in its renderer and ROI model.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/soocke/guard-overlay-go/config"
	"github.com/soocke/guard-overlay-go/domain/capture"
	"github.com/soocke/guard-overlay-go/domain/classify"
	"github.com/soocke/guard-overlay-go/domain/eventlog"
	"github.com/soocke/guard-overlay-go/domain/mitigation"
	"github.com/soocke/guard-overlay-go/domain/moderation"
	"github.com/soocke/guard-overlay-go/domain/ocr"
	"github.com/soocke/guard-overlay-go/domain/pipeline"
	"github.com/soocke/guard-overlay-go/domain/speech"
	"github.com/soocke/guard-overlay-go/server"
)

// Deps are the pieces the shell provides. Display and Tone default to the
// primary screen and the platform tone; Renderer may be nil for headless runs.
// OCR and Speech override the configured recognizer backends when set.
type Deps struct {
	ROI      capture.ROIProvider
	Renderer mitigation.Renderer
	Display  capture.DisplaySource
	Tone     mitigation.TonePlayer
	OCR      ocr.TextRecognizer
	Speech   speech.Recognizer
	Logger   *slog.Logger
}

// Engine owns every long-lived backend component.
type Engine struct {
	logger *slog.Logger
	roi    capture.ROIProvider

	Rules      *classify.RuleStore
	Classifier *classify.Classifier
	Aggregator *moderation.Aggregator
	Remote     *moderation.RemoteClient
	Sampler    *capture.RegionSampler
	Mask       *mitigation.Controller
	Events     *eventlog.Log
	Screen     *pipeline.ScreenStream
	Audio      *pipeline.AudioStream
	Server     *server.Server

	closers []io.Closer
	started time.Time

	cfgMu sync.Mutex
	cfg   config.Config

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	svcCancel context.CancelFunc
	svcWG     sync.WaitGroup
}

// New builds the component graph. Nothing runs until Serve and Start.
// Optional backends that fail to initialize are logged and replaced by their
// stubs so the pipeline still starts.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	e := &Engine{logger: logger, roi: deps.ROI, cfg: *cfg, started: time.Now()}
	if e.roi == nil {
		e.roi = staticROI{}
	}

	e.Rules = classify.NewRuleStore(cfg.RulesPath, logger)
	if _, err := e.Rules.Load(); err != nil {
		// The store keeps empty rules; a fixed file hot-reloads through Watch.
		e.warn("rules unavailable, starting with empty rules", err)
	}
	e.Classifier = classify.NewClassifier(e.Rules, e.buildModel(cfg), cfg.KeywordConfidence, logger)

	var remote moderation.RemoteModerator
	if url := strings.TrimSpace(cfg.ModerationURL); url != "" {
		e.Remote = moderation.NewRemoteClient(url, moderation.RemoteOptions{
			InitialBackoff: cfg.ReconnectInitial(),
			MaxBackoff:     cfg.ReconnectMax(),
			RatePerSecond:  cfg.ModerationRate,
			Cache:          e.buildCache(ctx, cfg),
		}, logger)
		remote = e.Remote
	}
	e.Aggregator = moderation.NewAggregator(e.Classifier, remote, cfg.ScoreFloor, logger)

	events, err := eventlog.Open(cfg.EventLogPath)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	e.Events = events
	e.closers = append(e.closers, events)

	tone := deps.Tone
	if tone == nil {
		tone = mitigation.SystemTone()
	}
	e.Mask = mitigation.NewController(deps.Renderer, tone, mitigation.ParseStyle(cfg.MaskStyle), logger)
	e.Mask.SetToneEnabled(cfg.AlertTone)

	display := deps.Display
	if display == nil {
		display = capture.DefaultDisplay()
	}
	e.Sampler = capture.NewRegionSampler(display, logger)

	pdeps := pipeline.Deps{Moderator: e.Aggregator, Mask: e.Mask, Events: e.Events, Logger: logger}
	opts := streamOptions(cfg)
	textRec := deps.OCR
	if textRec == nil {
		textRec = e.buildOCR(cfg)
	}
	e.Screen = pipeline.NewScreenStream(e.roi, e.Sampler, textRec, pdeps, opts)
	rec, src := e.buildSpeech(cfg)
	if deps.Speech != nil {
		rec = deps.Speech
	}
	e.Audio = pipeline.NewAudioStream(rec, src, e.roi, pdeps, pipeline.AudioOptions{
		Options:  opts,
		Quiet:    cfg.AudioQuiet(),
		MaxBytes: cfg.AudioMaxBytes,
	})

	e.Server = server.New(server.Options{
		Addr: cfg.ListenAddr,
		MDNS: cfg.MDNS,
	}, server.Deps{
		Rules:     e.Rules,
		Moderator: e.Aggregator,
		Audio:     &ingress{e: e},
		Status:    e.Status,
		Logger:    logger,
	})
	return e, nil
}

func streamOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		Interval:      cfg.CaptureInterval(),
		ErrorCooldown: cfg.ErrorCooldown(),
		MaskHold:      cfg.MaskHold(),
		GateOn:        cfg.GateOn,
		GateOff:       cfg.GateOff,
		MaskMode:      mitigation.ParseMode(cfg.MaskMode),
	}
}

func (e *Engine) buildModel(cfg *config.Config) classify.ModelJudge {
	switch cfg.ModelBackend {
	case "onnx":
		j, err := classify.NewONNXJudge(cfg.ONNXModelPath, 0, 0, e.logger)
		if err != nil {
			e.warn("onnx judge unavailable, using rules only", err)
			return nil
		}
		e.closers = append(e.closers, j)
		return j
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			e.warn("gemini judge needs gemini_api_key, using rules only", nil)
			return nil
		}
		j := classify.NewGeminiJudge(cfg.GeminiAPIKey, cfg.GeminiModel)
		e.closers = append(e.closers, j)
		return j
	}
	return nil
}

func (e *Engine) buildCache(ctx context.Context, cfg *config.Config) moderation.VerdictCache {
	local := moderation.NewLRUCache(cfg.VerdictCacheSize, cfg.VerdictCacheTTL())
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return local
	}
	shared, err := moderation.NewRedisCache(ctx, cfg.RedisURL, cfg.VerdictCacheTTL(), e.logger)
	if err != nil {
		e.warn("redis verdict cache unavailable, using in-process cache", err)
		return local
	}
	e.closers = append(e.closers, shared)
	return moderation.TieredCache{Local: local, Shared: shared}
}

func (e *Engine) buildOCR(cfg *config.Config) ocr.TextRecognizer {
	switch cfg.OCRBackend {
	case "tesseract":
		return ocr.NewTesseract(cfg.TesseractPath, cfg.OCRLanguages, e.logger)
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			return ocr.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
		}
		e.warn("gemini ocr needs gemini_api_key, using stub", nil)
	}
	return ocr.Stub{}
}

func (e *Engine) buildSpeech(cfg *config.Config) (speech.Recognizer, speech.Source) {
	var rec speech.Recognizer = speech.Stub{}
	if cfg.SpeechBackend == "command" {
		name, args := splitCommand(cfg.SpeechCommand)
		rec = speech.NewCommandRecognizer(name, args, e.logger)
	}
	var src speech.Source
	if name, args := splitCommand(cfg.AudioCommand); name != "" {
		src = speech.NewCommandSource(name, args, 0, e.logger)
	}
	return rec, src
}

func splitCommand(s string) (string, []string) {
	f := strings.Fields(s)
	if len(f) == 0 {
		return "", nil
	}
	return f[0], f[1:]
}

// Serve starts the services that live as long as the process: the rules
// watcher, the remote transport and the local server.
func (e *Engine) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.svcCancel = cancel
	if err := e.Rules.Watch(ctx); err != nil {
		e.warn("rules watcher unavailable", err)
	}
	if e.Remote != nil {
		e.goService(ctx, "remote moderation", e.Remote.Run)
	}
	addr, err := e.Server.Start()
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if e.logger != nil {
		e.logger.Info("server listening", "addr", addr.String())
	}
	return nil
}

// Start launches both streams. Idempotent.
func (e *Engine) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	for _, s := range []struct {
		name string
		run  func(context.Context)
	}{{pipeline.StreamScreen, e.Screen.Run}, {pipeline.StreamAudio, e.Audio.Run}} {
		e.wg.Add(1)
		go func(name string, run func(context.Context)) {
			defer e.wg.Done()
			defer recoverLog(e.logger, name+" stream panic")
			run(ctx)
		}(s.name, s.run)
	}
	if e.logger != nil {
		e.logger.Info("monitoring started")
	}
}

// Stop cancels both streams and waits for their teardown, which clears the mask. Idempotent.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.running = false
	if e.logger != nil {
		e.logger.Info("monitoring stopped")
	}
}

// Running reports whether the streams are started.
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

// Apply pushes hot-reloadable settings into the running components. Backend
// choices, paths and the listen address take effect on restart.
func (e *Engine) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	c := *cfg
	_ = c.Validate()
	e.cfgMu.Lock()
	e.cfg = c
	e.cfgMu.Unlock()

	e.Screen.SetInterval(c.CaptureInterval())
	mode := mitigation.ParseMode(c.MaskMode)
	for _, s := range []interface {
		Machine() *pipeline.StageMachine
		SetMaskHold(time.Duration)
		SetMaskMode(mitigation.Mode)
	}{e.Screen, e.Audio} {
		s.Machine().SetCooldown(c.ErrorCooldown())
		s.SetMaskHold(c.MaskHold())
		s.SetMaskMode(mode)
	}
	e.Screen.Gate().SetThresholds(c.GateOn, c.GateOff)
	e.Audio.Gate().SetThresholds(c.GateOn, c.GateOff)
	e.Mask.SetStyle(mitigation.ParseStyle(c.MaskStyle))
	e.Mask.SetToneEnabled(c.AlertTone)
	if e.logger != nil {
		e.logger.Info("config applied", "gate_on", c.GateOn, "gate_off", c.GateOff, "interval_ms", c.CaptureIntervalMs, "mask_mode", c.MaskMode, "mask_style", c.MaskStyle)
	}
}

// Status is the /status snapshot.
func (e *Engine) Status() server.Status {
	st := server.Status{
		Uptime:        time.Since(e.started).Round(time.Second).String(),
		Streams:       []server.StreamStatus{server.StreamStatusFrom(e.Screen.Stats()), server.StreamStatusFrom(e.Audio.Stats())},
		MaskActive:    e.Mask.Active(),
		Episodes:      e.Mask.Episodes(),
		ROI:           e.roi.ROI(),
		Capture:       server.CaptureStatusFrom(e.Sampler.Stats()),
		EventsWritten: e.Events.Written(),
	}
	if e.Remote != nil {
		e.cfgMu.Lock()
		st.RemoteURL = e.cfg.ModerationURL
		e.cfgMu.Unlock()
		st.RemoteConnected = e.Remote.Connected()
	}
	return st
}

// Close stops everything and releases backends.
func (e *Engine) Close(ctx context.Context) error {
	e.Stop()
	var errs []error
	if err := e.Server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.svcCancel != nil {
		e.svcCancel()
	}
	e.svcWG.Wait()
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) goService(ctx context.Context, name string, run func(context.Context)) {
	e.svcWG.Add(1)
	go func() {
		defer e.svcWG.Done()
		defer recoverLog(e.logger, name+" panic")
		run(ctx)
	}()
}

func (e *Engine) warn(msg string, err error) {
	if e.logger == nil {
		return
	}
	if err != nil {
		e.logger.Warn(msg, "error", err)
		return
	}
	e.logger.Warn(msg)
}

func recoverLog(logger *slog.Logger, msg string) {
	if r := recover(); r != nil {
		if logger != nil {
			logger.Error(msg, "error", r, "stack", string(debug.Stack()))
		}
	}
}

// ingress forwards server audio into the audio stream only while monitoring runs.
type ingress struct{ e *Engine }

func (i *ingress) Push(c speech.Chunk) {
	if i.e.Running() {
		i.e.Audio.Push(c)
	}
}

func (i *ingress) Flush() {
	if i.e.Running() {
		i.e.Audio.Flush()
	}
}

func (i *ingress) Subscribe(fn func(pipeline.Transcript)) func() { return i.e.Audio.Subscribe(fn) }

type staticROI struct{}

func (staticROI) ROI() capture.ROI { return capture.ROI{} }
