package presenter

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/soocke/guard-overlay-go/domain/capture"
	"github.com/soocke/guard-overlay-go/domain/pipeline"
	"github.com/soocke/guard-overlay-go/ui/images"
)

// Preview surface limits, in pixels.
const (
	PreviewMaxW = 360
	PreviewMaxH = 120
)

// CaptureSource supplies the most recent ROI capture.
type CaptureSource interface {
	Latest() *capture.CaptureResult
}

// StreamStats supplies a stream's point-in-time figures.
type StreamStats interface {
	Stats() pipeline.Stats
}

// PreviewView describes the UI surface updated by the presenter.
type PreviewView interface {
	UpdateCapture(img image.Image)
	UpdateMosaic(img image.Image)
	SetScore(text string)
}

type previewTask struct {
	sequence uint64
	img      *image.NRGBA
}

type previewResult struct {
	sequence uint64
	capture  image.Image
	mosaic   image.Image
}

// PreviewPresenter mirrors the latest ROI capture and the screen stream's
// score into the main window. Scaling and pixelation run on a worker so the
// Tk thread only encodes what is shown.
type PreviewPresenter struct {
	Enabled func() bool
	Source  CaptureSource
	Stats   StreamStats
	View    PreviewView
	logger  *slog.Logger

	workerOnce sync.Once
	workCh     chan previewTask
	resultCh   chan previewResult

	lastSeq   uint64
	lastScore string
}

// NewPreviewPresenter constructs a preview presenter. stats may be nil.
func NewPreviewPresenter(enabled func() bool, source CaptureSource, stats StreamStats, view PreviewView, logger *slog.Logger) *PreviewPresenter {
	return &PreviewPresenter{
		Enabled:  enabled,
		Source:   source,
		Stats:    stats,
		View:     view,
		logger:   logger,
		workCh:   make(chan previewTask, 1),
		resultCh: make(chan previewResult, 1),
	}
}

// ProcessFrame applies finished previews and schedules the newest capture.
func (p *PreviewPresenter) ProcessFrame() {
	if p == nil || p.Enabled == nil || p.Source == nil || p.View == nil {
		return
	}

	p.ensureWorker()

	for {
		select {
		case res := <-p.resultCh:
			p.handleResult(res)
		default:
			goto drained
		}
	}

drained:
	if !p.Enabled() {
		return
	}
	p.updateScore()

	res := p.Source.Latest()
	if res == nil || res.Image == nil || res.Sequence == 0 || res.Sequence == p.lastSeq {
		return
	}
	p.lastSeq = res.Sequence
	p.dispatchTask(previewTask{sequence: res.Sequence, img: res.Image})
}

// Reset forgets the last shown capture so the next one is always displayed.
func (p *PreviewPresenter) Reset() {
	if p == nil {
		return
	}
	p.lastSeq = 0
	p.lastScore = ""
}

func (p *PreviewPresenter) updateScore() {
	if p.Stats == nil {
		return
	}
	st := p.Stats.Stats()
	text := ScoreText(st)
	if text == p.lastScore {
		return
	}
	p.lastScore = text
	p.View.SetScore(text)
}

// ScoreText renders the gate state for the preview caption.
func ScoreText(st pipeline.Stats) string {
	gate := "off"
	if st.GateActive {
		gate = "ON"
	}
	return fmt.Sprintf("Score: %.2f  Gate: %s  Flagged: %d", st.LastScore, gate, st.Flagged)
}

func (p *PreviewPresenter) ensureWorker() {
	p.workerOnce.Do(func() {
		go p.runWorker()
	})
}

func (p *PreviewPresenter) runWorker() {
	for task := range p.workCh {
		res := renderPreview(task)
		select {
		case p.resultCh <- res:
		default:
			select {
			case <-p.resultCh:
			default:
			}
			select {
			case p.resultCh <- res:
			default:
			}
		}
	}
}

// dispatchTask replaces any queued task with the newer one.
func (p *PreviewPresenter) dispatchTask(task previewTask) {
	select {
	case p.workCh <- task:
	default:
		select {
		case <-p.workCh:
		default:
		}
		select {
		case p.workCh <- task:
		default:
		}
	}
}

func renderPreview(task previewTask) previewResult {
	scaled := images.ScaleToFit(task.img, PreviewMaxW, PreviewMaxH)
	return previewResult{
		sequence: task.sequence,
		capture:  scaled,
		mosaic:   images.Pixelate(scaled, images.DefaultMosaicCell),
	}
}

func (p *PreviewPresenter) handleResult(res previewResult) {
	if res.capture == nil {
		if p.logger != nil {
			p.logger.Debug("preview render produced no image", "sequence", res.sequence)
		}
		return
	}
	p.View.UpdateCapture(res.capture)
	if res.mosaic != nil {
		p.View.UpdateMosaic(res.mosaic)
	}
}
