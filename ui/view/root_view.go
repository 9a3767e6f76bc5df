package view

import (
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/soocke/guard-overlay-go/config"
	"github.com/soocke/guard-overlay-go/domain/pipeline"
	"github.com/soocke/guard-overlay-go/ui/theme"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// RootView composes the control window and wires UI callbacks.
// It owns high-level subviews and satisfies the presenters' view contracts.
type RootView struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
	onApply func(*config.Config)

	// Subviews
	Session     SessionStats
	ConfigPanel ConfigPanel
	CapturePrev CapturePreview

	// Widgets
	stageLabels map[string]*TLabelWidget
	monitorBtn  *TButtonWidget
}

func NewRootView(cfg *config.Config, cfgPath string, logger *slog.Logger, onApply func(*config.Config)) *RootView {
	return &RootView{cfg: cfg, cfgPath: cfgPath, logger: logger, onApply: onApply, stageLabels: map[string]*TLabelWidget{}}
}

// Build constructs the layout. Handlers are invoked on user actions.
func (rv *RootView) Build(onToggleMonitoring func(), onSelectRegion func(), onClearRegion func(), onExit func()) {
	if rv == nil {
		return
	}
	// Row 0: session stats and buttons
	rv.Session = NewSessionStats(nil, 0, 0)

	btnFrame := Frame()
	Grid(btnFrame, Row(0), Column(4), Rowspan(2), Sticky("ne"), Padx("0.3m"), Pady("0.3m"))
	rv.monitorBtn = TButton(Txt("Start Monitoring"), Style(theme.StylePrimaryButton), Command(onToggleMonitoring))
	Grid(rv.monitorBtn, In(btnFrame), Row(0), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	selectBtn := Button(Txt("Select Region"), Command(onSelectRegion))
	Grid(selectBtn, In(btnFrame), Row(1), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	clearBtn := Button(Txt("Clear Region"), Command(onClearRegion))
	Grid(clearBtn, In(btnFrame), Row(2), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	exitBtn := TButton(Txt("Exit"), Style(theme.StyleDangerButton), Command(onExit))
	Grid(exitBtn, In(btnFrame), Row(3), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))

	// Row 1: one stage label per stream
	for i, stream := range []string{pipeline.StreamScreen, pipeline.StreamAudio} {
		lbl := TLabel(Txt(stream+": "+pipeline.StageIdle.String()), Style(theme.StyleStageLabel))
		Grid(lbl, Row(1), Column(i*2), Columnspan(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
		rv.stageLabels[stream] = lbl
	}

	rv.ConfigPanel = NewConfigPanel(rv.cfg, rv.cfgPath, rv.logger, rv.onApply)
	endRow := rv.ConfigPanel.Build(2)

	rv.CapturePrev = NewCapturePreview(endRow)
}

// SetStageLabel updates one stream's stage label, highlighting errors.
func (rv *RootView) SetStageLabel(stream, text string) {
	if rv == nil {
		return
	}
	lbl := rv.stageLabels[stream]
	if lbl == nil {
		return
	}
	style := theme.StyleStageLabel
	if strings.HasPrefix(text, pipeline.StageError.String()) {
		style = theme.StyleAlertLabel
	}
	lbl.Configure(Txt(stream+": "+text), Style(style))
}

// SetConfigEditable toggles config panel editability.
func (rv *RootView) SetConfigEditable(enabled bool) {
	if rv != nil && rv.ConfigPanel != nil {
		rv.ConfigPanel.SetEditable(enabled)
	}
}

// ConfigEditable satisfies presenter.MonitorView.
func (rv *RootView) ConfigEditable(b bool) { rv.SetConfigEditable(b) }

// SetMonitoring relabels the toggle button.
func (rv *RootView) SetMonitoring(on bool) {
	if rv == nil || rv.monitorBtn == nil {
		return
	}
	if on {
		rv.monitorBtn.Configure(Txt("Stop Monitoring"))
		return
	}
	rv.monitorBtn.Configure(Txt("Start Monitoring"))
}

// PreviewReset clears the capture preview.
func (rv *RootView) PreviewReset() {
	if rv != nil && rv.CapturePrev != nil {
		rv.CapturePrev.Reset()
	}
}

func (rv *RootView) UpdateCapture(img image.Image) {
	if rv != nil && rv.CapturePrev != nil {
		rv.CapturePrev.UpdateCapture(img)
	}
}

func (rv *RootView) UpdateMosaic(img image.Image) {
	if rv != nil && rv.CapturePrev != nil {
		rv.CapturePrev.UpdateMosaic(img)
	}
}

func (rv *RootView) SetScore(text string) {
	if rv != nil && rv.CapturePrev != nil {
		rv.CapturePrev.SetScore(text)
	}
}

// SetSession updates both session and total monitoring durations.
func (rv *RootView) SetSession(session, total time.Duration) {
	if rv == nil || rv.Session == nil {
		return
	}
	rv.Session.SetSession(session)
	rv.Session.SetTotal(total)
}

func (rv *RootView) SetMasked(d time.Duration, episodes uint64) {
	if rv != nil && rv.Session != nil {
		rv.Session.SetMasked(d, episodes)
	}
}
