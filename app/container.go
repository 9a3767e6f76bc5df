package app

import (
	"context"
	"log/slog"

	"github.com/soocke/guard-overlay-go/app/engine"
	"github.com/soocke/guard-overlay-go/config"
	"github.com/soocke/guard-overlay-go/domain/capture"
	"github.com/soocke/guard-overlay-go/ui/model"
	"github.com/soocke/guard-overlay-go/ui/presenter"
	"github.com/soocke/guard-overlay-go/ui/view"
)

// AppContainer assembles models, the engine, presenters and views.
type AppContainer struct {
	Config  *config.Config
	CfgPath string
	Logger  *slog.Logger

	Monitor *model.MonitorModel
	Session *model.SessionModel
	ROI     *model.ROIModel

	Engine *engine.Engine

	RootView  *view.RootView
	MaskView  *view.MaskOverlay
	Selection view.SelectionOverlay

	// Presenters
	MonitorPresenter *presenter.MonitorPresenter
	StagePresenter   *presenter.StagePresenter
	SessionPresenter *presenter.SessionPresenter
	PreviewPresenter *presenter.PreviewPresenter
	MaskPresenter    *presenter.MaskPresenter
	Loop             *presenter.Loop
}

// BuildContainer constructs all components. No Tk widgets are created here;
// RootView.Build runs once the window exists.
func BuildContainer(ctx context.Context, cfg *config.Config, cfgPath string, logger *slog.Logger) (*AppContainer, error) {
	c := &AppContainer{Config: cfg, CfgPath: cfgPath, Logger: logger}
	c.Monitor = &model.MonitorModel{}
	c.Session = model.NewSessionModel()
	c.ROI = model.NewROIModel(capture.ROI{X: cfg.SelectionX, Y: cfg.SelectionY, Width: cfg.SelectionW, Height: cfg.SelectionH})

	c.MaskView = view.NewMaskOverlay(logger)
	c.MaskPresenter = presenter.NewMaskPresenter(c.MaskView, logger)

	eng, err := engine.New(ctx, cfg, engine.Deps{
		ROI:      c.ROI,
		Renderer: c.MaskPresenter,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	c.Engine = eng

	c.RootView = view.NewRootView(cfg, cfgPath, logger, eng.Apply)
	c.Selection = view.NewSelectionOverlay(cfg, cfgPath, c.ROI, logger)

	c.MonitorPresenter = presenter.NewMonitorPresenter(c.Monitor, eng, c.RootView)
	c.StagePresenter = presenter.NewStagePresenter(c.RootView)
	eng.Screen.Machine().AddListener(c.StagePresenter.OnStage)
	eng.Audio.Machine().AddListener(c.StagePresenter.OnStage)
	c.SessionPresenter = presenter.NewSessionPresenter(c.Session, c.Monitor, eng.Mask, c.RootView)
	c.PreviewPresenter = presenter.NewPreviewPresenter(c.Monitor.Enabled, eng.Sampler, eng.Screen, c.RootView, logger)
	c.Loop = presenter.NewLoop(c.SessionPresenter, c.StagePresenter, c.PreviewPresenter, c.MaskPresenter, nil)
	return c, nil
}
