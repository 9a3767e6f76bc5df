package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/soocke/guard-overlay-go/config"
	"github.com/soocke/guard-overlay-go/domain/capture"
	"github.com/soocke/guard-overlay-go/ui/theme"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

const (
	tick            = 100 * time.Millisecond
	shutdownTimeout = 3 * time.Second
)

// app drives the Tk event loop around a container.
type app struct {
	c       *AppContainer
	logger  *slog.Logger
	afterID string
}

func NewApp(c *AppContainer) *app {
	return &app{c: c, logger: c.Logger}
}

// Run builds the window, starts the background services and blocks until
// the window closes. Monitoring starts stopped; the user toggles it.
func (a *app) Run(ctx context.Context) error {
	c := a.c
	App.WmTitle("Guard Overlay")
	WmProtocol(App, "WM_DELETE_WINDOW", a.exitHandler)
	WmGeometry(App, "760x560+100+100")
	theme.InitStyles()

	c.RootView.Build(a.toggleMonitoring, c.Selection.OpenOrFocus, c.Selection.Clear, a.exitHandler)

	if err := c.Engine.Serve(ctx); err != nil && a.logger != nil {
		// The overlay works without its local server.
		a.logger.Warn("local server unavailable", "error", err)
	}
	config.Watch(c.CfgPath, a.onConfigChange)

	c.Loop.Schedule = a.scheduleUpdate
	a.scheduleUpdate()
	App.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return c.Engine.Close(sctx)
}

// onConfigChange runs on the watcher goroutine. Engine.Apply and the ROI
// model are safe to call from there; the Tk-owned config copy is left alone.
func (a *app) onConfigChange(cfg *config.Config, err error) {
	if err != nil {
		if a.logger != nil {
			a.logger.Debug("config watch", "error", err)
		}
		return
	}
	a.c.Engine.Apply(cfg)
	a.c.ROI.Set(capture.ROI{X: cfg.SelectionX, Y: cfg.SelectionY, Width: cfg.SelectionW, Height: cfg.SelectionH})
}

func (a *app) toggleMonitoring() {
	a.c.MonitorPresenter.Toggle()
	if !a.c.Monitor.Enabled() {
		a.c.PreviewPresenter.Reset()
	}
}

func (a *app) scheduleUpdate() {
	// TclAfter keeps every widget update on Tk's event loop thread.
	a.afterID = TclAfter(tick, func() { a.c.Loop.Tick() })
}

func (a *app) exitHandler() {
	if a.afterID != "" {
		TclAfterCancel(a.afterID)
	}
	a.c.MonitorPresenter.Disable()
	a.c.MaskView.HideMask()
	Destroy(App)
}
