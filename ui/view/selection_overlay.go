package view

import (
	"fmt"
	"image"
	"log/slog"
	"runtime"

	"github.com/soocke/guard-overlay-go/config"
	"github.com/soocke/guard-overlay-go/ui/model"
	"github.com/soocke/guard-overlay-go/ui/theme"
	"github.com/vova616/screenshot"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders
	. "modernc.org/tk9.0"
)

// ROISink receives the confirmed region in screen coordinates.
type ROISink interface {
	SetRect(r image.Rectangle)
}

// SelectionOverlay is a resizable see-through window the user drags over the
// subtitle area; confirming stores its geometry as the ROI.
type SelectionOverlay interface {
	OpenOrFocus()
	Clear()
}

type selectionOverlay struct {
	logger  *slog.Logger
	cfg     *config.Config
	cfgPath string
	sink    ROISink
	win     *ToplevelWidget
}

func NewSelectionOverlay(cfg *config.Config, cfgPath string, sink ROISink, logger *slog.Logger) SelectionOverlay {
	return &selectionOverlay{logger: logger, cfg: cfg, cfgPath: cfgPath, sink: sink}
}

func (v *selectionOverlay) OpenOrFocus() {
	if v.win != nil {
		WmGeometry(v.win.Window)
		return
	}
	win := App.Toplevel(Borderwidth(2), Background(theme.ColorSelection))
	win.WmTitle("Select Region")
	v.win = win
	WmGeometry(win.Window, v.initialGeometry())
	WmAttributes(win.Window, "-topmost", 1)
	if runtime.GOOS == "windows" {
		WmAttributes(win.Window, "-toolwindow", true)
		WmAttributes(win.Window, "-transparentcolor", theme.ColorSelection)
	} else {
		WmAttributes(win.Window, "-alpha", 0.35)
	}
	GridRowConfigure(win.Window, 0, Weight(1))
	GridColumnConfigure(win.Window, 0, Weight(0))
	GridColumnConfigure(win.Window, 1, Weight(1))
	GridColumnConfigure(win.Window, 2, Weight(0))
	left := win.Frame(Width(4), Background("#FFFFFF"))
	Grid(left, Row(0), Column(0), Sticky("ns"))
	center := win.Frame(Background(theme.ColorSelection))
	Grid(center, Row(0), Column(1), Sticky("nsew"))
	right := win.Frame(Width(4), Background("#FFFFFF"))
	Grid(right, Row(0), Column(2), Sticky("ns"))
	controls := win.Frame()
	Grid(controls, Row(1), Column(0), Columnspan(3), Sticky("we"))
	confirm := win.Button(Txt("Confirm [Enter]"), Command(v.confirm))
	Grid(confirm, In(controls), Row(0), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	cancel := win.Button(Txt("Cancel [Esc]"), Command(v.cancel))
	Grid(cancel, In(controls), Row(0), Column(1), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	clear := win.Button(Txt("Clear"), Command(v.Clear))
	Grid(clear, In(controls), Row(0), Column(2), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	Bind(win, "<Return>", Command(v.confirm))
	Bind(win, "<Escape>", Command(v.cancel))
}

// initialGeometry reopens over the saved ROI, or a subtitle-shaped band near
// the bottom of the primary screen.
func (v *selectionOverlay) initialGeometry() string {
	if v.cfg != nil && v.cfg.SelectionW > 0 && v.cfg.SelectionH > 0 {
		return fmt.Sprintf("%dx%d+%d+%d", v.cfg.SelectionW, v.cfg.SelectionH, v.cfg.SelectionX, v.cfg.SelectionY)
	}
	screen := image.Rect(0, 0, 1920, 1080)
	if r, err := screenshot.ScreenRect(); err == nil && !r.Empty() {
		screen = r
	}
	return model.FormatGeometry(model.DefaultSelection(screen))
}

func (v *selectionOverlay) Clear() {
	if v.sink != nil {
		v.sink.SetRect(image.Rectangle{})
	}
	if v.cfg != nil {
		v.cfg.SelectionW, v.cfg.SelectionH = 0, 0
		v.save()
	}
}

func (v *selectionOverlay) confirm() {
	if v.win == nil {
		return
	}
	geom := WmGeometry(v.win.Window)
	if rect, ok := model.ParseGeometry(geom); ok {
		if v.sink != nil {
			v.sink.SetRect(rect)
		}
		if v.cfg != nil {
			v.cfg.SelectionX, v.cfg.SelectionY = rect.Min.X, rect.Min.Y
			v.cfg.SelectionW, v.cfg.SelectionH = rect.Dx(), rect.Dy()
			v.save()
		}
		if v.logger != nil {
			v.logger.Info("region selected", "roi", rect.String())
		}
	} else if v.logger != nil {
		v.logger.Warn("unparseable selection geometry", "geometry", geom)
	}
	v.destroy()
}

func (v *selectionOverlay) save() {
	if err := v.cfg.Save(v.cfgPath); err != nil && v.logger != nil {
		v.logger.Error("config save failed", "error", err)
	}
}

func (v *selectionOverlay) cancel() { v.destroy() }

func (v *selectionOverlay) destroy() {
	if v.win != nil {
		Destroy(v.win)
		v.win = nil
	}
}
