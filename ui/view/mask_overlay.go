package view

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/soocke/guard-overlay-go/ui/images"
	"github.com/soocke/guard-overlay-go/ui/presenter"
	"github.com/soocke/guard-overlay-go/ui/theme"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// MaskOverlay paints one borderless topmost window per mask region.
type MaskOverlay struct {
	logger *slog.Logger
	wins   []*ToplevelWidget
	photos []*Img
}

var _ presenter.MaskView = (*MaskOverlay)(nil)

func NewMaskOverlay(logger *slog.Logger) *MaskOverlay { return &MaskOverlay{logger: logger} }

// ShowMask replaces the current windows with the given regions.
func (o *MaskOverlay) ShowMask(regions []presenter.MaskRegion) {
	if o == nil {
		return
	}
	o.HideMask()
	for _, r := range regions {
		if r.Rect.Empty() {
			continue
		}
		win := App.Toplevel(Borderwidth(0), Background(theme.ColorMask))
		win.WmTitle("guard mask")
		WmGeometry(win.Window, fmt.Sprintf("%dx%d+%d+%d", r.Rect.Dx(), r.Rect.Dy(), r.Rect.Min.X, r.Rect.Min.Y))
		WmAttributes(win.Window, "-topmost", 1)
		if runtime.GOOS == "windows" {
			WmAttributes(win.Window, "-toolwindow", true)
			// A layered window is skipped by the GDI sampler, so the mask
			// never hides the text that keeps it active.
			WmAttributes(win.Window, "-alpha", 0.99)
		}
		if r.Image != nil {
			photo := NewPhoto(Data(images.EncodePNG(r.Image)))
			lbl := win.Label(Image(photo), Borderwidth(0))
			Grid(lbl, Row(0), Column(0), Sticky("nsew"))
			o.photos = append(o.photos, photo)
		}
		o.wins = append(o.wins, win)
	}
	if o.logger != nil {
		o.logger.Debug("mask shown", "regions", len(o.wins))
	}
}

// HideMask destroys every mask window.
func (o *MaskOverlay) HideMask() {
	if o == nil {
		return
	}
	for _, w := range o.wins {
		Destroy(w)
	}
	for _, p := range o.photos {
		p.Delete()
	}
	o.wins, o.photos = nil, nil
}
