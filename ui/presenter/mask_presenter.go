package presenter

import (
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/soocke/guard-overlay-go/domain/mitigation"
	"github.com/soocke/guard-overlay-go/ui/images"
)

// MaskRegion is one rectangle of the on-screen mask. A nil Image paints it opaque.
type MaskRegion struct {
	Rect  image.Rectangle
	Image image.Image
}

// MaskView paints and removes the topmost mask windows.
type MaskView interface {
	ShowMask(regions []MaskRegion)
	HideMask()
}

type maskFrame struct {
	regions []MaskRegion
	clear   bool
}

// MaskPresenter is the mitigation renderer for the Tk overlay. Show and Clear
// are called from pipeline goroutines; they prepare the regions and park the
// newest frame, which Tick applies on the UI thread.
type MaskPresenter struct {
	view   MaskView
	logger *slog.Logger

	mu      sync.Mutex
	pending *maskFrame
	visible bool
}

var _ mitigation.Renderer = (*MaskPresenter)(nil)

func NewMaskPresenter(view MaskView, logger *slog.Logger) *MaskPresenter {
	return &MaskPresenter{view: view, logger: logger}
}

// Show parks a mask to display. Mosaic regions are pixelated here, off the UI thread.
func (p *MaskPresenter) Show(m mitigation.Mask) {
	if p == nil {
		return
	}
	regions := make([]MaskRegion, 0, len(m.Regions))
	for _, r := range m.Regions {
		regions = append(regions, p.region(m.Style, r))
	}
	p.park(&maskFrame{regions: regions})
}

// Clear parks a request to remove the mask.
func (p *MaskPresenter) Clear() {
	if p == nil {
		return
	}
	p.park(&maskFrame{clear: true})
}

func (p *MaskPresenter) park(f *maskFrame) {
	p.mu.Lock()
	p.pending = f
	p.mu.Unlock()
}

func (p *MaskPresenter) region(style mitigation.Style, r mitigation.Region) MaskRegion {
	if style != mitigation.StyleMosaic || r.Snapshot == nil {
		return MaskRegion{Rect: r.Rect}
	}
	crop, local, err := images.CropScreenRect(r.Snapshot, r.Origin, r.Rect)
	if err != nil {
		if p.logger != nil {
			p.logger.Debug("mosaic crop failed, painting opaque", "rect", r.Rect.String(), "error", err)
		}
		return MaskRegion{Rect: r.Rect}
	}
	return MaskRegion{Rect: local.Add(r.Origin), Image: images.Pixelate(crop, images.DefaultMosaicCell)}
}

// Tick applies the newest parked frame, if any.
func (p *MaskPresenter) Tick(now time.Time) {
	if p == nil || p.view == nil {
		return
	}
	p.mu.Lock()
	f := p.pending
	p.pending = nil
	p.mu.Unlock()
	if f == nil {
		return
	}
	if f.clear {
		if p.visible {
			p.view.HideMask()
		}
		p.visible = false
		return
	}
	p.view.ShowMask(f.regions)
	p.visible = true
}

// Visible reports whether the mask is currently painted. UI thread only.
func (p *MaskPresenter) Visible() bool {
	if p == nil {
		return false
	}
	return p.visible
}
