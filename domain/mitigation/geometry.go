package mitigation

import "image"

// Mode selects between covering the whole ROI and covering flagged lines only.
type Mode string

const (
	ModeROI   Mode = "roi"
	ModeLines Mode = "lines"
)

func ParseMode(s string) Mode {
	if Mode(s) == ModeLines {
		return ModeLines
	}
	return ModeROI
}

// ComputeGeometry maps the masked area to screen coordinates. roi is in
// screen pixels; boxes are relative to the ROI image at origin. Line mode
// with no boxes falls back to the whole ROI.
func ComputeGeometry(mode Mode, roi image.Rectangle, boxes []image.Rectangle, snapshot *image.NRGBA, origin image.Point) Geometry {
	g := Geometry{Snapshot: snapshot, Origin: origin}
	if mode == ModeLines {
		for _, b := range boxes {
			r := b.Add(origin).Intersect(roi)
			if !r.Empty() {
				g.Rects = append(g.Rects, r)
			}
		}
	}
	if len(g.Rects) == 0 && !roi.Empty() {
		g.Rects = []image.Rectangle{roi}
	}
	return g
}
