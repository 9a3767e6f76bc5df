package view

import (
	"image"

	"github.com/soocke/guard-overlay-go/ui/images"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// CapturePreview shows the latest ROI capture, its mosaic rendition and the
// screen stream's score.
type CapturePreview interface {
	UpdateCapture(img image.Image)
	UpdateMosaic(img image.Image)
	SetScore(text string)
	Reset()
}

type capturePreview struct {
	captureLabel *LabelWidget
	mosaicLabel  *LabelWidget
	scoreLabel   *LabelWidget
	// Current photos are deleted before replacement so Tk does not accumulate image data.
	prevCapturePhoto *Img
	prevMosaicPhoto  *Img
}

// NewCapturePreview grids the capture across columns 0-2 and the mosaic at
// column 3 of row, with the score caption on the row below.
func NewCapturePreview(row int) CapturePreview {
	pngBytes := placeholderPNG()
	capPhoto := NewPhoto(Data(pngBytes))
	mosPhoto := NewPhoto(Data(pngBytes))
	capture := Label(Image(capPhoto), Borderwidth(1), Relief("sunken"))
	mosaic := Label(Image(mosPhoto), Borderwidth(1), Relief("sunken"))
	score := Label(Txt("Score: -"), Anchor("w"))
	Grid(capture, Row(row), Column(0), Columnspan(3), Sticky("we"), Padx("0.4m"), Pady("0.4m"))
	Grid(mosaic, Row(row), Column(3), Columnspan(2), Sticky("we"), Padx("0.4m"), Pady("0.4m"))
	Grid(score, Row(row+1), Column(0), Columnspan(5), Sticky("we"), Padx("0.4m"))
	return &capturePreview{captureLabel: capture, mosaicLabel: mosaic, scoreLabel: score, prevCapturePhoto: capPhoto, prevMosaicPhoto: mosPhoto}
}

func placeholderPNG() []byte {
	return images.EncodePNG(image.NewRGBA(image.Rect(0, 0, 180, 60)))
}

// UpdateCapture expects an image already scaled for display.
func (v *capturePreview) UpdateCapture(img image.Image) {
	if v.captureLabel == nil || img == nil {
		return
	}
	v.prevCapturePhoto = swapPhoto(v.captureLabel, v.prevCapturePhoto, images.EncodePNG(img))
}

func (v *capturePreview) UpdateMosaic(img image.Image) {
	if v.mosaicLabel == nil || img == nil {
		return
	}
	v.prevMosaicPhoto = swapPhoto(v.mosaicLabel, v.prevMosaicPhoto, images.EncodePNG(img))
}

func (v *capturePreview) SetScore(text string) {
	if v.scoreLabel != nil {
		v.scoreLabel.Configure(Txt(text))
	}
}

func (v *capturePreview) Reset() {
	pngBytes := placeholderPNG()
	if v.captureLabel != nil {
		v.prevCapturePhoto = swapPhoto(v.captureLabel, v.prevCapturePhoto, pngBytes)
	}
	if v.mosaicLabel != nil {
		v.prevMosaicPhoto = swapPhoto(v.mosaicLabel, v.prevMosaicPhoto, pngBytes)
	}
	v.SetScore("Score: -")
}

func swapPhoto(l *LabelWidget, prev *Img, png []byte) *Img {
	if prev != nil {
		prev.Delete()
	}
	photo := NewPhoto(Data(png))
	l.Configure(Image(photo))
	return photo
}
