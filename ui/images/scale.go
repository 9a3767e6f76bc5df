package images

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultMosaicCell is the mosaic cell edge in pixels.
const DefaultMosaicCell = 12

// EncodePNG encodes an image to PNG bytes. Errors are ignored and may return an empty slice.
func EncodePNG(img image.Image) []byte {
	if img == nil {
		return nil
	}
	var buf bytes.Buffer
	_ = imaging.Encode(&buf, img, imaging.PNG)
	return buf.Bytes()
}

// ScaleToFit shrinks src to fit within maxW x maxH, preserving aspect ratio.
// Sources that already fit are returned unchanged.
func ScaleToFit(src image.Image, maxW, maxH int) image.Image {
	if src == nil {
		return nil
	}
	b := src.Bounds()
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return src
	}
	if maxW < 1 {
		maxW = 1
	}
	if maxH < 1 {
		maxH = 1
	}
	return imaging.Fit(src, maxW, maxH, imaging.NearestNeighbor)
}

// Pixelate returns a mosaic of src with square cells of the given size.
func Pixelate(src image.Image, cell int) *image.NRGBA {
	if src == nil {
		return nil
	}
	b := src.Bounds()
	if cell < 2 {
		cell = 2
	}
	w, h := b.Dx()/cell, b.Dy()/cell
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	small := imaging.Resize(src, w, h, imaging.Box)
	return imaging.Resize(small, b.Dx(), b.Dy(), imaging.NearestNeighbor)
}
