package images

import (
	"image"
	"image/color"
	"testing"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

func TestCropScreenRect_TranslatesAndClamps(t *testing.T) {
	snap := checker(100, 20)
	crop, local, err := CropScreenRect(snap, image.Pt(50, 30), image.Rect(60, 35, 200, 45))
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if local != image.Rect(10, 5, 100, 15) {
		t.Fatalf("unexpected local rect %v", local)
	}
	if crop.Bounds().Dx() != 90 || crop.Bounds().Dy() != 10 {
		t.Fatalf("unexpected crop size %v", crop.Bounds())
	}
}

func TestCropScreenRect_Outside(t *testing.T) {
	if _, _, err := CropScreenRect(checker(10, 10), image.Pt(0, 0), image.Rect(50, 50, 60, 60)); err == nil {
		t.Fatalf("expected error for rect outside snapshot")
	}
	if _, _, err := CropScreenRect(nil, image.Point{}, image.Rect(0, 0, 1, 1)); err == nil {
		t.Fatalf("expected error for nil snapshot")
	}
}

func TestPixelate_KeepsSizeAndFlattensCells(t *testing.T) {
	src := checker(40, 20)
	out := Pixelate(src, 10)
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 20 {
		t.Fatalf("expected 40x20, got %v", out.Bounds())
	}
	a, b := out.NRGBAAt(0, 0), out.NRGBAAt(9, 9)
	if a != b {
		t.Fatalf("expected uniform cell, got %v vs %v", a, b)
	}
}

func TestScaleToFit(t *testing.T) {
	src := checker(800, 200)
	out := ScaleToFit(src, 400, 400)
	if out.Bounds().Dx() != 400 || out.Bounds().Dy() != 100 {
		t.Fatalf("expected 400x100, got %v", out.Bounds())
	}
	small := checker(10, 10)
	if ScaleToFit(small, 100, 100) != image.Image(small) {
		t.Fatalf("expected fitting source returned unchanged")
	}
	if len(EncodePNG(small)) == 0 {
		t.Fatalf("expected png bytes")
	}
}
