package model

import (
	"fmt"
	"image"
	"regexp"
	"strconv"
	"strings"
)

// geomRe matches window geometry strings in the format "WIDTHxHEIGHT+X+Y".
var geomRe = regexp.MustCompile(`^(\d+)x(\d+)\+(-?\d+)\+(-?\d+)$`)

// ParseGeometry parses a Tk geometry string into a screen rectangle.
func ParseGeometry(g string) (image.Rectangle, bool) {
	m := geomRe.FindStringSubmatch(strings.TrimSpace(g))
	if len(m) != 5 {
		return image.Rectangle{}, false
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	x, _ := strconv.Atoi(m[3])
	y, _ := strconv.Atoi(m[4])
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(x, y, x+w, y+h), true
}

// FormatGeometry renders r as a Tk geometry string.
func FormatGeometry(r image.Rectangle) string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Dx(), r.Dy(), r.Min.X, r.Min.Y)
}

// DefaultSelection is a band two thirds of the screen wide and a ninth tall,
// centred horizontally in the lower fifth, where subtitles usually sit.
func DefaultSelection(screen image.Rectangle) image.Rectangle {
	w := screen.Dx() * 2 / 3
	h := screen.Dy() / 9
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x := screen.Min.X + (screen.Dx()-w)/2
	y := screen.Min.Y + screen.Dy()*4/5 - h/2
	return image.Rect(x, y, x+w, y+h)
}
