package images

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// CropScreenRect cuts the part of snapshot that lies under screen rect r.
// origin is the screen position of the snapshot's (0,0) pixel. The result
// is clamped to the snapshot and is at least 1x1.
func CropScreenRect(snapshot image.Image, origin image.Point, r image.Rectangle) (*image.NRGBA, image.Rectangle, error) {
	if snapshot == nil {
		return nil, image.Rectangle{}, errors.New("nil snapshot")
	}
	local := r.Sub(origin).Intersect(snapshot.Bounds())
	if local.Empty() {
		return nil, image.Rectangle{}, errors.New("rect outside snapshot")
	}
	return imaging.Crop(snapshot, local), local, nil
}
