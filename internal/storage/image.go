package storage

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
)

const thumbSize = 300

// Thumbnail decodes an image and returns a JPEG that fits inside 300x300
// together with the original dimensions.
func Thumbnail(data []byte) (thumb []byte, width, height int, err error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, err
	}
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()

	var small image.Image = img
	if width > thumbSize || height > thumbSize {
		small = imaging.Fit(img, thumbSize, thumbSize, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), width, height, nil
}
