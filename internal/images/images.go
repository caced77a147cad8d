// Package images normalizes uploaded photos: every accepted image is
// resized to a fixed geometry and re-encoded as JPEG before it reaches
// object storage.
package images

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// Tour images are landscape 3:2.
	TourWidth  = 2000
	TourHeight = 1350

	// Profile photos are square, center-cropped.
	ProfileSize = 500

	jpegQuality = 90
)

// ContentType is the type of every processed image.
const ContentType = "image/jpeg"

// AcceptedUpload reports whether the multipart part looks like an image.
// The decode step is the real gate; this only rejects obvious garbage
// early.
func AcceptedUpload(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// ResizeJPEG decodes an uploaded image, scales it to exactly width x
// height, and re-encodes it as JPEG.
func ResizeJPEG(r io.Reader, width, height int) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	resized := imaging.Resize(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// SquareJPEG decodes an uploaded image, center-crops it to a size x size
// square, and re-encodes it as JPEG. Used for profile photos.
func SquareJPEG(r io.Reader, size int) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	cropped := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
