package barcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageSource is the input to image detection: either a decoded image or
// encoded image bytes. The set of implementations is closed.
type ImageSource interface {
	imageSource()
}

// RawImage is an already decoded image.
type RawImage struct {
	Image image.Image
}

// EncodedImage holds encoded bytes (PNG, JPEG, GIF, BMP, TIFF or WebP).
type EncodedImage struct {
	Data []byte
}

func (RawImage) imageSource()     {}
func (EncodedImage) imageSource() {}

// ErrEmptyImage is returned when a source carries no image.
var ErrEmptyImage = errors.New("empty image source")

// DecodeSource resolves a source to an image handle.
func DecodeSource(src ImageSource) (image.Image, error) {
	switch s := src.(type) {
	case RawImage:
		if s.Image == nil {
			return nil, ErrEmptyImage
		}
		return s.Image, nil
	case EncodedImage:
		if len(s.Data) == 0 {
			return nil, ErrEmptyImage
		}
		img, _, err := image.Decode(bytes.NewReader(s.Data))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported image source %T", src)
	}
}
