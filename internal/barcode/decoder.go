package barcode

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// ErrNotFound is returned by a Decoder when the image holds no readable barcode.
var ErrNotFound = errors.New("barcode not found")

// Decoder reads a single barcode from an image.
type Decoder interface {
	// Decode returns the decoded text and symbology name, or ErrNotFound.
	Decode(img image.Image) (text string, format string, err error)
}

// OneDFormats are the 1-D symbologies the default decoder looks for.
var OneDFormats = []gozxing.BarcodeFormat{
	gozxing.BarcodeFormat_CODE_128,
	gozxing.BarcodeFormat_CODE_39,
	gozxing.BarcodeFormat_CODE_93,
	gozxing.BarcodeFormat_EAN_13,
	gozxing.BarcodeFormat_EAN_8,
	gozxing.BarcodeFormat_UPC_A,
	gozxing.BarcodeFormat_UPC_E,
	gozxing.BarcodeFormat_ITF,
	gozxing.BarcodeFormat_CODABAR,
}

// ZXingDecoder decodes 1-D barcodes with gozxing in try-harder mode.
// A fresh reader is built per call so one value can serve concurrent callers.
type ZXingDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewZXingDecoder returns a decoder restricted to formats, or OneDFormats when empty.
func NewZXingDecoder(formats ...gozxing.BarcodeFormat) *ZXingDecoder {
	if len(formats) == 0 {
		formats = OneDFormats
	}
	return &ZXingDecoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER:       true,
			gozxing.DecodeHintType_POSSIBLE_FORMATS: formats,
		},
	}
}

func (d *ZXingDecoder) Decode(img image.Image) (string, string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", "", fmt.Errorf("binarize: %w", err)
	}

	reader := oned.NewMultiFormatOneDReader(d.hints)
	result, err := reader.Decode(bmp, d.hints)
	if err != nil {
		var nf gozxing.NotFoundException
		if errors.As(err, &nf) {
			return "", "", ErrNotFound
		}
		return "", "", err
	}
	return result.GetText(), result.GetBarcodeFormat().String(), nil
}
