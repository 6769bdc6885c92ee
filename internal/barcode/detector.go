package barcode

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/rs/zerolog"

	"github.com/filesmile/backend/internal/models"
)

// Detector finds parseable barcodes in text and images. Detection never
// fails: anything short of a parsed result is reported as nil.
type Detector struct {
	parser  *Parser
	decoder Decoder
	log     zerolog.Logger
}

// NewDetector creates a detector. A nil parser uses the default rules and a
// nil decoder uses gozxing.
func NewDetector(parser *Parser, decoder Decoder, log zerolog.Logger) *Detector {
	if parser == nil {
		parser = DefaultParser()
	}
	if decoder == nil {
		decoder = NewZXingDecoder()
	}
	return &Detector{parser: parser, decoder: decoder, log: log}
}

// Parser returns the parser used for decoded values.
func (d *Detector) Parser() *Parser {
	return d.parser
}

// DetectFromText scans lines top to bottom and tokens left to right and
// returns the first token that parses.
func (d *Detector) DetectFromText(text string) *models.BarcodeResult {
	for _, line := range strings.Split(text, "\n") {
		for _, tok := range strings.Fields(line) {
			if res := d.parser.Parse(tok); res != nil {
				res.Format = models.FormatText
				return res
			}
		}
	}
	return nil
}

// DetectFromImage decodes a 1-D barcode and parses its value. A decoded value
// that no rule accepts yields nil.
func (d *Detector) DetectFromImage(src ImageSource) *models.BarcodeResult {
	img, err := DecodeSource(src)
	if err != nil {
		d.log.Warn().Err(err).Msg("image source could not be decoded")
		return nil
	}

	text, format, err := d.safeDecode(img)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			d.log.Warn().Err(err).Msg("barcode decoder failed")
		}
		return nil
	}

	res := d.parser.Parse(text)
	if res == nil {
		d.log.Debug().Str("value", text).Str("format", format).Msg("decoded barcode matches no rule")
		return nil
	}
	res.Format = format
	return res
}

func (d *Detector) safeDecode(img image.Image) (text, format string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return d.decoder.Decode(img)
}
