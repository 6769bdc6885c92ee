package testutil

import (
	"sync/atomic"

	"github.com/filesmile/backend/internal/barcode"
	"github.com/filesmile/backend/internal/models"
)

// TextDetector is an image detector that reads the payload bytes as the
// decoded barcode text, so tests can spool "images" as plain strings.
type TextDetector struct {
	Parser *barcode.Parser
	// Gate, when set, blocks every detection until a value is received.
	Gate chan struct{}

	running atomic.Int32
	maxSeen atomic.Int32
}

// NewTextDetector uses the default barcode rules.
func NewTextDetector() *TextDetector {
	return &TextDetector{Parser: barcode.DefaultParser()}
}

func (d *TextDetector) DetectFromImage(src barcode.ImageSource) *models.BarcodeResult {
	n := d.running.Add(1)
	defer d.running.Add(-1)
	for {
		m := d.maxSeen.Load()
		if n <= m || d.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	if d.Gate != nil {
		<-d.Gate
	}
	enc, ok := src.(barcode.EncodedImage)
	if !ok {
		return nil
	}
	res := d.Parser.Parse(string(enc.Data))
	if res != nil {
		res.Format = "CODE_128"
	}
	return res
}

// Running returns the number of detections currently inside DetectFromImage.
func (d *TextDetector) Running() int {
	return int(d.running.Load())
}

// MaxSeen returns the highest number of detections that ran at once.
func (d *TextDetector) MaxSeen() int {
	return int(d.maxSeen.Load())
}
