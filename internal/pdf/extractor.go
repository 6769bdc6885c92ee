// Package pdf extracts barcodes from PDF payloads and rasterizes their pages.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/rs/zerolog"

	"github.com/filesmile/backend/internal/barcode"
	"github.com/filesmile/backend/internal/models"
)

// Defaults for barcode extraction.
const (
	DefaultMaxPages = 3
	DefaultScale    = 2.0
)

// Method names the strategy that produced a barcode.
type Method string

const (
	MethodNone  Method = ""
	MethodText  Method = "text"
	MethodImage Method = "image"
)

// Phase tags progress callbacks.
type Phase string

const (
	PhaseText  Phase = "text"
	PhaseImage Phase = "image"
	PhaseSplit Phase = "split"
)

// Progress is reported once per page attempted, before the page is processed.
type Progress struct {
	Phase Phase `json:"phase"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"` // pages in this phase
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Result is the outcome of ExtractBarcode. Barcode is nil and PageNumber is 0
// when neither pass found anything.
type Result struct {
	Barcode    *models.BarcodeResult `json:"barcode"`
	Method     Method                `json:"method"`
	PageNumber int                   `json:"pageNumber"`
}

// BarcodeDetector is the detection capability the extractor needs.
type BarcodeDetector interface {
	DetectFromText(text string) *models.BarcodeResult
	DetectFromImage(src barcode.ImageSource) *models.BarcodeResult
}

// Extractor finds barcodes in PDFs, text layer first then rendered pages.
type Extractor struct {
	detector BarcodeDetector
	text     TextReader
	raster   Rasterizer
	counter  PageCounter
	maxPages int
	scale    float64
	log      zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithTextReader(r TextReader) Option { return func(e *Extractor) { e.text = r } }
func WithRasterizer(r Rasterizer) Option { return func(e *Extractor) { e.raster = r } }
func WithPageCounter(c PageCounter) Option { return func(e *Extractor) { e.counter = c } }
func WithLogger(l zerolog.Logger) Option { return func(e *Extractor) { e.log = l } }

// WithMaxPages caps the pages inspected by each pass.
func WithMaxPages(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPages = n
		}
	}
}

// WithScale sets the render scale relative to 72 DPI.
func WithScale(s float64) Option {
	return func(e *Extractor) {
		if s > 0 {
			e.scale = s
		}
	}
}

// NewExtractor creates an extractor backed by ledongthuc/pdf, go-fitz and
// pdfcpu unless overridden.
func NewExtractor(detector BarcodeDetector, opts ...Option) *Extractor {
	e := &Extractor{
		detector: detector,
		text:     LedongthucReader{},
		raster:   FitzRasterizer{},
		counter:  PdfcpuCounter{},
		maxPages: DefaultMaxPages,
		scale:    DefaultScale,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractBarcode runs the text pass over the first pages and falls back to
// the image pass over the same pages. Page failures are logged and skipped.
// The only error returned is the context's.
func (e *Extractor) ExtractBarcode(ctx context.Context, data []byte, onProgress ProgressFunc) (Result, error) {
	res, err := e.textPass(ctx, data, onProgress)
	if err != nil || res.Barcode != nil {
		return res, err
	}
	return e.imagePass(ctx, data, onProgress)
}

func (e *Extractor) textPass(ctx context.Context, data []byte, onProgress ProgressFunc) (Result, error) {
	doc, err := e.text.OpenText(data)
	if err != nil {
		e.log.Warn().Err(err).Msg("text layer unavailable")
		return Result{}, nil
	}

	pages := min(e.maxPages, doc.NumPages())
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		report(onProgress, PhaseText, page, pages)

		frags, err := doc.PageText(page)
		if err != nil {
			e.log.Warn().Err(err).Int("page", page).Msg("text extraction failed")
			continue
		}
		if bc := e.detector.DetectFromText(strings.Join(frags, " ")); bc != nil {
			return Result{Barcode: bc, Method: MethodText, PageNumber: page}, nil
		}
	}
	return Result{}, nil
}

func (e *Extractor) imagePass(ctx context.Context, data []byte, onProgress ProgressFunc) (Result, error) {
	doc, err := e.raster.Open(data)
	if err != nil {
		e.log.Warn().Err(err).Msg("pdf could not be opened for rendering")
		return Result{}, nil
	}
	defer doc.Close()

	pages := min(e.maxPages, doc.NumPages())
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		report(onProgress, PhaseImage, page, pages)

		img, err := doc.Render(page, e.scale)
		if err != nil {
			e.log.Warn().Err(err).Int("page", page).Msg("page render failed")
			continue
		}
		if bc := e.detector.DetectFromImage(barcode.RawImage{Image: img}); bc != nil {
			return Result{Barcode: bc, Method: MethodImage, PageNumber: page}, nil
		}
	}
	return Result{}, nil
}

// SplitPages renders every page to PNG. The result holds one entry per page in
// page order; a page that fails to render is a Skipped entry, so index i is
// always page i+1. Failing to open the document is an error.
func (e *Extractor) SplitPages(ctx context.Context, data []byte, onProgress ProgressFunc) ([]models.PageResult, error) {
	doc, err := e.raster.Open(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	pages := doc.NumPages()
	results := make([]models.PageResult, 0, pages)
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(onProgress, PhaseSplit, page, pages)

		info, err := e.renderPNG(doc, page)
		if err != nil {
			e.log.Warn().Err(err).Int("page", page).Msg("page skipped")
			results = append(results, models.PageResult{PageNumber: page, Skipped: err.Error()})
			continue
		}
		results = append(results, models.PageResult{PageNumber: page, Page: info})
	}
	return results, nil
}

func (e *Extractor) renderPNG(doc RasterDocument, page int) (*models.PageInfo, error) {
	img, err := doc.Render(page, e.scale)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page, err)
	}
	b := img.Bounds()
	return &models.PageInfo{
		PageNumber: page,
		Width:      b.Dx(),
		Height:     b.Dy(),
		MimeType:   "image/png",
		Data:       buf.Bytes(),
	}, nil
}

// PageCount returns the number of pages, or 0 if the payload cannot be read.
func (e *Extractor) PageCount(data []byte) int {
	n, err := e.counter.PageCount(data)
	if err != nil {
		e.log.Debug().Err(err).Msg("page count failed")
		return 0
	}
	return n
}

// Pages drops skipped entries, keeping rendered pages in order.
func Pages(results []models.PageResult) []models.PageInfo {
	out := make([]models.PageInfo, 0, len(results))
	for _, r := range results {
		if r.Page != nil {
			out = append(out, *r.Page)
		}
	}
	return out
}

func report(fn ProgressFunc, phase Phase, page, pages int) {
	if fn != nil {
		fn(Progress{Phase: phase, Page: page, Pages: pages})
	}
}
