package pdf

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// RasterDocument renders pages of an opened PDF. Each Render call returns a
// freshly allocated image.
type RasterDocument interface {
	NumPages() int
	// Render rasterizes a 1-based page at scale times 72 DPI.
	Render(page int, scale float64) (image.Image, error)
	Close() error
}

// Rasterizer opens PDF payloads for rendering.
type Rasterizer interface {
	Open(data []byte) (RasterDocument, error)
}

// FitzRasterizer renders with MuPDF through go-fitz.
type FitzRasterizer struct{}

func (FitzRasterizer) Open(data []byte) (RasterDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open for rendering: %w", err)
	}
	return &fitzDoc{doc: doc}, nil
}

type fitzDoc struct {
	doc *fitz.Document
}

func (d *fitzDoc) NumPages() int {
	return d.doc.NumPage()
}

func (d *fitzDoc) Render(page int, scale float64) (image.Image, error) {
	if page < 1 || page > d.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	img, err := d.doc.ImageDPI(page-1, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return img, nil
}

func (d *fitzDoc) Close() error {
	return d.doc.Close()
}
