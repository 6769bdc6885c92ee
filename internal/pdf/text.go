package pdf

import (
	"bytes"
	"fmt"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
)

// TextDocument exposes the text layer of an opened PDF.
type TextDocument interface {
	NumPages() int
	// PageText returns the text fragments of a 1-based page in reading order.
	PageText(page int) ([]string, error)
}

// TextReader opens the text layer of a PDF payload.
type TextReader interface {
	OpenText(data []byte) (TextDocument, error)
}

// LedongthucReader reads text layers with github.com/ledongthuc/pdf.
type LedongthucReader struct{}

func (LedongthucReader) OpenText(data []byte) (doc TextDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("open text layer: %v", r)
		}
	}()

	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open text layer: %w", err)
	}
	return &ledongthucDoc{r: r}, nil
}

type ledongthucDoc struct {
	r *lpdf.Reader
}

func (d *ledongthucDoc) NumPages() int {
	return d.r.NumPage()
}

func (d *ledongthucDoc) PageText(page int) (frags []string, err error) {
	// malformed content streams panic inside the reader
	defer func() {
		if r := recover(); r != nil {
			frags, err = nil, fmt.Errorf("page %d text: %v", page, r)
		}
	}()

	p := d.r.Page(page)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", page)
	}

	rows, err := p.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("page %d text: %w", page, err)
	}
	for _, row := range rows {
		var sb strings.Builder
		for _, t := range row.Content {
			sb.WriteString(t.S)
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			frags = append(frags, s)
		}
	}
	return frags, nil
}
