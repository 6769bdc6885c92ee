package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/filesmile/backend/internal/pdf"
)

// pageBar shows per-page progress of one PDF.
type pageBar struct {
	bar   *progressbar.ProgressBar
	max   int
	phase pdf.Phase
}

func newPageBar(name string) *pageBar {
	if noBar {
		return nil
	}
	bar := progressbar.NewOptions(1,
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &pageBar{bar: bar, max: 1}
}

// Update is a pdf.ProgressFunc.
func (b *pageBar) Update(p pdf.Progress) {
	if b == nil {
		return
	}
	if p.Pages != b.max && p.Pages > 0 {
		b.max = p.Pages
		b.bar.ChangeMax(p.Pages)
	}
	if p.Phase != b.phase {
		b.phase = p.Phase
		b.bar.Describe(fmt.Sprintf("%-5s", p.Phase))
	}
	_ = b.bar.Set(p.Page)
}

// Func returns the callback, nil when bars are disabled.
func (b *pageBar) Func() pdf.ProgressFunc {
	if b == nil {
		return nil
	}
	return b.Update
}

func (b *pageBar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
