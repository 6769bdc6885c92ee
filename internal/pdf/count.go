package pdf

import (
	"bytes"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageCounter reports the number of pages of a PDF payload.
type PageCounter interface {
	PageCount(data []byte) (int, error)
}

var disableConfigDir sync.Once

func relaxedConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PdfcpuCounter counts pages with pdfcpu in relaxed validation mode.
type PdfcpuCounter struct{}

func (PdfcpuCounter) PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), relaxedConfig())
}

// Validate checks that data is a readable PDF.
func Validate(data []byte) error {
	return api.Validate(bytes.NewReader(data), relaxedConfig())
}
