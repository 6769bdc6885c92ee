// handlers_tools.go - Stateless barcode and PDF handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filesmile/backend/internal/erp"
	"github.com/filesmile/backend/internal/models"
)

// ToolsHandlerImpl implements the ToolsHandler interface
type ToolsHandlerImpl struct {
	detector TextDetector
	splitter PageSplitter
}

// NewToolsHandler creates a new tools handler instance
func NewToolsHandler(detector TextDetector, splitter PageSplitter) ToolsHandler {
	return &ToolsHandlerImpl{detector: detector, splitter: splitter}
}

type parseBarcodeRequest struct {
	Text string `json:"text"`
}

type parseBarcodeResponse struct {
	Found   bool                  `json:"found"`
	Barcode *models.BarcodeResult `json:"barcode,omitempty"`
}

type splitPage struct {
	PageNumber int    `json:"pageNumber"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	DataURL    string `json:"dataUrl,omitempty"`
	Skipped    string `json:"skipped,omitempty"`
}

// HandleParseBarcode finds the first barcode in free text
func (h *ToolsHandlerImpl) HandleParseBarcode(c echo.Context) error {
	var req parseBarcodeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Text == "" {
		return NewValidationError("text")
	}

	bc := h.detector.DetectFromText(req.Text)
	return c.JSON(http.StatusOK, parseBarcodeResponse{Found: bc != nil, Barcode: bc})
}

// HandlePageCount returns the page count of an uploaded PDF, 0 if unreadable
func (h *ToolsHandlerImpl) HandlePageCount(c echo.Context) error {
	_, data, err := readFormFile(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"pageCount": h.splitter.PageCount(data)})
}

// HandleSplitPages renders every page of an uploaded PDF as a PNG data URL
func (h *ToolsHandlerImpl) HandleSplitPages(c echo.Context) error {
	_, data, err := readFormFile(c)
	if err != nil {
		return err
	}

	results, err := h.splitter.SplitPages(c.Request().Context(), data, nil)
	if err != nil {
		return NewBadRequestError("cannot open PDF", err)
	}

	pages := make([]splitPage, 0, len(results))
	for _, r := range results {
		p := splitPage{PageNumber: r.PageNumber, Skipped: r.Skipped}
		if r.OK() {
			p.Width = r.Page.Width
			p.Height = r.Page.Height
			p.DataURL = erp.EncodeDataURL(r.Page.Data, r.Page.MimeType)
		}
		pages = append(pages, p)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pageCount": len(pages),
		"pages":     pages,
	})
}
