package models

// PageInfo is one rasterized PDF page encoded as PNG.
type PageInfo struct {
	PageNumber int    `json:"pageNumber"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	MimeType   string `json:"mimeType"`
	Data       []byte `json:"-"`
}

// PageResult is the outcome of rendering one page: either Page is set or
// Skipped holds the reason the page could not be rendered.
type PageResult struct {
	PageNumber int       `json:"pageNumber"`
	Page       *PageInfo `json:"page,omitempty"`
	Skipped    string    `json:"skipped,omitempty"`
}

// OK reports whether the page rendered.
func (r PageResult) OK() bool {
	return r.Page != nil
}
