// handlers_files.go - Batch file and cursor handlers
package api

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/filesmile/backend/internal/erp"
	"github.com/filesmile/backend/internal/models"
	"github.com/filesmile/backend/internal/pipeline"
	"github.com/filesmile/backend/internal/session"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	sessions SessionManager
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(sessions SessionManager) FileHandler {
	return &FileHandlerImpl{sessions: sessions}
}

type addFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64 or data URL
}

func (r *addFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

func (r *addFileRequest) decode() ([]byte, error) {
	if strings.HasPrefix(r.Data, "data:") {
		data, _, err := erp.DecodeDataURL(r.Data)
		return data, err
	}
	return base64.StdEncoding.DecodeString(r.Data)
}

type selectRequest struct {
	Index *int `json:"index"`
}

type selectionResponse struct {
	Selected int                 `json:"selected"`
	File     *models.BarcodeFile `json:"file,omitempty"`
}

func addToSession(c echo.Context, s *session.Session, name string, data []byte) error {
	if len(data) == 0 {
		return NewValidationError("data")
	}
	// PDFs are not validated here; one no reader can open is detected as
	// not_found by the extraction passes.
	f, err := s.AddFile(name, data)
	if err != nil {
		return fromDomainError("failed to add file", err)
	}
	return c.JSON(http.StatusCreated, f)
}

// HandleAddFile accepts a file as base64 or data URL JSON
func (h *FileHandlerImpl) HandleAddFile(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req addFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	data, err := req.decode()
	if err != nil {
		return NewBadRequestError("invalid file data", err)
	}
	return addToSession(c, s, req.Name, data)
}

// HandleAddFileBinary accepts raw binary file upload (multipart/form-data)
func (h *FileHandlerImpl) HandleAddFileBinary(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	name, data, err := readFormFile(c)
	if err != nil {
		return err
	}
	return addToSession(c, s, name, data)
}

// readFormFile reads the multipart "file" field.
func readFormFile(c echo.Context) (string, []byte, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return "", nil, NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return "", nil, NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", nil, NewInternalError("failed to read uploaded file", err)
	}
	return file.Filename, data, nil
}

// HandleRemoveFile removes one file and its payload
func (h *FileHandlerImpl) HandleRemoveFile(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	if err := s.RemoveFile(c.Param("id")); err != nil {
		return fromDomainError("failed to remove file", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleClearFiles empties the batch
func (h *FileHandlerImpl) HandleClearFiles(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	if err := s.Clear(); err != nil {
		return fromDomainError("failed to clear batch", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRequeueFile returns a file to pending
func (h *FileHandlerImpl) HandleRequeueFile(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if _, err := s.Store.Dispatch(pipeline.Requeue{ID: id}); err != nil {
		return fromDomainError("cannot requeue file", err)
	}
	f, _ := s.Store.File(id)
	return c.JSON(http.StatusOK, f)
}

// HandleSelect moves the cursor to an index
func (h *FileHandlerImpl) HandleSelect(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Index == nil {
		return NewValidationError("index")
	}

	st, err := s.Store.Dispatch(pipeline.Select{Index: *req.Index})
	if err != nil {
		return fromDomainError("failed to select file", err)
	}
	return c.JSON(http.StatusOK, selection(st))
}

// HandleNavigate moves the cursor first, prev, next or last
func (h *FileHandlerImpl) HandleNavigate(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	dir, err := pipeline.ParseDirection(c.Param("dir"))
	if err != nil {
		return NewBadRequestError("invalid direction", err)
	}

	st, err := s.Store.Dispatch(pipeline.Navigate{Direction: dir})
	if err != nil {
		return fromDomainError("failed to navigate", err)
	}
	return c.JSON(http.StatusOK, selection(st))
}

func selection(st pipeline.State) selectionResponse {
	resp := selectionResponse{Selected: st.Selected}
	if f, ok := st.SelectedFile(); ok {
		resp.File = &f
	}
	return resp
}
