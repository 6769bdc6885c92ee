// handlers_detect.go - Detection, matching and prefix cache handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/filesmile/backend/internal/models"
	"github.com/filesmile/backend/internal/pipeline"
	"github.com/filesmile/backend/internal/session"
)

// DetectHandlerImpl implements the DetectHandler interface
type DetectHandlerImpl struct {
	sessions SessionManager
	finder   DocumentFinder
}

// NewDetectHandler creates a new detect handler instance
func NewDetectHandler(sessions SessionManager, finder DocumentFinder) DetectHandler {
	return &DetectHandlerImpl{sessions: sessions, finder: finder}
}

type prefixesResponse struct {
	Status   models.CacheStatus      `json:"status"`
	Size     int                     `json:"size"`
	LoadedAt *time.Time              `json:"loadedAt,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Entries  []models.FormPrefixInfo `json:"entries"`
}

func newPrefixesResponse(s *session.Session) prefixesResponse {
	resp := prefixesResponse{
		Status:  s.Cache.Status(),
		Size:    s.Cache.Len(),
		Entries: s.Cache.Entries(),
	}
	if at := s.Cache.LoadedAt(); !at.IsZero() {
		resp.LoadedAt = &at
	}
	if err := s.Cache.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// HandleDetectFile detects and matches one file synchronously. This is also
// the retry path for files in error or not_found.
func (h *DetectHandlerImpl) HandleDetectFile(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	id := c.Param("id")
	if err := s.Processor.ProcessFile(c.Request().Context(), id); err != nil {
		return fromDomainError("cannot detect file", err)
	}
	f, ok := s.Store.File(id)
	if !ok {
		return NewNotFoundError("file", id)
	}
	return c.JSON(http.StatusOK, f)
}

// HandleDetectAll starts detection of every pending file in the background
func (h *DetectHandlerImpl) HandleDetectAll(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	if err := s.StartProcessing(); err != nil {
		return fromDomainError("cannot start detection", err)
	}
	return c.JSON(http.StatusAccepted, s.Summary())
}

// HandleGetPrefixes returns the prefix cache status and entries
func (h *DetectHandlerImpl) HandleGetPrefixes(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newPrefixesResponse(s))
}

// HandleReloadPrefixes reloads the prefix cache from the ERP
func (h *DetectHandlerImpl) HandleReloadPrefixes(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	if err := s.ReloadPrefixes(c.Request().Context()); err != nil {
		return NewUpstreamError("failed to load prefixes", err)
	}
	return c.JSON(http.StatusOK, newPrefixesResponse(s))
}

// HandleSearchDocuments runs a free-text search in the form registered for a prefix
func (h *DetectHandlerImpl) HandleSearchDocuments(c echo.Context) error {
	if h.finder == nil {
		return NewServiceUnavailableError("document search is not configured")
	}
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	prefix := c.QueryParam("prefix")
	if prefix == "" {
		return NewValidationError("prefix")
	}
	term := c.QueryParam("q")
	if term == "" {
		return NewValidationError("q")
	}

	form, ok := s.Cache.Get(prefix)
	if !ok {
		return NewNotFoundError("prefix", prefix)
	}
	docs, err := h.finder.Search(c.Request().Context(), form.EntityName, term)
	if err != nil {
		return NewUpstreamError("document search failed", err)
	}
	return c.JSON(http.StatusOK, docs)
}

// HandleManualMatch assigns a document chosen by the user to a file
func (h *DetectHandlerImpl) HandleManualMatch(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var doc models.MatchedDocument
	if err := c.Bind(&doc); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if doc.Form == "" {
		return NewValidationError("form")
	}
	if doc.FormKey == "" {
		return NewValidationError("formKey")
	}
	if doc.ExtFilesForm == "" {
		doc.ExtFilesForm = models.DefaultExtFilesForm
	}

	id := c.Param("id")
	if _, err := s.Store.Dispatch(pipeline.ManualMatch{ID: id, Document: doc}); err != nil {
		return fromDomainError("cannot match file", err)
	}
	f, _ := s.Store.File(id)
	return c.JSON(http.StatusOK, f)
}
