// handlers_upload.go - ERP upload job handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filesmile/backend/internal/pipeline"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	sessions SessionManager
	jobs     JobManager
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(sessions SessionManager, jobs JobManager) UploadHandler {
	return &UploadHandlerImpl{sessions: sessions, jobs: jobs}
}

type startUploadRequest struct {
	Mode string `json:"mode"`
}

// HandleStartUpload starts an async upload of the batch
func (h *UploadHandlerImpl) HandleStartUpload(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req startUploadRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
	}
	mode, err := pipeline.ParseUploadMode(req.Mode)
	if err != nil {
		return NewBadRequestError("invalid upload mode", err)
	}

	job, err := h.jobs.StartJob(s.Context(), s.ID, s.Processor, mode)
	if err != nil {
		return fromDomainError("cannot start upload", err)
	}
	return c.JSON(http.StatusAccepted, job)
}

// HandleGetUploadJob returns the status of an upload job
func (h *UploadHandlerImpl) HandleGetUploadJob(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("upload job", id)
	}
	return c.JSON(http.StatusOK, job)
}
