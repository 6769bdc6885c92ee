// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/filesmile/backend/internal/models"
	"github.com/filesmile/backend/internal/pdf"
	"github.com/filesmile/backend/internal/pipeline"
	"github.com/filesmile/backend/internal/session"
	"github.com/filesmile/backend/internal/upload"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionHandler handles batch session lifecycle and snapshots
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleGetSessionMsgpack(c echo.Context) error
	HandleSessionEvents(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
}

// FileHandler handles the files of a batch and the selection cursor
type FileHandler interface {
	HandleAddFile(c echo.Context) error
	HandleAddFileBinary(c echo.Context) error
	HandleRemoveFile(c echo.Context) error
	HandleClearFiles(c echo.Context) error
	HandleRequeueFile(c echo.Context) error
	HandleSelect(c echo.Context) error
	HandleNavigate(c echo.Context) error
}

// DetectHandler handles detection, matching and the prefix cache
type DetectHandler interface {
	HandleDetectFile(c echo.Context) error
	HandleDetectAll(c echo.Context) error
	HandleGetPrefixes(c echo.Context) error
	HandleReloadPrefixes(c echo.Context) error
	HandleSearchDocuments(c echo.Context) error
	HandleManualMatch(c echo.Context) error
}

// UploadHandler handles ERP upload jobs
type UploadHandler interface {
	HandleStartUpload(c echo.Context) error
	HandleGetUploadJob(c echo.Context) error
}

// ToolsHandler handles stateless barcode and PDF utilities
type ToolsHandler interface {
	HandleParseBarcode(c echo.Context) error
	HandlePageCount(c echo.Context) error
	HandleSplitPages(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Create(user string) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Delete(id string) error
	List() []models.BatchSession
	Len() int
}

// JobManager runs upload jobs
type JobManager interface {
	StartJob(ctx context.Context, sessionID string, batch upload.Batch, mode pipeline.UploadMode) (upload.Job, error)
	GetJob(id string) (upload.Job, bool)
	ActiveJob(sessionID string) (upload.Job, bool)
}

// TextDetector parses barcodes out of free text
type TextDetector interface {
	DetectFromText(text string) *models.BarcodeResult
}

// PageSplitter renders and counts PDF pages
type PageSplitter interface {
	SplitPages(ctx context.Context, data []byte, onProgress pdf.ProgressFunc) ([]models.PageResult, error)
	PageCount(data []byte) int
}

// DocumentFinder runs free-text document searches in the ERP
type DocumentFinder interface {
	Search(ctx context.Context, form, term string) ([]models.MatchedDocument, error)
}
