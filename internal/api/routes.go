// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions SessionManager
	Jobs     JobManager
	Detector TextDetector
	Splitter PageSplitter
	Finder   DocumentFinder // optional; search is disabled without it
	Version  string
	Log      zerolog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Session SessionHandler
	File    FileHandler
	Detect  DetectHandler
	Upload  UploadHandler
	Tools   ToolsHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Sessions),
		Session: NewSessionHandler(deps.Sessions, deps.Log),
		File:    NewFileHandler(deps.Sessions),
		Detect:  NewDetectHandler(deps.Sessions, deps.Finder),
		Upload:  NewUploadHandler(deps.Sessions, deps.Jobs),
		Tools:   NewToolsHandler(deps.Detector, deps.Splitter),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Sessions
	sessions := apiGroup.Group("/sessions")
	sessions.POST("", handlers.Session.HandleCreateSession)
	sessions.GET("", handlers.Session.HandleListSessions)
	sessions.GET("/:sessionId", handlers.Session.HandleGetSession)
	sessions.GET("/:sessionId/msgpack", handlers.Session.HandleGetSessionMsgpack)
	sessions.GET("/:sessionId/events", handlers.Session.HandleSessionEvents)
	sessions.DELETE("/:sessionId", handlers.Session.HandleDeleteSession)

	// Files and cursor
	sessions.POST("/:sessionId/files", handlers.File.HandleAddFile)
	sessions.POST("/:sessionId/files/binary", handlers.File.HandleAddFileBinary)
	sessions.DELETE("/:sessionId/files/:id", handlers.File.HandleRemoveFile)
	sessions.DELETE("/:sessionId/files", handlers.File.HandleClearFiles)
	sessions.POST("/:sessionId/files/:id/requeue", handlers.File.HandleRequeueFile)
	sessions.POST("/:sessionId/select", handlers.File.HandleSelect)
	sessions.POST("/:sessionId/navigate/:dir", handlers.File.HandleNavigate)

	// Detection and matching
	sessions.POST("/:sessionId/files/:id/detect", handlers.Detect.HandleDetectFile)
	sessions.POST("/:sessionId/files/:id/match", handlers.Detect.HandleManualMatch)
	sessions.POST("/:sessionId/detect", handlers.Detect.HandleDetectAll)
	sessions.GET("/:sessionId/prefixes", handlers.Detect.HandleGetPrefixes)
	sessions.POST("/:sessionId/prefixes/reload", handlers.Detect.HandleReloadPrefixes)
	sessions.GET("/:sessionId/search", handlers.Detect.HandleSearchDocuments)

	// Uploads
	sessions.POST("/:sessionId/upload", handlers.Upload.HandleStartUpload)
	apiGroup.GET("/uploads/:jobId", handlers.Upload.HandleGetUploadJob)

	// Stateless tools
	apiGroup.POST("/barcode/parse", handlers.Tools.HandleParseBarcode)
	apiGroup.POST("/pdf/page-count", handlers.Tools.HandlePageCount)
	apiGroup.POST("/pdf/split", handlers.Tools.HandleSplitPages)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
