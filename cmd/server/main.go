package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/filesmile/backend/internal/api"
	"github.com/filesmile/backend/internal/barcode"
	"github.com/filesmile/backend/internal/config"
	"github.com/filesmile/backend/internal/erp"
	"github.com/filesmile/backend/internal/logging"
	"github.com/filesmile/backend/internal/pdf"
	"github.com/filesmile/backend/internal/pipeline"
	"github.com/filesmile/backend/internal/session"
	"github.com/filesmile/backend/internal/upload"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	if err := config.LoadDotEnv(filepath.Join(exeDir, ".env"), ".env"); err != nil {
		fmt.Printf("Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// Load XML configuration
	configPath := filepath.Join(exeDir, "FileSmile.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{
		Level:   cfg.Advanced.LogLevel,
		Format:  cfg.Advanced.LogFormat,
		Service: "filesmile",
	})

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("failed to create directories")
	}

	parser, err := barcode.ParserFromFile(cfg.Barcode.RulesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Barcode.RulesFile).Msg("failed to load barcode rules")
	}
	log.Info().Strs("rules", parser.RuleNames()).Msg("barcode rules loaded")

	detector := barcode.NewDetector(parser, barcode.NewZXingDecoder(), logging.Component(log, "barcode"))
	extractor := pdf.NewExtractor(detector,
		pdf.WithMaxPages(cfg.Barcode.MaxPdfPages),
		pdf.WithScale(cfg.Barcode.RenderScale),
		pdf.WithLogger(logging.Component(log, "pdf")),
	)

	erpClient, err := erp.NewClient(erp.Config{
		BaseURL:   cfg.ERP.BaseURL,
		TabulaIni: cfg.ERP.TabulaIni,
		Company:   cfg.ERP.Company,
		Username:  cfg.ERP.Username,
		Password:  cfg.ERP.Password,
		AppID:     cfg.ERP.AppID,
		AppKey:    cfg.ERP.AppKey,
		Timeout:   cfg.ERPTimeout(),
	}, logging.Component(log, "erp"))
	if err != nil {
		log.Fatal().Err(err).Msg("ERP connection is not configured")
	}

	sessionMgr := session.NewManager(session.Services{
		Catalog:   erpClient,
		Detector:  detector,
		Extractor: extractor,
		Searcher:  erpClient,
		Uploader:  erpClient,
	}, session.Config{
		SpoolDir:    cfg.Storage.SpoolDirectory,
		MaxSessions: cfg.Processing.MaxSessions,
		LoadTimeout: cfg.ERPTimeout(),
		Pipeline: pipeline.Config{
			MaxConcurrent:    cfg.Processing.MaxConcurrentDetections,
			DetectionTimeout: cfg.DetectionTimeout(),
		},
	}, logging.Component(log, "session"))

	uploadMgr := upload.NewManager(logging.Component(log, "upload"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background session and job cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sessionMgr.CleanupOldSessions(cfg.SessionTimeout()); n > 0 {
					log.Info().Int("sessions", n).Msg("expired sessions removed")
				}
				uploadMgr.CleanupOldJobs(cfg.SessionTimeout())
			}
		}
	}()

	api.ShowErrorDetails = log.GetLevel() <= zerolog.DebugLevel

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	// Configure middleware
	httpLog := logging.Component(log, "http")
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/events") ||
				strings.HasPrefix(path, "/api/uploads/") ||
				path == "/api/health"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			var ev *zerolog.Event
			if v.Error != nil {
				ev = httpLog.Warn().Err(v.Error)
			} else {
				ev = httpLog.Info()
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).
				Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			httpLog.Error().Err(err).Bytes("stack", stack).Msg("handler panicked")
			return err
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-User"},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Sessions: sessionMgr,
		Jobs:     uploadMgr,
		Detector: detector,
		Splitter: extractor,
		Finder:   erpClient,
		Version:  Version,
		Log:      logging.Component(log, "api"),
	})
	api.RegisterRoutes(e, handlers)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Print startup banner
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           FileSmile Barcode Server                        ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Spool Dir: %-46s║\n", cfg.Storage.SpoolDirectory)
	fmt.Printf("║  ERP:       %-46s║\n", cfg.ERP.BaseURL)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	for _, sum := range sessionMgr.List() {
		if err := sessionMgr.Delete(sum.ID); err != nil {
			log.Warn().Err(err).Str("session", sum.ID).Msg("failed to close session")
		}
	}
}
