// Package config provides XML-based configuration management for the FileSmile server.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"FileSmile"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// Barcode detection configuration
	Barcode BarcodeConfig `xml:"Barcode"`

	// ERP connection
	ERP ERPConfig `xml:"ERP"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains payload storage settings
type StorageConfig struct {
	DataDirectory  string `xml:"DataDirectory"`
	SpoolDirectory string `xml:"SpoolDirectory"`
}

// ProcessingConfig contains pipeline and session settings
type ProcessingConfig struct {
	MaxConcurrentDetections int `xml:"MaxConcurrentDetections"`
	DetectionTimeoutSeconds int `xml:"DetectionTimeoutSeconds"`
	SessionTimeoutMinutes   int `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes  int `xml:"CleanupIntervalMinutes"`
	MaxSessions             int `xml:"MaxSessions"`
}

// BarcodeConfig contains detection settings
type BarcodeConfig struct {
	RulesFile   string  `xml:"RulesFile"`
	MaxPdfPages int     `xml:"MaxPdfPages"`
	RenderScale float64 `xml:"RenderScale"`
}

// ERPConfig contains the ERP API connection
type ERPConfig struct {
	BaseURL        string `xml:"BaseURL"`
	TabulaIni      string `xml:"TabulaIni"`
	Company        string `xml:"Company"`
	Username       string `xml:"Username"`
	Password       string `xml:"Password"`
	AppID          string `xml:"AppID"`
	AppKey         string `xml:"AppKey"`
	TimeoutSeconds int    `xml:"TimeoutSeconds"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	LogFormat            string `xml:"LogFormat"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 120,
			IdleTimeout:  120,
			BodyLimit:    "100M",
		},
		Storage: StorageConfig{
			DataDirectory:  "./data",
			SpoolDirectory: "./data/spool",
		},
		Processing: ProcessingConfig{
			MaxConcurrentDetections: 1,
			DetectionTimeoutSeconds: 60,
			SessionTimeoutMinutes:   30,
			CleanupIntervalMinutes:  5,
			MaxSessions:             10,
		},
		Barcode: BarcodeConfig{
			RulesFile:   "",
			MaxPdfPages: 3,
			RenderScale: 2.0,
		},
		ERP: ERPConfig{
			TabulaIni:      "tabula.ini",
			TimeoutSeconds: 30,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			LogFormat:            "console",
			EnableRequestLogging: true,
		},
	}
}

// LoadDotEnv loads .env files into the environment. Missing files are ignored;
// variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- FileSmile Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects values the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Processing.MaxConcurrentDetections < 1 {
		errs = append(errs, errors.New("MaxConcurrentDetections must be at least 1"))
	}
	if c.Barcode.MaxPdfPages < 1 {
		errs = append(errs, errors.New("MaxPdfPages must be at least 1"))
	}
	if c.Barcode.RenderScale <= 0 {
		errs = append(errs, errors.New("RenderScale must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves the spool along with it unless the spool is absolute
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		if !filepath.IsAbs(c.Storage.SpoolDirectory) {
			c.Storage.SpoolDirectory = filepath.Join(dataDir, "spool")
		}
		c.Storage.DataDirectory = dataDir
	}

	overrides := map[string]*string{
		"ERP_BASE_URL":  &c.ERP.BaseURL,
		"ERP_COMPANY":   &c.ERP.Company,
		"ERP_USERNAME":  &c.ERP.Username,
		"ERP_PASSWORD":  &c.ERP.Password,
		"ERP_APP_ID":    &c.ERP.AppID,
		"ERP_APP_KEY":   &c.ERP.AppKey,
		"BARCODE_RULES": &c.Barcode.RulesFile,
		"LOG_FORMAT":    &c.Advanced.LogFormat,
	}
	for env, dst := range overrides {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = strings.ToLower(level)
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{&c.Storage.DataDirectory, &c.Storage.SpoolDirectory, &c.Barcode.RulesFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// DetectionTimeout returns the per-file detection timeout.
func (c *AppConfig) DetectionTimeout() time.Duration {
	return time.Duration(c.Processing.DetectionTimeoutSeconds) * time.Second
}

// SessionTimeout returns the idle time after which sessions are cleaned up.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often expired sessions and jobs are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Processing.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// ERPTimeout returns the ERP request timeout.
func (c *AppConfig) ERPTimeout() time.Duration {
	return time.Duration(c.ERP.TimeoutSeconds) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDirectory, c.Storage.SpoolDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
