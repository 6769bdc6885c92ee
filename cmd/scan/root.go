package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/filesmile/backend/internal/barcode"
	"github.com/filesmile/backend/internal/logging"
	"github.com/filesmile/backend/internal/pdf"
)

var (
	rulesFile string
	maxPages  int
	scale     float64
	verbose   bool
	noBar     bool
)

var rootCmd = &cobra.Command{
	Use:   "scan",
	Short: "Detect document barcodes in local PDFs and images",
	Long: `scan runs the FileSmile barcode detection on local files without an ERP.
PDFs are searched in their text layer first and then as rendered pages.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "YAML barcode rules file (default built-in rules)")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", pdf.DefaultMaxPages, "pages searched per PDF")
	rootCmd.PersistentFlags().Float64Var(&scale, "scale", pdf.DefaultScale, "page render scale")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noBar, "no-progress", false, "disable progress bars")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() zerolog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Config{Level: level, Format: "console", Output: os.Stderr})
}

// newExtractor builds the detector stack from the persistent flags.
func newExtractor(log zerolog.Logger) (*barcode.Detector, *pdf.Extractor, error) {
	parser, err := barcode.ParserFromFile(rulesFile)
	if err != nil {
		return nil, nil, err
	}
	detector := barcode.NewDetector(parser, nil, logging.Component(log, "barcode"))
	extractor := pdf.NewExtractor(detector,
		pdf.WithMaxPages(maxPages),
		pdf.WithScale(scale),
		pdf.WithLogger(logging.Component(log, "pdf")),
	)
	return detector, extractor, nil
}
