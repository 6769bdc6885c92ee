package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/filesmile/backend/internal/barcode"
	"github.com/filesmile/backend/internal/models"
	"github.com/filesmile/backend/internal/pdf"
)

var detectCmd = &cobra.Command{
	Use:   "detect <file>...",
	Short: "Print the barcode found in each file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

type detectRow struct {
	name   string
	result pdf.Result
	err    error
}

func runDetect(cmd *cobra.Command, args []string) error {
	log := newLogger()
	detector, extractor, err := newExtractor(log)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	rows := make([]detectRow, 0, len(args))
	for _, path := range args {
		row := detectRow{name: filepath.Base(path)}
		data, err := os.ReadFile(path)
		if err != nil {
			row.err = err
			rows = append(rows, row)
			continue
		}

		if models.DetectFileType(path, data) == models.FileTypePDF {
			bar := newPageBar(row.name)
			row.result, row.err = extractor.ExtractBarcode(cmd.Context(), data, bar.Func())
			bar.Finish()
		} else if bc := detector.DetectFromImage(barcode.EncodedImage{Data: data}); bc != nil {
			row.result = pdf.Result{Barcode: bc, Method: pdf.MethodImage}
		}
		rows = append(rows, row)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tBARCODE\tDOCUMENT\tMETHOD\tPAGE")
	failed := 0
	for _, r := range rows {
		switch {
		case r.err != nil:
			failed++
			fmt.Fprintf(w, "%s\terror: %v\t\t\t\n", r.name, r.err)
		case r.result.Barcode == nil:
			fmt.Fprintf(w, "%s\t-\t\t\t\n", r.name)
		default:
			page := "-"
			if r.result.PageNumber > 0 {
				page = fmt.Sprint(r.result.PageNumber)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.name, r.result.Barcode.Value,
				r.result.Barcode.CanonicalID(), r.result.Method, page)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be read", failed, len(rows))
	}
	return nil
}
