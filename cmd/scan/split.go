package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filesmile/backend/internal/pdf"
)

var splitOut string

var splitCmd = &cobra.Command{
	Use:   "split <pdf>",
	Short: "Render every page of a PDF to PNG",
	Args:  cobra.ExactArgs(1),
	RunE:  runSplit,
}

var pagesCmd = &cobra.Command{
	Use:   "pages <pdf>",
	Short: "Print the page count of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		_, extractor, err := newExtractor(newLogger())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), extractor.PageCount(data))
		return nil
	},
}

func init() {
	splitCmd.Flags().StringVarP(&splitOut, "out", "o", ".", "output directory")
	rootCmd.AddCommand(splitCmd, pagesCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := pdf.Validate(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	_, extractor, err := newExtractor(newLogger())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(splitOut, 0755); err != nil {
		return err
	}

	bar := newPageBar(filepath.Base(path))
	results, err := extractor.SplitPages(cmd.Context(), data, bar.Func())
	bar.Finish()
	if err != nil {
		return fmt.Errorf("split %s: %w", path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	written := 0
	for _, r := range results {
		if !r.OK() {
			fmt.Fprintf(cmd.ErrOrStderr(), "page %d skipped: %s\n", r.PageNumber, r.Skipped)
			continue
		}
		name := filepath.Join(splitOut, fmt.Sprintf("%s-%03d.png", base, r.PageNumber))
		if err := os.WriteFile(name, r.Page.Data, 0644); err != nil {
			return err
		}
		written++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d pages written to %s\n", written, len(results), splitOut)
	return nil
}
