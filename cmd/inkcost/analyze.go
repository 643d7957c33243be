package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
	"github.com/book-expert/ink-coverage-service/internal/pdfrender"
	"github.com/book-expert/ink-coverage-service/internal/pricing"
	"github.com/book-expert/ink-coverage-service/internal/report"
)

// reportDirMode is the permission used for the report directory.
const reportDirMode = 0o750

// ErrReportDirRequired is returned when no output directory is configured.
var ErrReportDirRequired = errors.New("output directory is required for reports")

var analyzeFlags flags

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Render PDFs, measure their ink coverage and price them",
	Args:  cobra.NoArgs,
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFlags.inputPath, "input", "i", "", "Input directory of PDF files, or a single PDF")
	analyzeCmd.Flags().StringVarP(&analyzeFlags.outputPath, "output", "o", "", "Output directory for reports")
	analyzeCmd.Flags().StringVar(&analyzeFlags.renderer, "renderer", "", "Rasterizer (ghostscript, mupdf)")
	analyzeCmd.Flags().StringVarP(&analyzeFlags.format, "format", "f", "", "Report format (csv, txt, json)")
	analyzeCmd.Flags().IntVar(&analyzeFlags.dpi, "dpi", 0, "Render resolution in DPI")
	analyzeCmd.Flags().IntVar(&analyzeFlags.workers, "workers", 0, "Number of pages analyzed concurrently")
	analyzeCmd.Flags().BoolVar(&analyzeFlags.failFast, "fail-fast", false, "Abort a document at its first failed page")
	analyzeCmd.Flags().BoolVar(&analyzeFlags.keepImages, "keep-images", false, "Keep rendered page images next to the reports")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, projectRoot, err := loadProjectConfig()
	if err != nil {
		return err
	}

	options := mergeConfigAndFlags(&cfg, analyzeFlags)
	if options.OutputPath == "" {
		return ErrReportDirRequired
	}

	format, err := report.ParseFormat(reportFormat(&cfg, analyzeFlags.format))
	if err != nil {
		return err
	}

	// Fail before rendering anything when the pricing cannot be used.
	err = cfg.Pricing.Validate()
	if err != nil {
		return fmt.Errorf("check the [pricing] section of project.toml: %w", err)
	}

	log, err := setupLogger(projectRoot, cfg.LogsDir.InkCost)
	if err != nil {
		return fmt.Errorf("could not set up logger: %w", err)
	}
	defer closeLogger(log)

	return analyzeAndReport(cmd.Context(), &options, cfg.Pricing, format, log)
}

// analyzeAndReport runs the processor and writes one report per analyzed document.
func analyzeAndReport(
	ctx context.Context,
	options *pdfrender.Options,
	cartridges pricing.CartridgePricing,
	format report.Format,
	log *logger.Logger,
) error {
	processor := pdfrender.NewProcessor(options, log)

	results, procErr := processor.Process(ctx)
	if procErr != nil {
		return fmt.Errorf("PDF analysis failed: %w", procErr)
	}

	mkdirErr := os.MkdirAll(options.OutputPath, reportDirMode)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create report directory: %w", mkdirErr)
	}

	written := 0

	for _, result := range results {
		rep, buildErr := report.FromDocument(result, cartridges, time.Now())
		if buildErr != nil {
			log.Error("No report for %s: %v", filepath.Base(result.Source), buildErr)

			continue
		}

		paths, writeErr := writeReports(options.OutputPath, result.Source, rep, format)
		if writeErr != nil {
			return writeErr
		}

		log.Success("Wrote report %s", strings.Join(paths, ", "))

		written++
	}

	if written == 0 {
		return fmt.Errorf("no document could be analyzed: %w", coverage.ErrEmptyDocument)
	}

	return nil
}

// writeReports writes rep in format and, when that is not JSON, also the JSON record
// that estimate reads back.
func writeReports(outputDir, pdfPath string, rep *report.Report, format report.Format) ([]string, error) {
	formats := []report.Format{format}
	if format != report.FormatJSON {
		formats = append(formats, report.FormatJSON)
	}

	paths := make([]string, 0, len(formats))

	for _, each := range formats {
		path := reportPath(outputDir, pdfPath, each)

		writeErr := writeReportFile(path, rep, each)
		if writeErr != nil {
			return nil, writeErr
		}

		paths = append(paths, path)
	}

	return paths, nil
}

// reportPath names the report for 'mydoc.pdf' '<outputDir>/mydoc-report.<ext>'.
func reportPath(outputDir, pdfPath string, format report.Format) string {
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))

	return filepath.Join(outputDir, base+"-report"+format.Extension())
}

func writeReportFile(path string, rep *report.Report, format report.Format) (err error) {
	file, createErr := os.Create(path)
	if createErr != nil {
		return fmt.Errorf("failed to create report %s: %w", path, createErr)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close report %s: %w", path, closeErr)
		}
	}()

	return rep.Write(file, format)
}
