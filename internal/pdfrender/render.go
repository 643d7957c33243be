// Package pdfrender rasterizes PDF documents and measures the ink coverage of every
// page.
package pdfrender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/book-expert/logger"
	"github.com/cheggaaa/pb/v3"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
)

var (
	// ErrInputPathRequired is returned when input path is not provided.
	ErrInputPathRequired = errors.New("input path is required")
	// ErrOutputPathRequired is returned when images are kept but no output path is set.
	ErrOutputPathRequired = errors.New("output path is required to keep rendered images")
	// ErrPDFZeroOrNegativePages is returned when a PDF has invalid page count.
	ErrPDFZeroOrNegativePages = errors.New(
		"pdf has zero or a negative number of pages",
	)
	// ErrUnknownRenderer is returned for an unsupported Options.Renderer value.
	ErrUnknownRenderer = errors.New("unknown renderer")
)

// Renderer names accepted in Options.Renderer.
const (
	RendererGhostscript = "ghostscript"
	RendererMuPDF       = "mupdf"
)

// Options holds all configurable parameters for a Processor.
type Options struct {
	ProgressBarOutput io.Writer
	// InputPath is a directory of PDFs or a single PDF file.
	InputPath string
	// OutputPath receives rendered page images when KeepImages is set.
	OutputPath string
	// Renderer selects the rasterizer: "ghostscript" (default) or "mupdf".
	Renderer string
	DPI      int
	Workers  int
	// FailFast aborts a document at its first page failure instead of flagging the
	// page and continuing.
	FailFast   bool
	KeepImages bool
}

// Processor renders documents and analyzes their pages.
type Processor struct {
	rasterizer Rasterizer
	log        *logger.Logger
	config     Options
	renderErr  error
}

// NewProcessor creates and initializes a new Processor with the given options and logger.
// It sets sensible defaults for any zero-value fields in the Options struct.
func NewProcessor(opts *Options, log *logger.Logger) *Processor {
	applyDefaultOptions(opts)

	rasterizer, renderErr := newRasterizer(opts)

	return &Processor{
		rasterizer: rasterizer,
		log:        log,
		config:     *opts,
		renderErr:  renderErr,
	}
}

const defaultDPI = 150

// applyDefaultOptions fills zero-value fields in Options with sensible defaults.
func applyDefaultOptions(opts *Options) {
	opts.DPI = defaultIntNonPositive(opts.DPI, defaultDPI)
	opts.Workers = defaultIntNonPositive(opts.Workers, runtime.NumCPU())
	opts.ProgressBarOutput = defaultWriterNil(opts.ProgressBarOutput, os.Stdout)

	if opts.Renderer == "" {
		opts.Renderer = RendererGhostscript
	}
}

func defaultIntNonPositive(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}

func defaultWriterNil(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}

	return w
}

func newRasterizer(opts *Options) (Rasterizer, error) {
	switch opts.Renderer {
	case RendererGhostscript:
		return NewGhostscriptRasterizer(opts.KeepImages), nil
	case RendererMuPDF:
		return NewFitzRasterizer(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRenderer, opts.Renderer)
	}
}

// DPI returns the resolution pages are rendered at.
func (processor *Processor) DPI() int {
	return processor.config.DPI
}

// Process discovers the PDFs under InputPath and analyzes each one. A document that
// fails entirely is logged and skipped; the results of the others are returned in
// discovery order.
func (processor *Processor) Process(ctx context.Context) ([]*DocumentResult, error) {
	// Step 1: Validate the configuration before starting any work.
	err := processor.validateConfig()
	if err != nil {
		return nil, err
	}

	// Step 2: Make sure the rendering tools are available.
	err = processor.CheckTools()
	if err != nil {
		return nil, err
	}

	// Step 3: Discover all PDF files in the input directory.
	pdfPaths, err := processor.discoverInputPDFs()
	if err != nil {
		return nil, err
	}

	// Step 4: Analyze each discovered PDF file.
	processor.log.Info("Found %d PDF(s) to analyze.", len(pdfPaths))

	return processor.processAllPDFs(ctx, pdfPaths), nil
}

// CheckTools reports whether the configured renderer can run: the renderer name must be
// known and any helper binaries it needs must be installed.
func (processor *Processor) CheckTools() error {
	if processor.renderErr != nil {
		return processor.renderErr
	}

	checker, ok := processor.rasterizer.(toolChecker)
	if !ok {
		return nil
	}

	checkErr := checker.CheckTools()
	if checkErr != nil {
		return fmt.Errorf("could not prepare %s renderer: %w", processor.config.Renderer, checkErr)
	}

	return nil
}

// validateConfig checks if the essential configuration options have been provided.
func (processor *Processor) validateConfig() error {
	if processor.config.InputPath == "" {
		return ErrInputPathRequired
	}

	if processor.config.KeepImages && processor.config.OutputPath == "" {
		return ErrOutputPathRequired
	}

	return nil
}

// processAllPDFs iterates through a list of PDF file paths and analyzes each one.
// It uses a progress bar to show the overall progress.
func (processor *Processor) processAllPDFs(
	ctx context.Context,
	pdfPaths []string,
) []*DocumentResult {
	mainProgressBar := pb.New(len(pdfPaths)).
		SetTemplateString(`{{ bar . " " "━" "━" " " " "}} {{percent .}} {{rtime .}}`).
		SetWriter(processor.config.ProgressBarOutput).
		Start()
	defer mainProgressBar.Finish()

	results := make([]*DocumentResult, 0, len(pdfPaths))

	for _, pdfPath := range pdfPaths {
		mainProgressBar.Increment()
		processor.log.Info("Starting analysis for: %s", filepath.Base(pdfPath))

		result, processErr := processor.AnalyzeDocument(ctx, pdfPath)
		if processErr != nil {
			processor.log.Error(
				"Failed to analyze %s: %v",
				filepath.Base(pdfPath),
				processErr,
			)
			// Continue to the next file even if one fails.
			continue
		}

		if len(result.Failures) > 0 {
			processor.log.Warn(
				"Analyzed %s with %d failed page(s): %v",
				filepath.Base(pdfPath),
				len(result.Failures),
				result.FailedPages(),
			)
		} else {
			processor.log.Success("Successfully analyzed %s", filepath.Base(pdfPath))
		}

		results = append(results, result)
	}

	return results
}

// AnalyzeDocument renders and analyzes every page of one PDF. Pages are analyzed
// concurrently and returned in page order. Pages that fail are listed in
// DocumentResult.Failures unless FailFast is set, in which case the first failure is
// returned as the error.
func (processor *Processor) AnalyzeDocument(
	ctx context.Context,
	pdfPath string,
) (*DocumentResult, error) {
	if processor.renderErr != nil {
		return nil, processor.renderErr
	}

	// Determine the total number of pages in the PDF.
	pageCount, pageCountErr := processor.rasterizer.PageCount(ctx, pdfPath)
	if pageCountErr != nil {
		return nil, fmt.Errorf("could not get page count: %w", pageCountErr)
	}

	if pageCount <= 0 {
		return nil, ErrPDFZeroOrNegativePages
	}

	workDir, cleanup, workDirErr := processor.workDirFor(pdfPath)
	if workDirErr != nil {
		return nil, fmt.Errorf("could not set up work directory: %w", workDirErr)
	}
	defer cleanup()

	processor.log.Info("Analyzing %d pages of %s at %d dpi", pageCount, filepath.Base(pdfPath), processor.config.DPI)

	pageProc := newPageProcessor(processor, workDir)

	return pageProc.processPages(ctx, pdfPath, pageCount)
}

// DocumentResult is the analysis of one PDF.
type DocumentResult struct {
	// Source is the analyzed PDF path.
	Source string
	// Pages holds the pages that were analyzed, in page order.
	Pages []coverage.PageCoverage
	// Failures lists pages that could not be analyzed, in page order.
	Failures  []PageFailure
	PageCount int
}

// PageFailure records why one page has no coverage.
type PageFailure struct {
	Err        error
	PageNumber int
}

// FailedPages returns the page numbers listed in Failures.
func (result *DocumentResult) FailedPages() []int {
	pages := make([]int, 0, len(result.Failures))
	for _, failure := range result.Failures {
		pages = append(pages, failure.PageNumber)
	}

	return pages
}

// Err joins the page failures into one error, or returns nil when every page was
// analyzed.
func (result *DocumentResult) Err() error {
	errs := make([]error, 0, len(result.Failures))
	for _, failure := range result.Failures {
		errs = append(errs, fmt.Errorf("page %d: %w", failure.PageNumber, failure.Err))
	}

	return errors.Join(errs...)
}
