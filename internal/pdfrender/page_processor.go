package pdfrender

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
)

// pageOutcome is the result slot of one page; exactly one field is set once the page
// has been handled.
type pageOutcome struct {
	err      error
	coverage *coverage.PageCoverage
}

// pageProcessor manages the concurrent analysis of the pages of a single PDF file.
type pageProcessor struct {
	parent  *Processor // A reference back to the main processor for config and logging.
	workDir string
}

// newPageProcessor creates a new processor for handling the pages of one PDF.
func newPageProcessor(parent *Processor, workDir string) *pageProcessor {
	return &pageProcessor{
		parent:  parent,
		workDir: workDir,
	}
}

// processPages analyzes pages 1..pageCount with at most Workers pages in flight and
// reassembles the outcomes in page order.
func (pp *pageProcessor) processPages(
	ctx context.Context,
	pdfPath string,
	pageCount int,
) (*DocumentResult, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(pp.parent.config.Workers)

	// Create a progress bar specifically for the pages of this PDF.
	pageProgressBar := pb.New(pageCount).
		SetTemplateString(`  {{ bar . " " "▸" "▹" " " " "}} {{percent .}} {{etime .}}`).
		SetWriter(pp.parent.config.ProgressBarOutput).
		Start()
	defer pageProgressBar.Finish()

	// Each goroutine writes only its own slot.
	outcomes := make([]pageOutcome, pageCount)

	for pageNumber := 1; pageNumber <= pageCount; pageNumber++ {
		group.Go(func() error {
			defer pageProgressBar.Increment()

			// Check if the context has been canceled (e.g., by Ctrl+C or a fail-fast abort).
			if groupCtx.Err() != nil {
				outcomes[pageNumber-1].err = groupCtx.Err()

				return nil
			}

			page, pageErr := pp.analyzeSinglePage(groupCtx, pdfPath, pageNumber)
			if pageErr != nil {
				outcomes[pageNumber-1].err = pageErr

				if pp.parent.config.FailFast {
					return fmt.Errorf("page %d: %w", pageNumber, pageErr)
				}

				pp.parent.log.Warn(
					"Failed to analyze page %d of %s: %v",
					pageNumber,
					filepath.Base(pdfPath),
					pageErr,
				)

				return nil
			}

			outcomes[pageNumber-1].coverage = &page

			return nil
		})
	}

	waitErr := group.Wait()

	// A canceled parent outranks any page error it caused.
	if ctx.Err() != nil {
		return nil, fmt.Errorf("analysis of %s canceled: %w", filepath.Base(pdfPath), ctx.Err())
	}

	if waitErr != nil {
		return nil, waitErr
	}

	return assembleResult(pdfPath, outcomes), nil
}

// assembleResult folds the per-page outcomes into a DocumentResult, keeping page order.
func assembleResult(pdfPath string, outcomes []pageOutcome) *DocumentResult {
	result := &DocumentResult{
		Source:    pdfPath,
		Pages:     make([]coverage.PageCoverage, 0, len(outcomes)),
		Failures:  nil,
		PageCount: len(outcomes),
	}

	for index, outcome := range outcomes {
		if outcome.coverage != nil {
			result.Pages = append(result.Pages, *outcome.coverage)

			continue
		}

		result.Failures = append(result.Failures, PageFailure{
			Err:        outcome.err,
			PageNumber: index + 1,
		})
	}

	return result
}

// analyzeSinglePage renders the colour and grayscale passes of one page and measures
// them.
func (pp *pageProcessor) analyzeSinglePage(
	ctx context.Context,
	pdfPath string,
	pageNumber int,
) (coverage.PageCoverage, error) {
	dpi := pp.parent.config.DPI

	// Step 1: Render the page in colour.
	colorImage, colorErr := pp.parent.rasterizer.RenderPage(ctx, RenderRequest{
		PDFPath: pdfPath,
		WorkDir: pp.workDir,
		Page:    pageNumber,
		DPI:     dpi,
		Mode:    RenderColor,
	})
	if colorErr != nil {
		return coverage.PageCoverage{}, fmt.Errorf("color pass failed: %w", colorErr)
	}

	// Step 2: Render the page again as a monochrome printer would.
	grayImage, grayErr := pp.parent.rasterizer.RenderPage(ctx, RenderRequest{
		PDFPath: pdfPath,
		WorkDir: pp.workDir,
		Page:    pageNumber,
		DPI:     dpi,
		Mode:    RenderGrayscale,
	})
	if grayErr != nil {
		return coverage.PageCoverage{}, fmt.Errorf("grayscale pass failed: %w", grayErr)
	}

	// Step 3: Measure both passes.
	page, analyzeErr := coverage.AnalyzePage(
		coverage.FromImage(colorImage),
		coverage.FromImage(grayImage),
		dpi,
		pageNumber,
	)
	if analyzeErr != nil {
		return coverage.PageCoverage{}, fmt.Errorf("analysis failed: %w", analyzeErr)
	}

	return page, nil
}
