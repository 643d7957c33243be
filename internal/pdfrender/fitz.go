package pdfrender

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/draw"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
)

// FitzRasterizer renders pages in-process with MuPDF. MuPDF only produces colour
// output, so the grayscale pass draws the colour render onto an 8-bit gray surface.
type FitzRasterizer struct{}

// NewFitzRasterizer returns a MuPDF-backed rasterizer.
func NewFitzRasterizer() *FitzRasterizer {
	return &FitzRasterizer{}
}

// PageCount opens the document and reports its page count.
func (rasterizer *FitzRasterizer) PageCount(ctx context.Context, pdfPath string) (int, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, fmt.Errorf("page count canceled: %w", ctxErr)
	}

	doc, openErr := fitz.New(pdfPath)
	if openErr != nil {
		return 0, fmt.Errorf("%w: mupdf could not open %s: %w", coverage.ErrRasterization, pdfPath, openErr)
	}
	defer doc.Close()

	return doc.NumPage(), nil
}

// RenderPage renders one page at the requested resolution.
func (rasterizer *FitzRasterizer) RenderPage(
	ctx context.Context,
	req RenderRequest,
) (image.Image, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("render canceled: %w", ctxErr)
	}

	doc, openErr := fitz.New(req.PDFPath)
	if openErr != nil {
		return nil, fmt.Errorf(
			"%w: mupdf could not open %s: %w",
			coverage.ErrRasterization,
			req.PDFPath,
			openErr,
		)
	}
	defer doc.Close()

	// fitz numbers pages from zero.
	rendered, renderErr := doc.ImageDPI(req.Page-1, float64(req.DPI))
	if renderErr != nil {
		return nil, fmt.Errorf(
			"%w: mupdf failed on page %d: %w",
			coverage.ErrRasterization,
			req.Page,
			renderErr,
		)
	}

	if req.Mode != RenderGrayscale {
		return rendered, nil
	}

	gray := image.NewGray(rendered.Bounds())
	draw.Draw(gray, gray.Bounds(), rendered, rendered.Bounds().Min, draw.Src)

	return gray, nil
}
