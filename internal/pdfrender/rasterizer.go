package pdfrender

import (
	"context"
	"image"
)

// RenderMode selects the colour model of a render pass.
type RenderMode int

const (
	// RenderColor renders the page in full colour.
	RenderColor RenderMode = iota
	// RenderGrayscale renders the page as a printer would in monochrome.
	RenderGrayscale
)

// String returns the short name used in file names and logs.
func (mode RenderMode) String() string {
	if mode == RenderGrayscale {
		return "gray"
	}

	return "color"
}

// RenderRequest describes one render pass of one page.
type RenderRequest struct {
	// PDFPath is the document to render.
	PDFPath string
	// WorkDir is where a rasterizer may write intermediate files.
	WorkDir string
	// Page is 1-based.
	Page int
	DPI  int
	Mode RenderMode
}

// Rasterizer turns document pages into images. Implementations must be safe for
// concurrent use and must wrap render failures with coverage.ErrRasterization.
type Rasterizer interface {
	// PageCount returns the number of pages in the document.
	PageCount(ctx context.Context, pdfPath string) (int, error)
	// RenderPage renders a single page.
	RenderPage(ctx context.Context, req RenderRequest) (image.Image, error)
}

// toolChecker is implemented by rasterizers that depend on external binaries.
type toolChecker interface {
	CheckTools() error
}
