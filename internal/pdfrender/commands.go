package pdfrender

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
)

const (
	defaultGhostscriptBinary = "gs"
	defaultPDFInfoBinary     = "pdfinfo"
)

var (
	// ErrToolMissing is returned when an external rendering tool is not installed.
	ErrToolMissing = errors.New("required rendering tool not found in PATH")
	// ErrPagesLineMissing is returned when pdfinfo output has no page count.
	ErrPagesLineMissing = errors.New("could not parse 'Pages:' line from pdfinfo output")
)

// CommandExecutor defines an interface for running external commands.
// This abstraction is crucial for enabling unit tests to mock command execution.
type CommandExecutor interface {
	// Run executes a command and returns its standard output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// RunCombined executes a command and returns its combined standard output and
	// standard error.
	RunCombined(ctx context.Context, name string, args ...string) ([]byte, error)
	// LookPath resolves an executable name the way the executor would.
	LookPath(name string) (string, error)
}

// defaultExecutor implements the CommandExecutor interface using the standard os/exec
// package.
type defaultExecutor struct{}

// Run is the production implementation for executing a command.
func (executor *defaultExecutor) Run(
	ctx context.Context,
	name string,
	args ...string,
) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// RunCombined is the production implementation for executing a command and capturing all
// output.
func (executor *defaultExecutor) RunCombined(
	ctx context.Context,
	name string,
	args ...string,
) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LookPath searches PATH for name.
func (executor *defaultExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// GhostscriptRasterizer renders pages with Ghostscript and counts them with pdfinfo.
// The colour pass uses the png16m device and the grayscale pass the pnggray device, so
// the two measurements come from independent renders.
type GhostscriptRasterizer struct {
	executor    CommandExecutor
	ghostscript string
	pdfInfo     string
	keepImages  bool
}

// NewGhostscriptRasterizer returns a rasterizer that runs the default binaries. When
// keepImages is false, rendered PNGs are deleted once decoded.
func NewGhostscriptRasterizer(keepImages bool) *GhostscriptRasterizer {
	return newGhostscriptRasterizer(&defaultExecutor{}, keepImages)
}

func newGhostscriptRasterizer(executor CommandExecutor, keepImages bool) *GhostscriptRasterizer {
	return &GhostscriptRasterizer{
		executor:    executor,
		ghostscript: defaultGhostscriptBinary,
		pdfInfo:     defaultPDFInfoBinary,
		keepImages:  keepImages,
	}
}

// CheckTools verifies that Ghostscript and pdfinfo can be found.
func (rasterizer *GhostscriptRasterizer) CheckTools() error {
	for _, tool := range []string{rasterizer.ghostscript, rasterizer.pdfInfo} {
		_, lookErr := rasterizer.executor.LookPath(tool)
		if lookErr != nil {
			return fmt.Errorf("%w: %s: %w", ErrToolMissing, tool, lookErr)
		}
	}

	return nil
}

// PageCount executes the `pdfinfo` command to determine the number of pages in a PDF.
func (rasterizer *GhostscriptRasterizer) PageCount(
	ctx context.Context,
	pdfPath string,
) (int, error) {
	if pdfPath == "" {
		return 0, errors.New("pdf path cannot be empty")
	}

	// The `pdfinfo` command prints metadata, including the page count, to stdout.
	outputBytes, execErr := rasterizer.executor.Run(ctx, rasterizer.pdfInfo, pdfPath)
	if execErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("pdfinfo interrupted: %w", ctxErr)
		}

		// Include the command's output in the error for better debugging.
		return 0, fmt.Errorf(
			"%w: pdfinfo execution failed: %w. Output: %s",
			coverage.ErrRasterization,
			execErr,
			string(outputBytes),
		)
	}

	return parsePdfInfoOutput(string(outputBytes))
}

// parsePdfInfoOutput scans the text output from the `pdfinfo` command to find and parse
// the page count.
func parsePdfInfoOutput(output string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Pages:") {
			parts := strings.Fields(line) // e.g., ["Pages:", "123"]
			if len(parts) >= 2 {
				pageCount, convErr := strconv.Atoi(parts[1])
				if convErr == nil {
					return pageCount, nil
				}
			}
		}
	}

	return 0, ErrPagesLineMissing
}

// RenderPage executes Ghostscript for one page and decodes the resulting PNG.
func (rasterizer *GhostscriptRasterizer) RenderPage(
	ctx context.Context,
	req RenderRequest,
) (image.Image, error) {
	if req.Page <= 0 {
		return nil, fmt.Errorf("%w: page number must be positive", coverage.ErrRasterization)
	}

	if req.PDFPath == "" || req.WorkDir == "" {
		return nil, fmt.Errorf(
			"%w: pdf path and work directory cannot be empty",
			coverage.ErrRasterization,
		)
	}

	outPath := filepath.Join(
		req.WorkDir,
		fmt.Sprintf("page_%04d_%s.png", req.Page, req.Mode),
	)
	args := buildGhostscriptArgs(req.DPI, req.Page, req.Mode, outPath, req.PDFPath)

	outputBytes, execErr := rasterizer.executor.RunCombined(ctx, rasterizer.ghostscript, args...)
	if execErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ghostscript interrupted on page %d: %w", req.Page, ctxErr)
		}

		return nil, fmt.Errorf(
			"%w: ghostscript failed on page %d: %w. Output: %s",
			coverage.ErrRasterization,
			req.Page,
			execErr,
			string(outputBytes),
		)
	}

	img, decodeErr := decodePNG(outPath)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: page %d: %w", coverage.ErrRasterization, req.Page, decodeErr)
	}

	if !rasterizer.keepImages {
		removeErr := os.Remove(outPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove rendered page %s: %w", outPath, removeErr)
		}
	}

	return img, nil
}

// buildGhostscriptArgs constructs the list of command-line arguments for the Ghostscript
// process.
func buildGhostscriptArgs(dpi, page int, mode RenderMode, outPath, pdfPath string) []string {
	device := "-sDEVICE=png16m" // 24-bit colour PNG.
	if mode == RenderGrayscale {
		device = "-sDEVICE=pnggray" // 8-bit gray PNG.
	}

	return []string{
		"-q", "-dNOPAUSE", "-dBATCH", // Quiet mode, non-interactive batch processing.
		device,
		fmt.Sprintf("-r%d", dpi),            // Set the resolution in DPI.
		fmt.Sprintf("-dFirstPage=%d", page), // Specify the page number to render.
		fmt.Sprintf("-dLastPage=%d", page),  // Process only that single page.
		"-o", outPath,                       // Set the output file path.
		"-dTextAlphaBits=4",     // Enable anti-aliasing for text.
		"-dGraphicsAlphaBits=4", // Enable anti-aliasing for graphics.
		"-dPDFFitPage",          // Fit the PDF page to the output media.
		pdfPath,                 // The input PDF file.
	}
}

// decodePNG opens and decodes a rendered page.
func decodePNG(path string) (image.Image, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, fmt.Errorf("could not open rendered page %s: %w", path, openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	img, decodeErr := png.Decode(file)
	if decodeErr != nil {
		return nil, fmt.Errorf("could not decode rendered page %s: %w", path, decodeErr)
	}

	return img, nil
}
