// Command page-coverage measures the ink coverage of a single rendered page image and
// prints the result as JSON.
//
// Usage: page-coverage <filepath> <dpi>
// - filepath: a PNG, JPEG, TIFF or WebP image of one page
// - dpi: the resolution the page was rendered at, used for the physical dimensions
//
// Exit codes:
//
//	0 = coverage printed
//	2 = error (bad args, cannot open/parse image, etc.)
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register the JPEG decoder.
	_ "image/png"  // Register the PNG decoder.
	"io"
	"os"
	"strconv"

	_ "golang.org/x/image/tiff" // Register the TIFF decoder.
	_ "golang.org/x/image/webp" // Register the WebP decoder.

	"github.com/book-expert/ink-coverage-service/internal/coverage"
)

var (
	ErrInvalidArguments = errors.New("invalid number of arguments")
	ErrInvalidDPI       = errors.New("dpi must be a positive integer")
)

// arguments holds the parsed and validated command-line arguments.
type arguments struct {
	filePath string
	dpi      int
}

const (
	exitCodeError = 2 // An error occurred (e.g., bad arguments, file not found).

	// Command line argument constants.
	expectedArgCount = 3
)

func main() {
	// Step 1: Parse and validate the command-line arguments.
	args, err := parseAndValidateArguments(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Argument error: %v\n", err)
		os.Exit(exitCodeError)
	}

	// Step 2: Analyze the image file.
	page, err := analyzeImage(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Image analysis error: %v\n", err)
		os.Exit(exitCodeError)
	}

	// Step 3: Print the result.
	err = printCoverage(os.Stdout, page)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Output error: %v\n", err)
		os.Exit(exitCodeError)
	}
}

// parseAndValidateArguments processes the raw command-line arguments.
func parseAndValidateArguments(args []string) (arguments, error) {
	if len(args) != expectedArgCount {
		return arguments{}, fmt.Errorf(
			"expected 2 arguments, but got %d. Usage: <program> <filepath> <dpi>: %w",
			len(args)-1,
			ErrInvalidArguments,
		)
	}

	dpi, err := strconv.Atoi(args[2])
	if err != nil {
		return arguments{}, fmt.Errorf("invalid dpi '%s': %w", args[2], errors.Join(ErrInvalidDPI, err))
	}

	if dpi <= 0 {
		return arguments{}, fmt.Errorf("got %d: %w", dpi, ErrInvalidDPI)
	}

	return arguments{filePath: args[1], dpi: dpi}, nil
}

// analyzeImage measures the image as page 1. The monochrome estimate comes from a
// separate gray rendering of the same image.
func analyzeImage(args arguments) (coverage.PageCoverage, error) {
	img, err := loadImage(args.filePath)
	if err != nil {
		return coverage.PageCoverage{}, err
	}

	page, err := coverage.AnalyzePage(
		coverage.FromImage(img),
		coverage.MonochromeFromImage(img),
		args.dpi,
		1,
	)
	if err != nil {
		return coverage.PageCoverage{}, fmt.Errorf("could not analyze %s: %w", args.filePath, err)
	}

	return page, nil
}

// loadImage opens and decodes an image file.
func loadImage(filePath string) (image.Image, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", filePath, err)
	}

	defer func() {
		cerr := file.Close()
		if cerr != nil {
			_, _ = fmt.Fprintf(
				os.Stderr,
				"failed to close file %s: %v\n",
				filePath,
				cerr,
			)
		}
	}()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf(
			"could not decode image file %s: %w",
			filePath,
			err,
		)
	}

	return img, nil
}

func printCoverage(w io.Writer, page coverage.PageCoverage) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(page)
}
