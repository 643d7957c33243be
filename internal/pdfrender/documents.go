package pdfrender

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	pageImageDirMode = 0o750
	pdfExtension     = ".pdf"
	pageImageFolder  = "pages"
)

// ErrNotPDF is returned when the input is a single file without a .pdf extension.
var ErrNotPDF = errors.New("input file is not a PDF")

// DiscoverPDFs lists the PDF files directly inside dirPath, sorted by name. Matching
// is case-insensitive; hidden files and subdirectories are skipped.
func DiscoverPDFs(dirPath string) ([]string, error) {
	entries, readErr := os.ReadDir(dirPath)
	if readErr != nil {
		return nil, fmt.Errorf("could not read directory %s: %w", dirPath, readErr)
	}

	documents := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !isPDFPath(name) {
			continue
		}

		documents = append(documents, filepath.Join(dirPath, name))
	}

	slices.Sort(documents)

	return documents, nil
}

func isPDFPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), pdfExtension)
}

// documentName is the PDF's file name without its extension.
func documentName(pdfPath string) string {
	base := filepath.Base(pdfPath)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// discoverInputPDFs resolves InputPath, which names one PDF or a directory of them.
func (processor *Processor) discoverInputPDFs() ([]string, error) {
	input := processor.config.InputPath

	info, statErr := os.Stat(input)
	if statErr != nil {
		return nil, fmt.Errorf("could not read input %s: %w", input, statErr)
	}

	if !info.IsDir() {
		if !isPDFPath(input) {
			return nil, fmt.Errorf("%w: %s", ErrNotPDF, input)
		}

		return []string{input}, nil
	}

	documents, discoveryErr := DiscoverPDFs(input)
	if discoveryErr != nil {
		return nil, fmt.Errorf("failed to discover PDFs: %w", discoveryErr)
	}

	if len(documents) == 0 {
		return nil, fmt.Errorf("no PDF files found in %s: %w", input, os.ErrNotExist)
	}

	return documents, nil
}

// workDirFor returns where the pages of pdfPath are rendered. Kept images go to
// '<OutputPath>/<document>/pages'; anything else goes to a temporary directory that
// the returned cleanup removes.
func (processor *Processor) workDirFor(pdfPath string) (string, func(), error) {
	if processor.config.KeepImages {
		imageDir := filepath.Join(processor.config.OutputPath, documentName(pdfPath), pageImageFolder)

		mkdirErr := os.MkdirAll(imageDir, pageImageDirMode)
		if mkdirErr != nil {
			return "", nil, fmt.Errorf("failed to create page image directory %s: %w", imageDir, mkdirErr)
		}

		return imageDir, func() {}, nil
	}

	tempDir, tempErr := os.MkdirTemp("", "ink-coverage-"+documentName(pdfPath)+"-")
	if tempErr != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", tempErr)
	}

	return tempDir, func() {
		removeErr := os.RemoveAll(tempDir)
		if removeErr != nil {
			processor.log.Warn("Failed to remove temp directory '%s': %v", tempDir, removeErr)
		}
	}, nil
}
