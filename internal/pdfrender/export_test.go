package pdfrender

// Exported test-only accessors for unexported functions and fields.
// This file is compiled only during tests and does not affect the public API.

// ParsePdfInfoOutputForTest exposes parsePdfInfoOutput for tests in external package.
func ParsePdfInfoOutputForTest(s string) (int, error) { return parsePdfInfoOutput(s) }

// BuildGhostscriptArgsForTest exposes buildGhostscriptArgs.
func BuildGhostscriptArgsForTest(dpi, page int, mode RenderMode, outPath, pdfPath string) []string {
	return buildGhostscriptArgs(dpi, page, mode, outPath, pdfPath)
}

// NewGhostscriptRasterizerForTest builds a rasterizer around a fake executor.
func NewGhostscriptRasterizerForTest(exec CommandExecutor, keepImages bool) *GhostscriptRasterizer {
	return newGhostscriptRasterizer(exec, keepImages)
}

// ConfigForTest returns a copy of the processor configuration for assertions in tests.
func (processor *Processor) ConfigForTest() Options { return processor.config }

// Test-only helpers to access unexported methods for white-box tests from external
// package.
func (processor *Processor) ValidateConfigForTest() error { return processor.validateConfig() }

func (processor *Processor) DiscoverInputPDFsForTest() ([]string, error) {
	return processor.discoverInputPDFs()
}

// SetRasterizerForTest allows tests to inject a fake rasterizer.
func (processor *Processor) SetRasterizerForTest(rasterizer Rasterizer) {
	processor.rasterizer = rasterizer
	processor.renderErr = nil
}
