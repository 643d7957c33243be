package coverage

import "errors"

var (
	// ErrInvalidBuffer is returned when a page buffer has no pixels or its sample
	// slice does not match its dimensions.
	ErrInvalidBuffer = errors.New("invalid pixel buffer")
	// ErrRasterization marks failures of the upstream page renderer. Rasterizers wrap
	// it so callers can tell a render failure apart from an analysis failure.
	ErrRasterization = errors.New("page rasterization failed")
	// ErrEmptyDocument is returned when aggregating or pricing zero pages.
	ErrEmptyDocument = errors.New("document has no analyzed pages")
	// ErrInvalidResolution is returned for a non-positive DPI.
	ErrInvalidResolution = errors.New("resolution must be a positive dpi")
	// ErrInvalidPageNumber is returned for page numbers below 1.
	ErrInvalidPageNumber = errors.New("page number must be 1 or greater")
	// ErrPageOrder is returned when page numbers are not strictly increasing.
	ErrPageOrder = errors.New("pages are not in increasing page-number order")
)
