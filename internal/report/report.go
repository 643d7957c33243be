// Package report assembles the analysis of one document into a report record and
// exports it as CSV, plain text or JSON.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
	"github.com/book-expert/ink-coverage-service/internal/pdfrender"
	"github.com/book-expert/ink-coverage-service/internal/pricing"
)

// ErrUnknownFormat is returned for an export format other than csv, txt or json.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names an export format.
type Format string

// Supported export formats.
const (
	FormatCSV  Format = "csv"
	FormatText Format = "txt"
	FormatJSON Format = "json"
)

const dateLayout = "2006-01-02 15:04:05"

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(value string) (Format, error) {
	switch format := Format(strings.ToLower(strings.TrimSpace(value))); format {
	case FormatCSV, FormatText, FormatJSON:
		return format, nil
	case "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
}

// Extension returns the file extension for the format, including the dot.
func (format Format) Extension() string {
	return "." + string(format)
}

// Report is the saved result of analyzing and pricing one document.
type Report struct {
	Date        time.Time                 `json:"date"`
	ID          string                    `json:"id"`
	FileName    string                    `json:"fileName"`
	Pricing     pricing.CartridgePricing  `json:"pricing"`
	Coverage    []coverage.PageCoverage   `json:"coverage"`
	FailedPages []int                     `json:"failedPages,omitempty"`
	Summary     coverage.DocumentCoverage `json:"summary"`
	Costs       pricing.DocumentCost      `json:"costs"`
}

// New builds a report with a fresh ID.
func New(
	fileName string,
	pages []coverage.PageCoverage,
	summary coverage.DocumentCoverage,
	costs pricing.DocumentCost,
	cartridges pricing.CartridgePricing,
	now time.Time,
) *Report {
	return &Report{
		Date:        now,
		ID:          uuid.New().String(),
		FileName:    fileName,
		Pricing:     cartridges,
		Coverage:    pages,
		FailedPages: nil,
		Summary:     summary,
		Costs:       costs,
	}
}

// FromDocument summarizes and prices an analyzed document. Failed pages are listed
// but contribute nothing to the totals.
func FromDocument(
	result *pdfrender.DocumentResult,
	cartridges pricing.CartridgePricing,
	now time.Time,
) (*Report, error) {
	summary, summaryErr := coverage.Summarize(result.Pages)
	if summaryErr != nil {
		return nil, fmt.Errorf("failed to summarize coverage: %w", summaryErr)
	}

	costs, costErr := pricing.ComputeDocument(result.Pages, cartridges)
	if costErr != nil {
		return nil, fmt.Errorf("failed to compute cost: %w", costErr)
	}

	rep := New(filepath.Base(result.Source), result.Pages, summary, costs, cartridges, now)
	rep.FailedPages = result.FailedPages()

	return rep, nil
}

// Read decodes a report previously written with WriteJSON.
func Read(r io.Reader) (*Report, error) {
	var rep Report

	decodeErr := json.NewDecoder(r).Decode(&rep)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode report: %w", decodeErr)
	}

	return &rep, nil
}

// Write exports the report in the given format.
func (rep *Report) Write(w io.Writer, format Format) error {
	switch format {
	case FormatCSV:
		return rep.WriteCSV(w)
	case FormatText:
		return rep.WriteText(w)
	case FormatJSON:
		return rep.WriteJSON(w)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteJSON writes the report record as indented JSON.
func (rep *Report) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(rep)
	if encodeErr != nil {
		return fmt.Errorf("failed to encode report: %w", encodeErr)
	}

	return nil
}

// WriteCSV writes a header block followed by a coverage section and a cost section.
// Percentages carry two decimals for totals and one for channels, currency four.
func (rep *Report) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	rows := [][]string{
		{"Analysis Report"},
		{"File: " + rep.FileName},
		{"Date: " + rep.Date.Format(dateLayout)},
		{""},
		{"Coverage Analysis"},
		{"Page", "Color Coverage", "Cyan", "Magenta", "Yellow", "Black", "Grayscale Coverage"},
	}

	for _, page := range rep.Coverage {
		rows = append(rows, []string{
			strconv.Itoa(page.PageNumber),
			percent(page.ColorCoverage.Total, 2),
			percent(page.ColorCoverage.Cyan, 1),
			percent(page.ColorCoverage.Magenta, 1),
			percent(page.ColorCoverage.Yellow, 1),
			percent(page.ColorCoverage.Black, 1),
			percent(page.GrayscaleCoverage.Black, 2),
		})
	}

	rows = append(rows,
		[]string{""},
		[]string{"Cost Analysis"},
		[]string{"Page", "Color Cost", "Grayscale Cost", "Potential Savings"},
	)

	for _, cost := range rep.Costs.Pages {
		rows = append(rows, []string{
			strconv.Itoa(cost.PageNumber),
			money(cost.ColorCost),
			money(cost.GrayscaleCost),
			money(cost.Savings()),
		})
	}

	if len(rep.FailedPages) > 0 {
		rows = append(rows, []string{""}, []string{"Failed Pages", joinInts(rep.FailedPages)})
	}

	writeErr := writer.WriteAll(rows)
	if writeErr != nil {
		return fmt.Errorf("failed to write csv report: %w", writeErr)
	}

	return nil
}

// WriteText writes a human-readable summary with aligned per-page tables.
func (rep *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	var b strings.Builder

	fmt.Fprintf(&b, "Analysis Report\nFile: %s\nDate: %s\n\n", rep.FileName, rep.Date.Format(dateLayout))

	b.WriteString("Document Summary\n----------------\n")
	fmt.Fprintf(&b, "Average Color Coverage:\t%s\n", percent(rep.Summary.ColorCoverage.Total, 2))
	fmt.Fprintf(&b, "Average Grayscale Coverage:\t%s\n", percent(rep.Summary.GrayscaleCoverage.Black, 2))
	fmt.Fprintf(&b, "Total Color Cost:\t%s\n", money(rep.Costs.ColorCost))
	fmt.Fprintf(&b, "Total Grayscale Cost:\t%s\n", money(rep.Costs.GrayscaleCost))
	fmt.Fprintf(&b, "Potential Savings:\t%s\n", money(rep.Costs.PotentialSavings))

	if len(rep.FailedPages) > 0 {
		fmt.Fprintf(&b, "Failed Pages:\t%s\n", joinInts(rep.FailedPages))
	}

	b.WriteString("\nCoverage Analysis\n-----------------\n")
	b.WriteString("Page\tColor\tC\tM\tY\tK\tGrayscale\n")

	for _, page := range rep.Coverage {
		fmt.Fprintf(&b, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			page.PageNumber,
			percent(page.ColorCoverage.Total, 2),
			percent(page.ColorCoverage.Cyan, 1),
			percent(page.ColorCoverage.Magenta, 1),
			percent(page.ColorCoverage.Yellow, 1),
			percent(page.ColorCoverage.Black, 1),
			percent(page.GrayscaleCoverage.Black, 2),
		)
	}

	b.WriteString("\nCost Analysis\n-------------\n")
	b.WriteString("Page\tColor Cost\tGrayscale Cost\tSavings\n")

	for _, cost := range rep.Costs.Pages {
		fmt.Fprintf(&b, "%d\t%s\t%s\t%s\n",
			cost.PageNumber, money(cost.ColorCost), money(cost.GrayscaleCost), money(cost.Savings()))
	}

	_, writeErr := io.WriteString(tw, b.String())
	if writeErr != nil {
		return fmt.Errorf("failed to write text report: %w", writeErr)
	}

	flushErr := tw.Flush()
	if flushErr != nil {
		return fmt.Errorf("failed to write text report: %w", flushErr)
	}

	return nil
}

func percent(value float64, decimals int) string {
	return strconv.FormatFloat(value, 'f', decimals, 64) + "%"
}

func money(value float64) string {
	if value == 0 {
		value = 0 // drop the sign of negative zero
	}

	if value < 0 {
		return "-$" + strconv.FormatFloat(-value, 'f', 4, 64)
	}

	return "$" + strconv.FormatFloat(value, 'f', 4, 64)
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}

	return strings.Join(parts, " ")
}
