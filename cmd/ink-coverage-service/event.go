package main

import (
	"github.com/book-expert/events"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
	"github.com/book-expert/ink-coverage-service/internal/report"
)

// CoverageAnalyzedEvent announces that a document has been analyzed and its reports
// stored.
type CoverageAnalyzedEvent struct {
	Header           events.EventHeader        `json:"header"`
	PDFKey           string                    `json:"pdf_key"`
	ReportID         string                    `json:"report_id"`
	JSONReportKey    string                    `json:"json_report_key"`
	CSVReportKey     string                    `json:"csv_report_key"`
	FailedPages      []int                     `json:"failed_pages,omitempty"`
	Summary          coverage.DocumentCoverage `json:"summary"`
	PageCount        int                       `json:"page_count"`
	ColorCost        float64                   `json:"color_cost"`
	GrayscaleCost    float64                   `json:"grayscale_cost"`
	PotentialSavings float64                   `json:"potential_savings"`
}

func newCoverageAnalyzedEvent(
	in *events.EventHeader,
	pdfKey string,
	rep *report.Report,
	keys reportKeys,
) CoverageAnalyzedEvent {
	return CoverageAnalyzedEvent{
		Header:           newEventHeader(in),
		PDFKey:           pdfKey,
		ReportID:         rep.ID,
		JSONReportKey:    keys.JSON,
		CSVReportKey:     keys.CSV,
		FailedPages:      rep.FailedPages,
		Summary:          rep.Summary,
		PageCount:        len(rep.Coverage) + len(rep.FailedPages),
		ColorCost:        rep.Costs.ColorCost,
		GrayscaleCost:    rep.Costs.GrayscaleCost,
		PotentialSavings: rep.Costs.PotentialSavings,
	}
}
