package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/book-expert/ink-coverage-service/internal/pricing"
	"github.com/book-expert/ink-coverage-service/internal/report"
)

var estimateFlags struct {
	coveragePath string
	outputPath   string
	format       string
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Re-price a saved JSON report with the current cartridge pricing",
	Args:  cobra.NoArgs,
	RunE:  runEstimate,
}

func init() {
	estimateCmd.Flags().StringVarP(&estimateFlags.coveragePath, "coverage", "c", "", "JSON report written by analyze")
	estimateCmd.Flags().StringVarP(&estimateFlags.outputPath, "output", "o", "", "Write the report here instead of stdout")
	estimateCmd.Flags().StringVarP(&estimateFlags.format, "format", "f", "", "Report format (csv, txt, json)")
	_ = estimateCmd.MarkFlagRequired("coverage")
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadProjectConfig()
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(reportFormat(&cfg, estimateFlags.format))
	if err != nil {
		return err
	}

	saved, err := readReportFile(estimateFlags.coveragePath)
	if err != nil {
		return err
	}

	repriced, err := reprice(saved, cfg.Pricing)
	if err != nil {
		return err
	}

	if estimateFlags.outputPath != "" {
		return writeReportFile(estimateFlags.outputPath, repriced, format)
	}

	return repriced.Write(cmd.OutOrStdout(), format)
}

// reprice returns a copy of saved with costs recomputed under cartridges. Coverage
// and summary are kept as measured.
func reprice(saved *report.Report, cartridges pricing.CartridgePricing) (*report.Report, error) {
	costs, costErr := pricing.ComputeDocument(saved.Coverage, cartridges)
	if costErr != nil {
		return nil, fmt.Errorf("could not compute cost: %w", costErr)
	}

	repriced := *saved
	repriced.Costs = costs
	repriced.Pricing = cartridges

	return &repriced, nil
}

func readReportFile(path string) (*report.Report, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, fmt.Errorf("could not open coverage report: %w", openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	return report.Read(file)
}
