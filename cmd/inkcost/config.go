package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/book-expert/ink-coverage-service/internal/pdfrender"
	"github.com/book-expert/ink-coverage-service/internal/pricing"
)

// Define named types for each section of the configuration.
type configPaths struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
}

type configLogsDir struct {
	InkCost string `toml:"inkcost"`
}

type configSettings struct {
	Renderer   string `toml:"renderer"`
	Format     string `toml:"format"`
	DPI        int    `toml:"dpi"`
	Workers    int    `toml:"workers"`
	FailFast   bool   `toml:"fail_fast"`
	KeepImages bool   `toml:"keep_images"`
}

// configNATS locates the shared pricing bucket.
type configNATS struct {
	URL           string `toml:"url"`
	PricingBucket string `toml:"pricing_bucket"`
}

// config represents the structure of the project.toml file.
type config struct {
	Pricing  pricing.CartridgePricing `toml:"pricing"`
	NATS     configNATS               `toml:"nats"`
	Paths    configPaths              `toml:"paths"`
	LogsDir  configLogsDir            `toml:"logs_dir"`
	Settings configSettings           `toml:"settings"`
}

// loadProjectConfig finds the project root and reads its project.toml, if any.
func loadProjectConfig() (config, string, error) {
	projectRoot, configPath, err := configurator.FindProjectRoot(".")
	if err != nil {
		return config{}, "", fmt.Errorf("could not find project root: %w", err)
	}

	cfg, err := safeLoadConfig(configPath)
	if err != nil {
		return config{}, "", err
	}

	return cfg, projectRoot, nil
}

// safeLoadConfig loads the TOML config, allowing missing file without error.
func safeLoadConfig(path string) (config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			var emptyCfg config

			return emptyCfg, nil
		}

		return config{}, fmt.Errorf("error loading config file: %w", err)
	}

	return cfg, nil
}

// loadConfig reads and parses the project.toml file.
func loadConfig(path string) (config, error) {
	var cfg config

	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		var zero config

		return zero, fmt.Errorf("failed to decode config file: %w", err)
	}

	return cfg, nil
}

// flags represents the command-line arguments of the analyze command.
type flags struct {
	inputPath  string
	outputPath string
	renderer   string
	format     string
	dpi        int
	workers    int
	failFast   bool
	keepImages bool
}

// mergeConfigAndFlags combines settings from the config file and command-line flags.
// Flags take precedence over the config file settings.
func mergeConfigAndFlags(cfg *config, flgs flags) pdfrender.Options {
	opts := pdfrender.Options{
		ProgressBarOutput: nil,
		InputPath:         cfg.Paths.InputDir,
		OutputPath:        cfg.Paths.OutputDir,
		Renderer:          cfg.Settings.Renderer,
		DPI:               cfg.Settings.DPI,
		Workers:           cfg.Settings.Workers,
		FailFast:          cfg.Settings.FailFast,
		KeepImages:        cfg.Settings.KeepImages,
	}

	// Command-line flags override config file values.
	if flgs.inputPath != "" {
		opts.InputPath = flgs.inputPath
	}

	if flgs.outputPath != "" {
		opts.OutputPath = flgs.outputPath
	}

	if flgs.renderer != "" {
		opts.Renderer = flgs.renderer
	}

	if flgs.dpi > 0 {
		opts.DPI = flgs.dpi
	}

	if flgs.workers > 0 {
		opts.Workers = flgs.workers
	}

	opts.FailFast = opts.FailFast || flgs.failFast
	opts.KeepImages = opts.KeepImages || flgs.keepImages

	return opts
}

// reportFormat picks the export format: the flag, then the config file, then text.
func reportFormat(cfg *config, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if cfg.Settings.Format != "" {
		return cfg.Settings.Format
	}

	return "txt"
}

// setupLogger initializes the logger, creating the log directory if needed.
func setupLogger(projectRoot, logDirConfig string) (*logger.Logger, error) {
	logDir := logDirConfig
	if logDir == "" {
		logDir = filepath.Join(projectRoot, "logs", "inkcost")
	}

	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("20060102_150405"))

	log, err := logger.New(logDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// closeLogger closes log and reports a failure on stderr.
func closeLogger(log *logger.Logger) {
	cerr := log.Close()
	if cerr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", cerr)
	}
}
