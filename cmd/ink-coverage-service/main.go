// This file orchestrates the ink coverage service, initializing and running the NATS
// worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/ink-coverage-service/internal/pdfrender"
	"github.com/book-expert/ink-coverage-service/internal/pricing"
	"github.com/book-expert/ink-coverage-service/internal/pricingstore"
)

// configURLEnv names the environment variable holding the configuration URL.
const configURLEnv = "INK_COVERAGE_CONFIG_URL"

// ErrConfigURLMissing is returned when the configuration URL is not set.
var ErrConfigURLMissing = errors.New(configURLEnv + " is not set")

// Config represents the overall configuration structure for the ink coverage service.
type Config struct {
	// Pricing is used for tenants that have not saved their own.
	Pricing  pricing.CartridgePricing `toml:"pricing"`
	NATS     NATSConfig               `toml:"nats"`
	Paths    PathsConfig              `toml:"paths"`
	Settings SettingsConfig           `toml:"settings"`
}

// PathsConfig holds common path configurations.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// NATSConfig holds NATS-specific configuration for the ink coverage service.
type NATSConfig struct {
	URL                     string `toml:"url"`
	PDFStreamName           string `toml:"pdf_stream_name"`
	PDFConsumerName         string `toml:"pdf_consumer_name"`
	PDFCreatedSubject       string `toml:"pdf_created_subject"`
	PDFObjectStoreBucket    string `toml:"pdf_object_store_bucket"`
	CoverageStreamName      string `toml:"coverage_stream_name"`
	CoverageAnalyzedSubject string `toml:"coverage_analyzed_subject"`
	ReportObjectStoreBucket string `toml:"report_object_store_bucket"`
	PricingBucket           string `toml:"pricing_bucket"`
}

// SettingsConfig controls how documents are rendered.
type SettingsConfig struct {
	Renderer string `toml:"renderer"`
	DPI      int    `toml:"dpi"`
	Workers  int    `toml:"workers"`
	FailFast bool   `toml:"fail_fast"`
}

const (
	natsFetchTimeout   = 5 * time.Second
	ackWait            = 30 * time.Second
	defaultWorkerCount = 4
	defaultDPI         = 150
)

// main is the entry point of the application.
func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)

	runErr := run(ctx)

	stop()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Printf("Fatal application error: %v", runErr)
		os.Exit(1)
	}

	log.Println("Application shut down gracefully.")
}

// run initializes all components and starts the message processing loop.
func run(ctx context.Context) error {
	cfg, appLogger, setupErr := setupConfigAndLogger(os.Getenv(configURLEnv))
	if setupErr != nil {
		return setupErr
	}
	defer func() {
		if closeErr := appLogger.Close(); closeErr != nil {
			log.Printf("Warning: failed to close app logger: %v", closeErr)
		}
	}()

	processor := pdfrender.NewProcessor(processorOptions(cfg), appLogger)

	toolsErr := processor.CheckTools()
	if toolsErr != nil {
		return fmt.Errorf("renderer is not usable: %w", toolsErr)
	}

	natsConnection, connErr := nats.Connect(cfg.NATS.URL)
	if connErr != nil {
		return fmt.Errorf("failed to connect to NATS: %w", connErr)
	}
	defer natsConnection.Close()
	appLogger.Info("Connected to NATS server at %s", natsConnection.ConnectedUrl())

	jetStream, jsErr := jetstream.New(natsConnection)
	if jsErr != nil {
		return fmt.Errorf("failed to create JetStream context: %w", jsErr)
	}

	jsSetupErr := setupJetStream(ctx, jetStream, cfg)
	if jsSetupErr != nil {
		return fmt.Errorf("failed to set up JetStream resources: %w", jsSetupErr)
	}

	pricingStore, storeErr := pricingstore.Open(ctx, jetStream, cfg.NATS.PricingBucket, cfg.Pricing)
	if storeErr != nil {
		return fmt.Errorf("failed to open pricing store: %w", storeErr)
	}

	consumer, consumerErr := jetStream.Consumer(
		ctx,
		cfg.NATS.PDFStreamName,
		cfg.NATS.PDFConsumerName,
	)
	if consumerErr != nil {
		return fmt.Errorf("failed to get consumer: %w", consumerErr)
	}

	deps, depsErr := bindWorker(ctx, jetStream, cfg, appLogger, processor, pricingStore)
	if depsErr != nil {
		return depsErr
	}

	appLogger.Info("Worker is running, listening for jobs on '%s'...", cfg.NATS.PDFCreatedSubject)

	return processMessages(ctx, consumer, deps)
}

// setupConfigAndLogger loads configuration and sets up the main application logger.
func setupConfigAndLogger(configURL string) (*Config, *logger.Logger, error) {
	if configURL == "" {
		return nil, nil, ErrConfigURLMissing
	}

	var cfg Config

	tempLogger, tempLoggerErr := logger.New(os.TempDir(), "ink-coverage-bootstrap.log")
	if tempLoggerErr != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", tempLoggerErr)
	}
	defer func() {
		if closeErr := tempLogger.Close(); closeErr != nil {
			log.Printf("Warning: failed to close temp logger: %v", closeErr)
		}
	}()

	loadErr := configurator.LoadFromURL(configURL, &cfg, tempLogger)
	if loadErr != nil {
		return nil, nil, fmt.Errorf(
			"failed to load configuration from URL %s: %w",
			configURL,
			loadErr,
		)
	}
	log.Printf("Configuration loaded from %s", configURL)

	pricingErr := cfg.Pricing.Validate()
	if pricingErr != nil {
		return nil, nil, fmt.Errorf("default pricing is unusable: %w", pricingErr)
	}

	appLogger, loggerErr := logger.New(cfg.Paths.BaseLogsDir, "ink-coverage-service.log")
	if loggerErr != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", loggerErr)
	}

	return &cfg, appLogger, nil
}

// processorOptions maps the service settings onto renderer options.
func processorOptions(cfg *Config) *pdfrender.Options {
	workers := cfg.Settings.Workers
	if workers <= 0 {
		workers = defaultWorkerCount
	}

	dpi := cfg.Settings.DPI
	if dpi <= 0 {
		dpi = defaultDPI
	}

	return &pdfrender.Options{
		ProgressBarOutput: os.Stdout,
		InputPath:         "",
		OutputPath:        "",
		Renderer:          cfg.Settings.Renderer,
		DPI:               dpi,
		Workers:           workers,
		FailFast:          cfg.Settings.FailFast,
		KeepImages:        false,
	}
}

// setupJetStream ensures all required NATS streams and object stores exist.
func setupJetStream(ctx context.Context, jetStream jetstream.JetStream, cfg *Config) error {
	streamCfg := newStreamConfig(cfg.NATS.PDFStreamName, cfg.NATS.PDFCreatedSubject)
	_, streamErr := jetStream.CreateStream(ctx, *streamCfg)
	if streamErr != nil && !errors.Is(streamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create PDF stream: %w", streamErr)
	}

	consumerCfg := newConsumerConfig(cfg)
	stream, streamErr := jetStream.Stream(ctx, cfg.NATS.PDFStreamName)
	if streamErr != nil {
		return fmt.Errorf("failed to get PDF stream handle: %w", streamErr)
	}
	_, consumerErr := stream.CreateOrUpdateConsumer(ctx, *consumerCfg)
	if consumerErr != nil {
		return fmt.Errorf("failed to create PDF consumer: %w", consumerErr)
	}

	coverageStreamCfg := newStreamConfig(cfg.NATS.CoverageStreamName, cfg.NATS.CoverageAnalyzedSubject)
	_, coverageStreamErr := jetStream.CreateStream(ctx, *coverageStreamCfg)
	if coverageStreamErr != nil && !errors.Is(coverageStreamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create coverage stream: %w", coverageStreamErr)
	}

	for _, bucket := range []string{cfg.NATS.PDFObjectStoreBucket, cfg.NATS.ReportObjectStoreBucket} {
		objStoreCfg := newObjectStoreConfig(bucket)
		_, objStoreErr := jetStream.CreateObjectStore(ctx, *objStoreCfg)
		if objStoreErr != nil && !errors.Is(objStoreErr, jetstream.ErrBucketExists) {
			return fmt.Errorf("failed to create object store '%s': %w", bucket, objStoreErr)
		}
	}

	return nil
}

func newStreamConfig(name, subject string) *jetstream.StreamConfig {
	return &jetstream.StreamConfig{
		Name:              name,
		Subjects:          []string{subject},
		Retention:         jetstream.WorkQueuePolicy,
		MaxConsumers:      -1,
		MaxMsgs:           -1,
		MaxBytes:          -1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: -1,
		MaxMsgSize:        -1,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Compression:       jetstream.NoCompression,
	}
}

func newConsumerConfig(cfg *Config) *jetstream.ConsumerConfig {
	return &jetstream.ConsumerConfig{
		Durable:       cfg.NATS.PDFConsumerName,
		FilterSubject: cfg.NATS.PDFCreatedSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    -1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
		MaxAckPending: -1,
	}
}

func newObjectStoreConfig(bucket string) *jetstream.ObjectStoreConfig {
	return &jetstream.ObjectStoreConfig{
		Bucket:   bucket,
		MaxBytes: -1,
		Storage:  jetstream.FileStorage,
		Replicas: 1,
	}
}

// processMessages implements the core worker loop.
func processMessages(ctx context.Context, consumer jetstream.Consumer, deps *worker) error {
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("context error in message loop: %w", ctxErr)
		}

		batch, fetchErr := consumer.Fetch(1, jetstream.FetchMaxWait(natsFetchTimeout))
		if fetchErr != nil {
			if errors.Is(fetchErr, context.Canceled) || errors.Is(fetchErr, nats.ErrTimeout) {
				continue
			}
			deps.log.Error("Error fetching messages: %v", fetchErr)

			continue
		}

		for msg := range batch.Messages() {
			deps.handleMessage(ctx, msg)
		}

		if batchErr := batch.Error(); batchErr != nil {
			deps.log.Error("Error during message batch processing: %v", batchErr)
		}
	}
}
