package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/ink-coverage-service/internal/coverage"
	"github.com/book-expert/ink-coverage-service/internal/pdfrender"
	"github.com/book-expert/ink-coverage-service/internal/pricing"
	"github.com/book-expert/ink-coverage-service/internal/pricingstore"
	"github.com/book-expert/ink-coverage-service/internal/report"
)

const (
	jsonReportName = "coverage-report.json"
	csvReportName  = "coverage-report.csv"
)

// ErrNoPagesAnalyzed is returned when every page of a document failed.
var ErrNoPagesAnalyzed = errors.New("no page of the document could be analyzed")

// documentAnalyzer is the part of pdfrender.Processor a job uses.
type documentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, pdfPath string) (*pdfrender.DocumentResult, error)
}

// pricingLoader is the part of pricingstore.Store a job uses.
type pricingLoader interface {
	Load(ctx context.Context, tenant string) (pricing.CartridgePricing, error)
}

// publisher is the part of jetstream.JetStream a job uses.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// worker holds everything shared by the jobs of one service instance.
type worker struct {
	publisher   publisher
	pdfStore    jetstream.ObjectStore
	reportStore jetstream.ObjectStore
	analyzer    documentAnalyzer
	pricing     pricingLoader
	cfg         *Config
	log         *logger.Logger
}

// bindWorker binds the object stores and assembles the worker.
func bindWorker(
	ctx context.Context,
	jetStream jetstream.JetStream,
	cfg *Config,
	appLogger *logger.Logger,
	processor *pdfrender.Processor,
	pricingStore *pricingstore.Store,
) (*worker, error) {
	pdfStore, pdfStoreErr := jetStream.ObjectStore(ctx, cfg.NATS.PDFObjectStoreBucket)
	if pdfStoreErr != nil {
		return nil, fmt.Errorf("failed to bind to PDF object store: %w", pdfStoreErr)
	}

	reportStore, reportStoreErr := jetStream.ObjectStore(ctx, cfg.NATS.ReportObjectStoreBucket)
	if reportStoreErr != nil {
		return nil, fmt.Errorf("failed to bind to report object store: %w", reportStoreErr)
	}

	return &worker{
		publisher:   jetStream,
		pdfStore:    pdfStore,
		reportStore: reportStore,
		analyzer:    processor,
		pricing:     pricingStore,
		cfg:         cfg,
		log:         appLogger,
	}, nil
}

// job represents the context for processing a single message.
type job struct {
	*worker

	msg           jetstream.Msg
	stopKeepAlive func()
	event         *events.PDFCreatedEvent
	header        *events.EventHeader
	workDir       string
	localPDFPath  string
}

// handleMessage processes a single message.
func (w *worker) handleMessage(ctx context.Context, msg jetstream.Msg) {
	event, unmarshalErr := unmarshalEvent(msg)
	if unmarshalErr != nil {
		// A message that cannot be decoded will never succeed.
		w.log.Error("Failed to create job: %v", unmarshalErr)

		if termErr := msg.Term(); termErr != nil {
			w.log.Error("Failed to TERM message: %v", termErr)
		}

		return
	}

	j := &job{
		worker:        w,
		msg:           msg,
		stopKeepAlive: func() {},
		event:         event,
		header:        &event.Header,
		workDir:       "", // Will be set by setupWorkDir
		localPDFPath:  "", // Will be set by setupWorkDir
	}
	j.run(ctx)
}

// unmarshalEvent unmarshals the PDFCreatedEvent from a message.
func unmarshalEvent(msg jetstream.Msg) (*events.PDFCreatedEvent, error) {
	var event events.PDFCreatedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal PDFCreatedEvent: %w", err)
	}

	if event.PDFKey == "" {
		return nil, errors.New("PDFCreatedEvent has no PDF key")
	}

	return &event, nil
}

// run executes the full lifecycle of a job. Errors that would recur on redelivery
// terminate the message; anything else is NAK'ed for a retry.
func (j *job) run(ctx context.Context) {
	j.log.Info(
		"Received job for WorkflowID [%s]: analyzing PDF key '%s'",
		j.header.WorkflowID,
		j.event.PDFKey,
	)

	j.stopKeepAlive = j.keepAlive(ctx)
	defer j.stopKeepAlive()

	dirErr := j.setupWorkDir()
	if dirErr != nil {
		j.fail("setting up work directory", dirErr)

		return
	}
	defer j.cleanupWorkDir()

	if downloadErr := j.downloadPDF(ctx); downloadErr != nil {
		j.fail("downloading PDF", downloadErr)

		return
	}

	rep, analyzeErr := j.analyze(ctx)
	if analyzeErr != nil {
		j.fail("analyzing PDF", analyzeErr)

		return
	}

	keys, uploadErr := j.uploadReport(ctx, rep)
	if uploadErr != nil {
		j.fail("uploading report", uploadErr)

		return
	}

	if publishErr := j.publishCoverageAnalyzedEvent(ctx, rep, keys); publishErr != nil {
		j.fail("publishing event", publishErr)

		return
	}

	j.ack()
}

// keepAlive extends the ack deadline while the job runs. The returned function stops
// it and is safe to call more than once.
func (j *job) keepAlive(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(ackWait / 2)
		defer ticker.Stop()

		for {
			if progErr := j.msg.InProgress(); progErr != nil {
				j.log.Warn("Failed to send InProgress update: %v", progErr)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (j *job) setupWorkDir() error {
	workDir, err := os.MkdirTemp("", fmt.Sprintf("coverage-%s-", j.header.WorkflowID))
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	j.workDir = workDir
	j.localPDFPath = filepath.Join(workDir, filepath.Base(j.event.PDFKey))

	return nil
}

func (j *job) cleanupWorkDir() {
	if err := os.RemoveAll(j.workDir); err != nil {
		j.log.Warn("Failed to remove temp directory '%s': %v", j.workDir, err)
	}
}

func (j *job) downloadPDF(ctx context.Context) error {
	err := j.pdfStore.GetFile(ctx, j.event.PDFKey, j.localPDFPath)
	if err != nil {
		return fmt.Errorf("failed to get PDF '%s' from object store: %w", j.event.PDFKey, err)
	}

	return nil
}

// analyze measures every page, loads the tenant's pricing and builds the report.
func (j *job) analyze(ctx context.Context) (*report.Report, error) {
	result, analyzeErr := j.analyzer.AnalyzeDocument(ctx, j.localPDFPath)
	if analyzeErr != nil {
		return nil, fmt.Errorf("failed to analyze PDF: %w", analyzeErr)
	}

	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoPagesAnalyzed, result.Err())
	}

	if len(result.Failures) > 0 {
		j.log.Warn("Job [%s]: pages %v could not be analyzed", j.header.WorkflowID, result.FailedPages())
	}

	cartridges, pricingErr := j.pricing.Load(ctx, j.header.TenantID)
	if pricingErr != nil {
		return nil, fmt.Errorf("failed to load pricing: %w", pricingErr)
	}

	return report.FromDocument(result, cartridges, time.Now())
}

// reportKeys are the object names a report was stored under.
type reportKeys struct {
	JSON string
	CSV  string
}

// objectNames returns where the reports of a workflow are stored. Events without a
// tenant are filed under the workflow alone.
func objectNames(header *events.EventHeader) reportKeys {
	prefix := header.WorkflowID + "/"
	if header.TenantID != "" {
		prefix = header.TenantID + "/" + prefix
	}

	return reportKeys{JSON: prefix + jsonReportName, CSV: prefix + csvReportName}
}

func (j *job) uploadReport(ctx context.Context, rep *report.Report) (reportKeys, error) {
	keys := objectNames(j.header)

	uploads := []struct {
		name   string
		format report.Format
	}{
		{name: keys.JSON, format: report.FormatJSON},
		{name: keys.CSV, format: report.FormatCSV},
	}

	for _, upload := range uploads {
		var buf bytes.Buffer

		writeErr := rep.Write(&buf, upload.format)
		if writeErr != nil {
			return reportKeys{}, writeErr
		}

		uploadErr := uploadToObjectStore(ctx, j.reportStore, upload.name, &buf)
		if uploadErr != nil {
			return reportKeys{}, uploadErr
		}

		j.log.Info("Job [%s]: Uploaded '%s'", j.header.WorkflowID, upload.name)
	}

	return keys, nil
}

// publishCoverageAnalyzedEvent marshals and publishes a CoverageAnalyzedEvent.
func (j *job) publishCoverageAnalyzedEvent(
	ctx context.Context,
	rep *report.Report,
	keys reportKeys,
) error {
	event := newCoverageAnalyzedEvent(j.header, j.event.PDFKey, rep, keys)

	eventJSON, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal CoverageAnalyzedEvent: %w", marshalErr)
	}

	_, pubErr := j.publisher.Publish(ctx, j.cfg.NATS.CoverageAnalyzedSubject, eventJSON)
	if pubErr != nil {
		return fmt.Errorf("failed to publish CoverageAnalyzedEvent: %w", pubErr)
	}

	return nil
}

// fail logs the failed step and either terminates or NAKs the message.
func (j *job) fail(step string, reason error) {
	j.log.Error("Error %s for job [%s]: %v", step, j.header.WorkflowID, reason)

	if isPermanent(reason) {
		j.term(reason)

		return
	}

	j.nak(reason)
}

// isPermanent reports whether redelivering the message would fail the same way. Work
// cut short by shutdown is always retried.
func isPermanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	permanent := []error{
		jetstream.ErrObjectNotFound,
		pdfrender.ErrPDFZeroOrNegativePages,
		coverage.ErrRasterization,
		coverage.ErrEmptyDocument,
		ErrNoPagesAnalyzed,
		pricing.ErrInvalidPricing,
		pricingstore.ErrInvalidTenant,
	}

	for _, target := range permanent {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func (j *job) ack() {
	j.stopKeepAlive()

	if err := j.msg.Ack(); err != nil {
		j.log.Error("Job [%s]: Failed to acknowledge message: %v", j.header.WorkflowID, err)
	} else {
		j.log.Success("Job [%s]: Processing complete. Acknowledged.", j.header.WorkflowID)
	}
}

func (j *job) nak(reason error) {
	j.stopKeepAlive()

	j.log.Error("NAK'ing message for job [%s]: %v", j.header.WorkflowID, reason)
	if err := j.msg.Nak(); err != nil {
		j.log.Error("Failed to NAK message: %v", err)
	}
}

func (j *job) term(reason error) {
	j.stopKeepAlive()

	j.log.Error("Terminating message for job [%s]: %v", j.header.WorkflowID, reason)
	if err := j.msg.Term(); err != nil {
		j.log.Error("Failed to TERM message: %v", err)
	}
}

func uploadToObjectStore(
	ctx context.Context,
	store jetstream.ObjectStore,
	objectName string,
	data *bytes.Buffer,
) error {
	meta := jetstream.ObjectMeta{
		Name:        objectName,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
	}

	_, putErr := store.Put(ctx, meta, data)
	if putErr != nil {
		return fmt.Errorf("failed to put '%s' in object store: %w", objectName, putErr)
	}

	return nil
}

// newEventHeader derives the header of an outgoing event from the incoming one.
func newEventHeader(in *events.EventHeader) events.EventHeader {
	return events.EventHeader{
		WorkflowID: in.WorkflowID,
		UserID:     in.UserID,
		TenantID:   in.TenantID,
		EventID:    uuid.New().String(),
		Timestamp:  time.Now(),
	}
}
