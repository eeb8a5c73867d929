// Package batch masks datasets stored as CSV, JSON Lines or Parquet files
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/datacloak/internal/audit"
	"github.com/raaihank/datacloak/internal/metrics"
	"github.com/raaihank/datacloak/internal/privacy"
)

// Pipeline masks every record of a file with a shared engine
type Pipeline struct {
	engine  *privacy.Engine
	config  *Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	audit   audit.Sink
}

// Option configures optional pipeline collaborators
type Option func(*Pipeline)

// WithMetrics counts processed records on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithAudit records one audit event per processed file
func WithAudit(sink audit.Sink) Option {
	return func(p *Pipeline) { p.audit = sink }
}

// NewPipeline creates a new batch pipeline
func NewPipeline(engine *privacy.Engine, config *Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	p := &Pipeline{
		engine: engine,
		config: config,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// maskResult is the outcome of one record
type maskResult struct {
	output     OutputRecord
	detections []privacy.Detection
	err        error
}

// ProcessFile masks inputPath and writes the records that succeeded to
// outputPath, in the input's format and order
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	format, err := DetectFileFormat(inputPath)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Starting batch masking",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	reader, err := openReader(format, inputPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	writer, err := createWriter(format, outputPath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{ItemsByType: make(map[string]int64)}
	for _, piiType := range p.engine.Types() {
		result.ItemsByType[string(piiType)] = 0
	}

	runErr := p.processBatches(ctx, reader, writer, result)
	if closeErr := writer.Close(); closeErr != nil && runErr == nil {
		runErr = fmt.Errorf("failed to finalize output: %w", closeErr)
	}

	result.Duration = time.Since(start)

	if runErr != nil {
		return result, runErr
	}

	p.recordAudit(ctx, inputPath, result)

	p.logger.Info("Batch masking completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("items_found", result.ItemsFound),
		zap.Duration("total_duration", result.Duration))

	return result, nil
}

// processBatches reads fixed-size batches until the input is exhausted
func (p *Pipeline) processBatches(ctx context.Context, reader recordReader, writer recordWriter, result *Result) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, eof, err := p.readBatch(reader, result)
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}

		if len(batch) > 0 {
			results := p.maskBatch(ctx, batch)
			if err := p.collect(results, writer, result); err != nil {
				return err
			}
			p.logger.Debug("Batch processed",
				zap.Int("batch_size", len(batch)),
				zap.Int64("records_processed", result.TotalRecords))
		}

		if eof {
			return nil
		}
	}
}

// readBatch reads up to BatchSize records. Malformed CSV rows are counted as
// failed and skipped; any other read error aborts the run.
func (p *Pipeline) readBatch(reader recordReader, result *Result) ([]InputRecord, bool, error) {
	batch := make([]InputRecord, 0, p.config.BatchSize)

	for len(batch) < p.config.BatchSize {
		record, err := reader.Read()
		if err == io.EOF {
			return batch, true, nil
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			result.TotalRecords++
			p.fail(result, fmt.Sprintf("line %d: %v", parseErr.Line, parseErr.Err))
			continue
		}
		if err != nil {
			return nil, false, err
		}

		batch = append(batch, record)
	}

	return batch, false, nil
}

// maskBatch fans the batch out to the worker pool. Results keep input order.
func (p *Pipeline) maskBatch(ctx context.Context, batch []InputRecord) []maskResult {
	results := make([]maskResult, len(batch))
	jobs := make(chan int)

	workers := p.config.WorkerCount
	if workers > len(batch) {
		workers = len(batch)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.maskRecord(ctx, batch[i])
			}
		}()
	}

	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (p *Pipeline) maskRecord(ctx context.Context, record InputRecord) maskResult {
	outcome, err := p.engine.MaskTextContext(ctx, record.Text)
	if err != nil {
		return maskResult{output: OutputRecord{ID: record.ID}, err: err}
	}

	counts := privacy.CountByType(outcome.DetectedPII)
	types := make([]string, 0, len(counts))
	for piiType := range counts {
		types = append(types, string(piiType))
	}
	sort.Strings(types)

	return maskResult{
		output: OutputRecord{
			ID:            record.ID,
			MaskedText:    outcome.MaskedText,
			PIIItemsFound: int64(len(outcome.DetectedPII)),
			PIITypes:      types,
		},
		detections: outcome.DetectedPII,
	}
}

// collect writes successful records and folds every outcome into result
func (p *Pipeline) collect(results []maskResult, writer recordWriter, result *Result) error {
	for _, r := range results {
		result.TotalRecords++

		if r.err != nil {
			var tooLarge *privacy.InputTooLargeError
			if !errors.As(r.err, &tooLarge) {
				// cancellation and other engine errors abort the run
				return r.err
			}
			p.fail(result, fmt.Sprintf("record %q: %v", r.output.ID, r.err))
			continue
		}

		if err := writer.Write(r.output); err != nil {
			return fmt.Errorf("failed to write record %q: %w", r.output.ID, err)
		}

		result.ProcessedOK++
		result.ItemsFound += r.output.PIIItemsFound
		for piiType, n := range privacy.CountByType(r.detections) {
			result.ItemsByType[string(piiType)] += int64(n)
		}
		if p.metrics != nil {
			p.metrics.BatchRecords.WithLabelValues("ok").Inc()
		}
	}
	return nil
}

func (p *Pipeline) fail(result *Result, message string) {
	result.ProcessedFailed++
	if len(result.Errors) < maxReportedErrors {
		result.Errors = append(result.Errors, message)
	}
	if p.metrics != nil {
		p.metrics.BatchRecords.WithLabelValues("failed").Inc()
	}
	p.logger.Debug("Record skipped", zap.String("reason", message))
}

func (p *Pipeline) recordAudit(ctx context.Context, inputPath string, result *Result) {
	if p.audit == nil {
		return
	}

	event := &audit.Event{
		RequestID:       inputPath,
		Operation:       string(audit.OperationBatch),
		TextLength:      int(result.TotalRecords),
		ItemsFound:      int(result.ItemsFound),
		EmailCount:      int(result.ItemsByType[string(privacy.TypeEmail)]),
		PhoneCount:      int(result.ItemsByType[string(privacy.TypePhone)]),
		SSNCount:        int(result.ItemsByType[string(privacy.TypeSSN)]),
		CreditCardCount: int(result.ItemsByType[string(privacy.TypeCreditCard)]),
		DurationMs:      result.Duration.Milliseconds(),
	}
	if err := p.audit.Record(ctx, event); err != nil {
		p.logger.Warn("Failed to record batch audit event", zap.Error(err))
	}
}
