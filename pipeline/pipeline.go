// Package pipeline orchestrates the processing stages that turn a raw
// discovery dataset into a finished report: transform, map, analyze,
// validate. Stages are injected as interfaces so tests can substitute
// failing or instrumented implementations.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/metrics"
	"github.com/jxman/aws-ssm-data-fetcher/report"
	"github.com/jxman/aws-ssm-data-fetcher/stats"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
	"github.com/jxman/aws-ssm-data-fetcher/validate"
)

// State tracks where a run is in its lifecycle.
type State int

const (
	StateStart State = iota
	StateTransforming
	StateMapping
	StateAnalyzing
	StateValidating
	StateComplete
	StateFailed
)

// String returns the lowercase stage name.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateTransforming:
		return "transforming"
	case StateMapping:
		return "mapping"
	case StateAnalyzing:
		return "analyzing"
	case StateValidating:
		return "validating"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transformer normalizes a raw dataset.
type Transformer interface {
	Transform(raw transform.RawDataset) (transform.NormalizedDataset, error)
}

// Mapper builds the availability matrix.
type Mapper interface {
	Build(ctx context.Context, ds transform.NormalizedDataset) ([]matrix.Record, error)
}

// Analyzer computes coverage statistics.
type Analyzer interface {
	Analyze(ds transform.NormalizedDataset, records []matrix.Record) stats.Coverage
}

// Validator checks the run's outputs against each other.
type Validator interface {
	Validate(ds transform.NormalizedDataset, records []matrix.Record, cov stats.Coverage) validate.Report
}

// Pipeline runs the processing stages in order and assembles the report.
// A Pipeline is reusable but a single instance must not run concurrently,
// its state tracking covers one run at a time.
type Pipeline struct {
	transformer Transformer
	mapper      Mapper
	analyzer    Analyzer
	validator   Validator
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu    sync.RWMutex
	state State
}

// NewPipeline creates a pipeline from its stages. A nil logger falls back to
// slog.Default; a nil metrics collector gets a fresh one.
func NewPipeline(transformer Transformer, mapper Mapper, analyzer Analyzer, validator Validator, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Pipeline{
		transformer: transformer,
		mapper:      mapper,
		analyzer:    analyzer,
		validator:   validator,
		logger:      logger,
		metrics:     m,
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Metrics returns the run's metrics collector.
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run executes every stage against the raw dataset and returns the
// assembled report. An empty runID gets a generated UUID. On any stage
// error the pipeline ends in StateFailed and returns no report; validation
// findings never cause an error, they ride along inside the report.
func (p *Pipeline) Run(ctx context.Context, runID string, raw transform.RawDataset) (report.Report, error) {
	if err := ctx.Err(); err != nil {
		return report.Report{}, err
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := p.logger.With("runId", runID)

	p.setState(StateStart)
	startedAt := time.Now().UTC()
	logger.Info("pipeline starting",
		"rawRegions", len(raw.Regions),
		"rawServices", len(raw.Services),
		"launchDates", len(raw.LaunchDates))

	var ds transform.NormalizedDataset
	p.setState(StateTransforming)
	if err := p.runStage(logger, "transform", func() error {
		var err error
		ds, err = p.transformer.Transform(raw)
		return err
	}); err != nil {
		return report.Report{}, p.fail(logger, "transform", err)
	}
	logger.Info("transform complete", "regions", len(ds.Regions), "services", len(ds.Services))

	var records []matrix.Record
	p.setState(StateMapping)
	if err := p.runStage(logger, "map", func() error {
		var err error
		records, err = p.mapper.Build(ctx, ds)
		return err
	}); err != nil {
		return report.Report{}, p.fail(logger, "map", err)
	}
	p.metrics.RecordRecordsBuilt(len(records))
	logger.Info("mapping complete", "records", len(records))

	var cov stats.Coverage
	p.setState(StateAnalyzing)
	if err := p.runStage(logger, "analyze", func() error {
		cov = p.analyzer.Analyze(ds, records)
		return nil
	}); err != nil {
		return report.Report{}, p.fail(logger, "analyze", err)
	}
	p.metrics.RecordMissingRecords(cov.Missing)
	logger.Info("analysis complete", "globalCoverage", formatPercent(cov.GlobalPercent), "missing", cov.Missing)

	var val validate.Report
	p.setState(StateValidating)
	if err := p.runStage(logger, "validate", func() error {
		val = p.validator.Validate(ds, records, cov)
		return nil
	}); err != nil {
		return report.Report{}, p.fail(logger, "validate", err)
	}
	p.metrics.RecordFindings(len(val.Findings))
	logger.Info("validation complete",
		"findings", len(val.Findings),
		"critical", val.Count(validate.SeverityCritical),
		"warning", val.Count(validate.SeverityWarning))

	rep := report.Report{
		Metadata: report.Metadata{
			RunID:         runID,
			GeneratedAt:   startedAt,
			SchemaVersion: report.SchemaVersion,
			Source: report.Provenance{
				SSMParameters: true,
				RSSFeed:       len(raw.LaunchDates) > 0,
			},
		},
		Regions:    ds.Regions,
		Services:   ds.Services,
		Records:    records,
		Statistics: cov,
		Validation: val,
	}

	p.setState(StateComplete)
	logger.Info("pipeline complete", "elapsed", time.Since(startedAt).String())
	return rep, nil
}

// runStage times a stage and converts panics into errors so a bug in one
// stage cannot take the process down with a half-written state.
func (p *Pipeline) runStage(logger *slog.Logger, name string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordStageTime(name, time.Since(start))
		if r := recover(); r != nil {
			logger.Error("stage panicked", "stage", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (p *Pipeline) fail(logger *slog.Logger, stage string, err error) error {
	p.setState(StateFailed)
	logger.Error("pipeline failed", "stage", stage, "error", err)
	return fmt.Errorf("%s stage: %w", stage, err)
}

func formatPercent(p *float64) string {
	if p == nil {
		return "undefined"
	}
	return fmt.Sprintf("%.1f%%", *p)
}
