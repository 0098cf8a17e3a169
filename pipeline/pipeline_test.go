package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/report"
	"github.com/jxman/aws-ssm-data-fetcher/stats"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
	"github.com/jxman/aws-ssm-data-fetcher/validate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline() *Pipeline {
	return NewPipeline(
		transform.NewTransformer(),
		matrix.NewBuilder(2),
		stats.NewAnalyzer(),
		validate.NewValidator(validate.DefaultThresholds()),
		discardLogger(),
		nil,
	)
}

func healthyRaw() transform.RawDataset {
	return transform.RawDataset{
		Regions: map[string]transform.RawRegion{
			"us-east-1": {DisplayName: "US East (N. Virginia)", Partition: "aws", FetchStatus: transform.FetchOK},
			"eu-west-1": {DisplayName: "Europe (Ireland)", Partition: "aws", FetchStatus: transform.FetchOK},
		},
		Services: map[string]transform.RawService{
			"ec2": {DisplayName: "Amazon EC2", FetchStatus: transform.FetchOK},
			"s3":  {DisplayName: "Amazon S3", FetchStatus: transform.FetchOK},
		},
		RegionServices: map[string][]string{
			"us-east-1": {"ec2", "s3"},
			"eu-west-1": {"ec2", "s3"},
		},
		LaunchDates: map[string]string{
			"us-east-1": "2006-08-25",
			"eu-west-1": "2007-11-09",
		},
	}
}

func TestRunHappyPath(t *testing.T) {
	p := newTestPipeline()

	rep, err := p.Run(context.Background(), "run-123", healthyRaw())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, p.State())

	assert.Equal(t, "run-123", rep.Metadata.RunID)
	assert.Equal(t, report.SchemaVersion, rep.Metadata.SchemaVersion)
	assert.False(t, rep.Metadata.GeneratedAt.IsZero())
	assert.True(t, rep.Metadata.Source.SSMParameters)
	assert.True(t, rep.Metadata.Source.RSSFeed)

	assert.Len(t, rep.Regions, 2)
	assert.Len(t, rep.Services, 2)
	assert.Len(t, rep.Records, 4)
	require.NotNil(t, rep.Statistics.GlobalPercent)
	assert.InDelta(t, 100.0, *rep.Statistics.GlobalPercent, 1e-9)
	assert.Empty(t, rep.Validation.Findings)

	mr := p.Metrics().GenerateReport()
	assert.Equal(t, int64(4), mr.RecordsBuilt)
	for _, stage := range []string{"transform", "map", "analyze", "validate"} {
		assert.Contains(t, mr.Stages, stage)
	}
}

func TestRunGeneratesRunID(t *testing.T) {
	p := newTestPipeline()

	rep, err := p.Run(context.Background(), "", healthyRaw())
	require.NoError(t, err)
	require.NotEmpty(t, rep.Metadata.RunID)
	_, err = uuid.Parse(rep.Metadata.RunID)
	assert.NoError(t, err, "generated run id must be a UUID")
}

// TestRunProductionScale runs the pipeline at the size a real discovery
// produces: 38 regions crossed with 396 services, every region's list
// resolved, 8558 pairs available.
func TestRunProductionScale(t *testing.T) {
	const (
		regionCount  = 38
		serviceCount = 396
	)

	raw := transform.RawDataset{
		Regions:        make(map[string]transform.RawRegion, regionCount),
		Services:       make(map[string]transform.RawService, serviceCount),
		RegionServices: make(map[string][]string, regionCount),
	}
	services := make([]string, serviceCount)
	for i := range services {
		code := fmt.Sprintf("svc%03d", i)
		services[i] = code
		raw.Services[code] = transform.RawService{DisplayName: code, FetchStatus: transform.FetchOK}
	}
	// Eight regions list 226 services, the other thirty list 225, for 8558
	// available pairs. Lists rotate through the catalog so every service is
	// available somewhere.
	for i := 0; i < regionCount; i++ {
		code := fmt.Sprintf("reg%02d", i)
		raw.Regions[code] = transform.RawRegion{DisplayName: code, Partition: "aws", FetchStatus: transform.FetchOK}
		n := 225
		if i < 8 {
			n = 226
		}
		listed := make([]string, 0, n)
		for j := 0; j < n; j++ {
			listed = append(listed, services[(i*11+j)%serviceCount])
		}
		raw.RegionServices[code] = listed
	}

	p := NewPipeline(
		transform.NewTransformer(),
		matrix.NewBuilder(8),
		stats.NewAnalyzer(),
		validate.NewValidator(validate.Thresholds{MaxMissingFraction: 0.5, MinGlobalCoverage: 50.0}),
		discardLogger(),
		nil,
	)

	rep, err := p.Run(context.Background(), "run-scale", raw)
	require.NoError(t, err)

	assert.Len(t, rep.Records, regionCount*serviceCount)
	assert.Equal(t, 8558, rep.Statistics.ConfirmedAvailable)
	assert.Equal(t, 0, rep.Statistics.Missing)
	require.NotNil(t, rep.Statistics.GlobalPercent)
	assert.InDelta(t, 100.0*8558/(regionCount*serviceCount), *rep.Statistics.GlobalPercent, 1e-9)
	assert.False(t, rep.Validation.HasCritical())
	assert.Equal(t, 0, rep.Validation.Count(validate.SeverityWarning))
}

func TestRunMalformedInput(t *testing.T) {
	p := newTestPipeline()
	raw := healthyRaw()
	raw.Regions = nil

	rep, err := p.Run(context.Background(), "run-bad", raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, transform.ErrMalformedInput))
	assert.Equal(t, StateFailed, p.State())
	assert.Equal(t, report.Report{}, rep, "a failed run produces no partial report")
}

func TestRunFindingsDoNotFail(t *testing.T) {
	p := newTestPipeline()
	raw := healthyRaw()
	// Degrade one region so the run produces warnings.
	raw.Regions["eu-west-1"] = transform.RawRegion{DisplayName: "Europe (Ireland)", Partition: "aws", FetchStatus: transform.FetchFailed}
	delete(raw.RegionServices, "eu-west-1")

	rep, err := p.Run(context.Background(), "run-degraded", raw)
	require.NoError(t, err, "findings ride inside the report, they are not errors")
	assert.Equal(t, StateComplete, p.State())
	assert.NotEmpty(t, rep.Validation.Findings)
	assert.Greater(t, rep.Validation.Count(validate.SeverityWarning), 0)
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Analyze(transform.NormalizedDataset, []matrix.Record) stats.Coverage {
	panic("boom")
}

func TestRunRecoversStagePanic(t *testing.T) {
	p := NewPipeline(
		transform.NewTransformer(),
		matrix.NewBuilder(1),
		panickingAnalyzer{},
		validate.NewValidator(validate.DefaultThresholds()),
		discardLogger(),
		nil,
	)

	_, err := p.Run(context.Background(), "run-panic", healthyRaw())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Contains(t, err.Error(), "analyze stage")
	assert.Equal(t, StateFailed, p.State())
}

type failingMapper struct{ err error }

func (f failingMapper) Build(context.Context, transform.NormalizedDataset) ([]matrix.Record, error) {
	return nil, f.err
}

func TestRunMapperError(t *testing.T) {
	sentinel := errors.New("workers exhausted")
	p := NewPipeline(
		transform.NewTransformer(),
		failingMapper{err: sentinel},
		stats.NewAnalyzer(),
		validate.NewValidator(validate.DefaultThresholds()),
		discardLogger(),
		nil,
	)

	_, err := p.Run(context.Background(), "run-maperr", healthyRaw())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, StateFailed, p.State())
}

func TestRunCancelledContext(t *testing.T) {
	p := newTestPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, "run-cancel", healthyRaw())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateStart:        "start",
		StateTransforming: "transforming",
		StateMapping:      "mapping",
		StateAnalyzing:    "analyzing",
		StateValidating:   "validating",
		StateComplete:     "complete",
		StateFailed:       "failed",
		State(42):         "state(42)",
	} {
		assert.Equal(t, want, state.String())
	}
}
