package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

func buildFixtures(t *testing.T, raw transform.RawDataset) (transform.NormalizedDataset, []matrix.Record) {
	t.Helper()
	ds, err := transform.NewTransformer().Transform(raw)
	require.NoError(t, err)
	records, err := matrix.NewBuilder(1).Build(context.Background(), ds)
	require.NoError(t, err)
	return ds, records
}

func twoRegionRaw() transform.RawDataset {
	return transform.RawDataset{
		Regions: map[string]transform.RawRegion{
			"r1": {DisplayName: "Region One", Partition: "aws", FetchStatus: transform.FetchOK},
			"r2": {DisplayName: "Region Two", Partition: "aws", FetchStatus: transform.FetchFailed},
		},
		Services: map[string]transform.RawService{
			"s1": {DisplayName: "Service One", FetchStatus: transform.FetchOK},
			"s2": {DisplayName: "Service Two", FetchStatus: transform.FetchOK},
			"s3": {DisplayName: "Service Three", FetchStatus: transform.FetchOK},
		},
		RegionServices: map[string][]string{
			"r1": {"s1", "s2"},
		},
		LaunchDates: map[string]string{"r1": "2016-10-17"},
	}
}

func TestAnalyzeCounts(t *testing.T) {
	ds, records := buildFixtures(t, twoRegionRaw())

	cov := NewAnalyzer().Analyze(ds, records)

	assert.Equal(t, 6, cov.TotalRecords)
	assert.Equal(t, 2, cov.ConfirmedAvailable)
	assert.Equal(t, 0, cov.InferredAvailable)
	assert.Equal(t, 1, cov.ConfirmedUnavailable)
	assert.Equal(t, 3, cov.Missing)

	require.NotNil(t, cov.GlobalPercent)
	assert.InDelta(t, 100.0*2/3, *cov.GlobalPercent, 1e-9)
}

func TestAnalyzeRegionCoverage(t *testing.T) {
	ds, records := buildFixtures(t, twoRegionRaw())

	cov := NewAnalyzer().Analyze(ds, records)
	require.Len(t, cov.Regions, 2)

	r1 := cov.Regions["r1"]
	assert.Equal(t, 2, r1.ConfirmedAvailable)
	assert.Equal(t, 1, r1.ConfirmedUnavailable)
	assert.Equal(t, 0, r1.Missing)
	require.NotNil(t, r1.Percent)
	assert.InDelta(t, 100.0*2/3, *r1.Percent, 1e-9)
	// All three records confirmed plus a known launch date.
	assert.InDelta(t, 1.0, r1.QualityScore, 1e-9)

	r2 := cov.Regions["r2"]
	assert.Equal(t, 3, r2.Missing)
	assert.Nil(t, r2.Percent, "an all-missing region has no defined coverage")
	assert.InDelta(t, 0.0, r2.QualityScore, 1e-9)
}

func TestAnalyzeServiceCoverage(t *testing.T) {
	ds, records := buildFixtures(t, twoRegionRaw())

	cov := NewAnalyzer().Analyze(ds, records)
	require.Len(t, cov.Services, 3)

	s1 := cov.Services["s1"]
	assert.Equal(t, 1, s1.ConfirmedAvailable)
	assert.Equal(t, 1, s1.NonMissing, "r2's missing record stays out of the denominator")
	require.NotNil(t, s1.Percent)
	assert.InDelta(t, 100.0, *s1.Percent, 1e-9)

	s3 := cov.Services["s3"]
	assert.Equal(t, 0, s3.ConfirmedAvailable)
	require.NotNil(t, s3.Percent)
	assert.InDelta(t, 0.0, *s3.Percent, 1e-9)
}

func TestAnalyzeInferredExcludedFromNumerator(t *testing.T) {
	raw := twoRegionRaw()
	raw.Services["s1"] = transform.RawService{DisplayName: "Service One", FetchStatus: transform.FetchFailed}
	ds, records := buildFixtures(t, raw)

	cov := NewAnalyzer().Analyze(ds, records)

	assert.Equal(t, 1, cov.InferredAvailable)
	assert.Equal(t, 1, cov.ConfirmedAvailable)
	require.NotNil(t, cov.GlobalPercent)
	// Inferred records count toward the denominator but not the numerator.
	assert.InDelta(t, 100.0*1/3, *cov.GlobalPercent, 1e-9)
}

func TestAnalyzeAllMissing(t *testing.T) {
	raw := twoRegionRaw()
	raw.Regions["r1"] = transform.RawRegion{DisplayName: "Region One", Partition: "aws", FetchStatus: transform.FetchFailed}
	delete(raw.RegionServices, "r1")
	ds, records := buildFixtures(t, raw)

	cov := NewAnalyzer().Analyze(ds, records)

	assert.Equal(t, 6, cov.Missing)
	assert.Nil(t, cov.GlobalPercent, "zero denominator must not masquerade as 0%")
}

func TestAnalyzeEmptyRecords(t *testing.T) {
	ds, _ := buildFixtures(t, twoRegionRaw())

	cov := NewAnalyzer().Analyze(ds, nil)

	assert.Equal(t, 0, cov.TotalRecords)
	assert.Nil(t, cov.GlobalPercent)
	assert.Empty(t, cov.Regions)
	assert.Empty(t, cov.Services)
}

func TestQualityScoreMonotonic(t *testing.T) {
	base := twoRegionRaw()
	delete(base.LaunchDates, "r1")

	// Degrade one service fetch so r1 has an inferred record.
	degraded := twoRegionRaw()
	delete(degraded.LaunchDates, "r1")
	degraded.Services["s1"] = transform.RawService{DisplayName: "Service One", FetchStatus: transform.FetchFailed}

	dsBase, recBase := buildFixtures(t, base)
	dsDegraded, recDegraded := buildFixtures(t, degraded)

	a := NewAnalyzer()
	scoreBase := a.Analyze(dsBase, recBase).Regions["r1"].QualityScore
	scoreDegraded := a.Analyze(dsDegraded, recDegraded).Regions["r1"].QualityScore
	assert.Greater(t, scoreBase, scoreDegraded, "confirming a record never lowers the score")

	// Adding a launch date raises the score without touching records.
	dsDated, recDated := buildFixtures(t, twoRegionRaw())
	scoreDated := a.Analyze(dsDated, recDated).Regions["r1"].QualityScore
	assert.Greater(t, scoreDated, scoreBase)
	assert.InDelta(t, scoreBase+0.2, scoreDated, 1e-9)
}
