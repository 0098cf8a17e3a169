// Package stats derives coverage statistics from the availability matrix.
// Percentages are pointers so that an undefined ratio (zero denominator)
// stays distinguishable from a genuine 0%.
package stats

import (
	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

// RegionCoverage summarizes the records of a single region.
type RegionCoverage struct {
	ConfirmedAvailable   int      `json:"confirmedAvailable"`
	InferredAvailable    int      `json:"inferredAvailable"`
	ConfirmedUnavailable int      `json:"confirmedUnavailable"`
	Missing              int      `json:"missing"`
	Percent              *float64 `json:"percent"`
	QualityScore         float64  `json:"qualityScore"`
}

// ServiceCoverage summarizes the records of a single service.
type ServiceCoverage struct {
	ConfirmedAvailable int      `json:"confirmedAvailable"`
	InferredAvailable  int      `json:"inferredAvailable"`
	NonMissing         int      `json:"nonMissing"`
	Percent            *float64 `json:"percent"`
}

// Coverage is the aggregate statistics block of a report.
type Coverage struct {
	TotalRecords         int                        `json:"totalRecords"`
	ConfirmedAvailable   int                        `json:"confirmedAvailable"`
	InferredAvailable    int                        `json:"inferredAvailable"`
	ConfirmedUnavailable int                        `json:"confirmedUnavailable"`
	Missing              int                        `json:"missing"`
	GlobalPercent        *float64                   `json:"globalPercent"`
	Regions              map[string]RegionCoverage  `json:"regions"`
	Services             map[string]ServiceCoverage `json:"services"`
}

// Analyzer computes coverage statistics. It is stateless and safe for
// concurrent use.
type Analyzer struct{}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Weights of the per-region quality score. The confirmed fraction dominates;
// a known launch date contributes the remainder so that richer metadata can
// never outrank better evidence.
const (
	qualityConfirmedWeight  = 0.8
	qualityLaunchDateWeight = 0.2
)

// Analyze tallies the availability records into global, per-region, and
// per-service coverage. Coverage percentages count only confirmed available
// records in the numerator; missing records are excluded from denominators
// entirely, and a denominator of zero yields a nil percentage rather than a
// fake zero.
func (a *Analyzer) Analyze(ds transform.NormalizedDataset, records []matrix.Record) Coverage {
	cov := Coverage{
		TotalRecords: len(records),
		Regions:      make(map[string]RegionCoverage, len(ds.Regions)),
		Services:     make(map[string]ServiceCoverage, len(ds.Services)),
	}

	for _, rec := range records {
		rc := cov.Regions[rec.Region]
		sc := cov.Services[rec.Service]
		switch rec.Confidence {
		case matrix.ConfidenceMissing:
			cov.Missing++
			rc.Missing++
		case matrix.ConfidenceInferred:
			cov.InferredAvailable++
			rc.InferredAvailable++
			sc.InferredAvailable++
			sc.NonMissing++
		default:
			if rec.Available {
				cov.ConfirmedAvailable++
				rc.ConfirmedAvailable++
				sc.ConfirmedAvailable++
			} else {
				cov.ConfirmedUnavailable++
				rc.ConfirmedUnavailable++
			}
			sc.NonMissing++
		}
		cov.Regions[rec.Region] = rc
		cov.Services[rec.Service] = sc
	}

	cov.GlobalPercent = percent(cov.ConfirmedAvailable, cov.TotalRecords-cov.Missing)

	for code, rc := range cov.Regions {
		nonMissing := rc.ConfirmedAvailable + rc.InferredAvailable + rc.ConfirmedUnavailable
		rc.Percent = percent(rc.ConfirmedAvailable, nonMissing)
		rc.QualityScore = qualityScore(ds, code, rc)
		cov.Regions[code] = rc
	}
	for code, sc := range cov.Services {
		sc.Percent = percent(sc.ConfirmedAvailable, sc.NonMissing)
		cov.Services[code] = sc
	}

	return cov
}

// qualityScore grades how trustworthy a region's row is. The score rises
// monotonically with the fraction of confirmed records and gains a fixed
// bonus when the region's launch date is known.
func qualityScore(ds transform.NormalizedDataset, code string, rc RegionCoverage) float64 {
	total := rc.ConfirmedAvailable + rc.InferredAvailable + rc.ConfirmedUnavailable + rc.Missing
	if total == 0 {
		return 0
	}
	confirmed := float64(rc.ConfirmedAvailable+rc.ConfirmedUnavailable) / float64(total)
	score := qualityConfirmedWeight * confirmed
	if region, ok := ds.Region(code); ok && region.LaunchDate != "" {
		score += qualityLaunchDateWeight
	}
	return score
}

// percent returns n/d as a percentage, or nil when the denominator is zero.
func percent(n, d int) *float64 {
	if d == 0 {
		return nil
	}
	v := 100 * float64(n) / float64(d)
	return &v
}
