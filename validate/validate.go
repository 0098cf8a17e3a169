// Package validate runs consistency and plausibility checks over a finished
// dataset, matrix, and coverage block. Validation only ever reads its
// inputs; findings describe problems, they never repair them.
package validate

import (
	"fmt"

	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/stats"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

// Severity ranks a finding.
type Severity string

const (
	// SeverityInfo findings are observations worth surfacing in the report.
	SeverityInfo Severity = "info"
	// SeverityWarning findings indicate degraded data quality.
	SeverityWarning Severity = "warning"
	// SeverityCritical findings indicate structural corruption such as
	// duplicate records or dangling references.
	SeverityCritical Severity = "critical"
)

// Finding is one validation result. Entity names what the finding is about,
// for example "region:us-east-1" or "pipeline".
type Finding struct {
	Severity Severity `json:"severity"`
	Entity   string   `json:"entity"`
	Detail   string   `json:"detail"`
}

// Report collects every finding of a validation run.
type Report struct {
	Findings []Finding `json:"findings"`
}

// Count returns how many findings carry the given severity.
func (r Report) Count(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// HasCritical reports whether any critical finding exists.
func (r Report) HasCritical() bool {
	return r.Count(SeverityCritical) > 0
}

// Thresholds tune when degraded data escalates to a warning.
type Thresholds struct {
	// MaxMissingFraction is the per-region fraction of missing records
	// above which the region is flagged.
	MaxMissingFraction float64
	// MinGlobalCoverage is the global coverage percentage below which the
	// whole run is flagged.
	MinGlobalCoverage float64
}

// DefaultThresholds returns the thresholds used in production runs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxMissingFraction: 0.5,
		MinGlobalCoverage:  90.0,
	}
}

// Validator checks a pipeline run's outputs against each other.
type Validator struct {
	thresholds Thresholds
}

// NewValidator creates a validator with the given thresholds.
func NewValidator(thresholds Thresholds) *Validator {
	return &Validator{thresholds: thresholds}
}

// Validate inspects the dataset, records, and coverage and returns every
// finding. The same inputs always produce the same report, findings are
// ordered by check then entity, and no severity short-circuits later checks.
func (v *Validator) Validate(ds transform.NormalizedDataset, records []matrix.Record, cov stats.Coverage) Report {
	var findings []Finding
	findings = append(findings, checkDuplicates(records)...)
	findings = append(findings, checkReferences(ds, records)...)
	findings = append(findings, v.checkMissingRegions(ds, cov)...)
	findings = append(findings, checkOrphanServices(ds, cov)...)
	findings = append(findings, v.checkGlobalCoverage(cov)...)
	findings = append(findings, checkLaunchDates(ds)...)
	findings = append(findings, checkPartitions(ds)...)
	return Report{Findings: findings}
}

// checkDuplicates flags every (region, service) pair that appears more than
// once. One finding per pair regardless of how often it repeats.
func checkDuplicates(records []matrix.Record) []Finding {
	var findings []Finding
	seen := make(map[string]bool, len(records))
	flagged := make(map[string]bool)
	for _, rec := range records {
		key := rec.Region + "/" + rec.Service
		if seen[key] && !flagged[key] {
			flagged[key] = true
			findings = append(findings, Finding{
				Severity: SeverityCritical,
				Entity:   key,
				Detail:   "duplicate availability record",
			})
		}
		seen[key] = true
	}
	return findings
}

// checkReferences flags records that name a region or service the dataset
// does not contain. One finding per unknown code.
func checkReferences(ds transform.NormalizedDataset, records []matrix.Record) []Finding {
	regions := make(map[string]bool, len(ds.Regions))
	for _, r := range ds.Regions {
		regions[r.Code] = true
	}
	services := make(map[string]bool, len(ds.Services))
	for _, s := range ds.Services {
		services[s.Code] = true
	}

	var findings []Finding
	unknownRegions := make(map[string]bool)
	unknownServices := make(map[string]bool)
	for _, rec := range records {
		if !regions[rec.Region] && !unknownRegions[rec.Region] {
			unknownRegions[rec.Region] = true
			findings = append(findings, Finding{
				Severity: SeverityCritical,
				Entity:   "region:" + rec.Region,
				Detail:   "record references a region absent from the dataset",
			})
		}
		if !services[rec.Service] && !unknownServices[rec.Service] {
			unknownServices[rec.Service] = true
			findings = append(findings, Finding{
				Severity: SeverityCritical,
				Entity:   "service:" + rec.Service,
				Detail:   "record references a service absent from the dataset",
			})
		}
	}
	return findings
}

// checkMissingRegions flags regions whose missing fraction exceeds the
// threshold. Iterates the sorted dataset so finding order is stable.
func (v *Validator) checkMissingRegions(ds transform.NormalizedDataset, cov stats.Coverage) []Finding {
	var findings []Finding
	for _, region := range ds.Regions {
		rc, ok := cov.Regions[region.Code]
		if !ok {
			continue
		}
		total := rc.ConfirmedAvailable + rc.InferredAvailable + rc.ConfirmedUnavailable + rc.Missing
		if total == 0 {
			continue
		}
		fraction := float64(rc.Missing) / float64(total)
		if fraction > v.thresholds.MaxMissingFraction {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Entity:   "region:" + region.Code,
				Detail:   fmt.Sprintf("%.0f%% of records are missing, threshold is %.0f%%", fraction*100, v.thresholds.MaxMissingFraction*100),
			})
		}
	}
	return findings
}

// checkOrphanServices flags services available in no region at all, which
// usually points at a naming mismatch upstream.
func checkOrphanServices(ds transform.NormalizedDataset, cov stats.Coverage) []Finding {
	var findings []Finding
	for _, svc := range ds.Services {
		sc, ok := cov.Services[svc.Code]
		if !ok {
			continue
		}
		if sc.ConfirmedAvailable == 0 && sc.InferredAvailable == 0 {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Entity:   "service:" + svc.Code,
				Detail:   "not available in any region",
			})
		}
	}
	return findings
}

// checkGlobalCoverage flags a run whose overall coverage is below the
// threshold, or undefined altogether.
func (v *Validator) checkGlobalCoverage(cov stats.Coverage) []Finding {
	if cov.GlobalPercent == nil {
		return []Finding{{
			Severity: SeverityWarning,
			Entity:   "pipeline",
			Detail:   "global coverage is undefined, no non-missing records exist",
		}}
	}
	if *cov.GlobalPercent < v.thresholds.MinGlobalCoverage {
		return []Finding{{
			Severity: SeverityWarning,
			Entity:   "pipeline",
			Detail:   fmt.Sprintf("global coverage %.1f%% is below threshold %.1f%%", *cov.GlobalPercent, v.thresholds.MinGlobalCoverage),
		}}
	}
	return nil
}

// checkLaunchDates reports how many regions lack a launch date.
func checkLaunchDates(ds transform.NormalizedDataset) []Finding {
	n := 0
	for _, region := range ds.Regions {
		if region.LaunchDate == "" {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return []Finding{{
		Severity: SeverityInfo,
		Entity:   "regions",
		Detail:   fmt.Sprintf("regions with no launch date: %d", n),
	}}
}

// checkPartitions reports how many non-commercial regions the dataset
// includes, since GovCloud and isolated regions often surprise consumers.
func checkPartitions(ds transform.NormalizedDataset) []Finding {
	n := 0
	for _, region := range ds.Regions {
		if region.Partition != transform.PartitionCommercial {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return []Finding{{
		Severity: SeverityInfo,
		Entity:   "regions",
		Detail:   fmt.Sprintf("non-commercial partition regions: %d", n),
	}}
}
