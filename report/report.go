// Package report defines the assembled output of a pipeline run: the
// normalized entities, the availability matrix, coverage statistics, and the
// validation findings, stamped with run metadata.
package report

import (
	"time"

	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/stats"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
	"github.com/jxman/aws-ssm-data-fetcher/validate"
)

// SchemaVersion identifies the report layout. Bump on breaking changes to
// the serialized form.
const SchemaVersion = "1.0"

// Provenance records which upstream sources contributed to a run.
type Provenance struct {
	SSMParameters bool `json:"ssmParameters"`
	RSSFeed       bool `json:"rssFeed"`
}

// Metadata stamps a report with its run identity.
type Metadata struct {
	RunID         string     `json:"runId"`
	GeneratedAt   time.Time  `json:"generatedAt"`
	SchemaVersion string     `json:"schemaVersion"`
	Source        Provenance `json:"source"`
}

// Report is the complete output of one pipeline run.
type Report struct {
	Metadata   Metadata            `json:"metadata"`
	Regions    []transform.Region  `json:"regions"`
	Services   []transform.Service `json:"services"`
	Records    []matrix.Record     `json:"records"`
	Statistics stats.Coverage      `json:"statistics"`
	Validation validate.Report     `json:"validation"`
}

// RegionIndex returns the report's regions keyed by code, for writers that
// need name or partition lookups per record.
func (r Report) RegionIndex() map[string]transform.Region {
	idx := make(map[string]transform.Region, len(r.Regions))
	for _, region := range r.Regions {
		idx[region.Code] = region
	}
	return idx
}

// ServiceIndex returns the report's services keyed by code.
func (r Report) ServiceIndex() map[string]transform.Service {
	idx := make(map[string]transform.Service, len(r.Services))
	for _, svc := range r.Services {
		idx[svc.Code] = svc
	}
	return idx
}
