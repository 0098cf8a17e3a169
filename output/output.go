// Package output renders a finished report into its delivery formats: one
// JSON document, a set of CSV files, and a multi-sheet Excel workbook, plus
// an uploader that pushes the produced files to S3. Writers only format;
// every number they emit was computed by the pipeline.
package output

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/report"
	"github.com/jxman/aws-ssm-data-fetcher/stats"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

// Writer renders a report into one or more files under a directory and
// returns the paths it wrote.
type Writer interface {
	Format() string
	Write(rep report.Report, dir string) ([]string, error)
}

// ForFormats returns one writer per requested format name.
func ForFormats(formats []string) ([]Writer, error) {
	writers := make([]Writer, 0, len(formats))
	for _, format := range formats {
		switch format {
		case "json":
			writers = append(writers, NewJSONWriter())
		case "csv":
			writers = append(writers, NewCSVWriter())
		case "excel":
			writers = append(writers, NewExcelWriter())
		default:
			return nil, fmt.Errorf("unknown output format: %s", format)
		}
	}
	return writers, nil
}

// Availability marks used in the service matrix grid.
const (
	markAvailable   = "✓"
	markUnavailable = "✗"
	markMissing     = "–"
)

// availabilityMark renders one record as a matrix cell.
func availabilityMark(rec matrix.Record) string {
	switch {
	case rec.Confidence == matrix.ConfidenceMissing:
		return markMissing
	case rec.Available:
		return markAvailable
	default:
		return markUnavailable
	}
}

// formatPercent renders a coverage percentage cell. An undefined percentage
// stays distinguishable from 0.0.
func formatPercent(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*p, 'f', 1, 64)
}

func formatLaunchDate(date string) string {
	if date == "" {
		return "n/a"
	}
	return date
}

// dataSources renders the provenance block as a readable list.
func dataSources(p report.Provenance) string {
	var src []string
	if p.SSMParameters {
		src = append(src, "AWS SSM Parameter Store")
	}
	if p.RSSFeed {
		src = append(src, "AWS News RSS feed")
	}
	if len(src) == 0 {
		return "none"
	}
	return strings.Join(src, ", ")
}

// The row builders below produce header-plus-data string grids shared by
// the CSV and Excel writers, so both formats always agree cell for cell.

func regionalServiceRows(rep report.Report) [][]string {
	regions := rep.RegionIndex()
	services := rep.ServiceIndex()
	rows := make([][]string, 0, len(rep.Records)+1)
	rows = append(rows, []string{"Region Code", "Region Name", "Service Code", "Service Name", "Available", "Confidence"})
	for _, rec := range rep.Records {
		rows = append(rows, []string{
			rec.Region,
			regions[rec.Region].Name,
			rec.Service,
			services[rec.Service].Name,
			strconv.FormatBool(rec.Available),
			string(rec.Confidence),
		})
	}
	return rows
}

func serviceMatrixRows(rep report.Report) [][]string {
	byKey := make(map[string]matrix.Record, len(rep.Records))
	for _, rec := range rep.Records {
		byKey[rec.Region+"/"+rec.Service] = rec
	}

	header := make([]string, 0, len(rep.Regions)+1)
	header = append(header, "Service")
	for _, region := range rep.Regions {
		header = append(header, region.Code)
	}

	rows := make([][]string, 0, len(rep.Services)+1)
	rows = append(rows, header)
	for _, svc := range rep.Services {
		row := make([]string, 0, len(header))
		row = append(row, svc.Code)
		for _, region := range rep.Regions {
			rec, ok := byKey[region.Code+"/"+svc.Code]
			if !ok {
				row = append(row, markMissing)
				continue
			}
			row = append(row, availabilityMark(rec))
		}
		rows = append(rows, row)
	}
	return rows
}

func regionSummaryRows(rep report.Report) [][]string {
	rows := make([][]string, 0, len(rep.Regions)+1)
	rows = append(rows, []string{"Region Code", "Region Name", "Partition", "Launch Date", "Available Services", "Missing", "Coverage %", "Quality Score"})
	for _, region := range rep.Regions {
		cov := rep.Statistics.Regions[region.Code]
		rows = append(rows, []string{
			region.Code,
			region.Name,
			string(region.Partition),
			formatLaunchDate(region.LaunchDate),
			strconv.Itoa(cov.ConfirmedAvailable + cov.InferredAvailable),
			strconv.Itoa(cov.Missing),
			formatPercent(cov.Percent),
			strconv.FormatFloat(cov.QualityScore, 'f', 2, 64),
		})
	}
	return rows
}

func serviceSummaryRows(rep report.Report) [][]string {
	type entry struct {
		svc transform.Service
		cov stats.ServiceCoverage
	}
	entries := make([]entry, 0, len(rep.Services))
	for _, svc := range rep.Services {
		entries = append(entries, entry{svc: svc, cov: rep.Statistics.Services[svc.Code]})
	}
	// Highest coverage first; undefined coverage sorts last; code breaks ties.
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].cov.Percent, entries[j].cov.Percent
		switch {
		case pi == nil && pj == nil:
			return entries[i].svc.Code < entries[j].svc.Code
		case pi == nil:
			return false
		case pj == nil:
			return true
		case *pi != *pj:
			return *pi > *pj
		}
		return entries[i].svc.Code < entries[j].svc.Code
	})

	rows := make([][]string, 0, len(entries)+1)
	rows = append(rows, []string{"Service Code", "Service Name", "Regions Available", "Coverage %"})
	for _, e := range entries {
		rows = append(rows, []string{
			e.svc.Code,
			e.svc.Name,
			strconv.Itoa(e.cov.ConfirmedAvailable + e.cov.InferredAvailable),
			formatPercent(e.cov.Percent),
		})
	}
	return rows
}

func statisticsRows(rep report.Report) [][]string {
	st := rep.Statistics
	return [][]string{
		{"Metric", "Value"},
		{"Run ID", rep.Metadata.RunID},
		{"Generated At", rep.Metadata.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Schema Version", rep.Metadata.SchemaVersion},
		{"Data Sources", dataSources(rep.Metadata.Source)},
		{"Regions", strconv.Itoa(len(rep.Regions))},
		{"Services", strconv.Itoa(len(rep.Services))},
		{"Total Records", strconv.Itoa(st.TotalRecords)},
		{"Confirmed Available", strconv.Itoa(st.ConfirmedAvailable)},
		{"Inferred Available", strconv.Itoa(st.InferredAvailable)},
		{"Confirmed Unavailable", strconv.Itoa(st.ConfirmedUnavailable)},
		{"Missing", strconv.Itoa(st.Missing)},
		{"Global Coverage %", formatPercent(st.GlobalPercent)},
		{"Validation Findings", strconv.Itoa(len(rep.Validation.Findings))},
	}
}

func validationRows(rep report.Report) [][]string {
	rows := make([][]string, 0, len(rep.Validation.Findings)+1)
	rows = append(rows, []string{"Severity", "Entity", "Detail"})
	for _, f := range rep.Validation.Findings {
		rows = append(rows, []string{string(f.Severity), f.Entity, f.Detail})
	}
	return rows
}
