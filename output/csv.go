package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jxman/aws-ssm-data-fetcher/report"
)

const (
	csvRegionalServices = "regional_services.csv"
	csvServiceMatrix    = "service_matrix.csv"
	csvRegionSummary    = "region_summary.csv"
	csvServiceSummary   = "service_summary.csv"
	csvStatistics       = "statistics.csv"
)

// CSVWriter renders the report as five CSV files: the flat record list, the
// service-by-region matrix, per-region and per-service summaries, and the
// run statistics.
type CSVWriter struct{}

// NewCSVWriter creates a new CSVWriter instance
func NewCSVWriter() *CSVWriter {
	return &CSVWriter{}
}

func (w *CSVWriter) Format() string { return "csv" }

// Write renders all CSV files into dir.
func (w *CSVWriter) Write(rep report.Report, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	files := []struct {
		name string
		rows [][]string
	}{
		{csvRegionalServices, regionalServiceRows(rep)},
		{csvServiceMatrix, serviceMatrixRows(rep)},
		{csvRegionSummary, regionSummaryRows(rep)},
		{csvServiceSummary, serviceSummaryRows(rep)},
		{csvStatistics, statisticsRows(rep)},
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		path := filepath.Join(dir, file.name)
		if err := writeCSV(path, file.rows); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

var _ Writer = (*CSVWriter)(nil)
