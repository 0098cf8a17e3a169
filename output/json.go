package output

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/jxman/aws-ssm-data-fetcher/report"
)

const jsonFile = "aws_regions_services.json"

// JSONWriter serializes the whole report verbatim, records included. It is
// the machine-readable format; the CSV and Excel writers derive views.
type JSONWriter struct{}

// NewJSONWriter creates a new JSONWriter instance
func NewJSONWriter() *JSONWriter {
	return &JSONWriter{}
}

func (w *JSONWriter) Format() string { return "json" }

// Write renders the report as a single indented JSON document.
func (w *JSONWriter) Write(rep report.Report, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	path := filepath.Join(dir, jsonFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return []string{path}, nil
}

var _ Writer = (*JSONWriter)(nil)
