package output

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/xuri/excelize/v2"

	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/report"
	"github.com/jxman/aws-ssm-data-fetcher/stats"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
	"github.com/jxman/aws-ssm-data-fetcher/validate"
)

func floatPtr(v float64) *float64 { return &v }

// sampleReport covers every mark the writers can emit: a confirmed
// available record, a confirmed unavailable one, and a region whose whole
// row is missing.
func sampleReport() report.Report {
	return report.Report{
		Metadata: report.Metadata{
			RunID:         "run-1",
			GeneratedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			SchemaVersion: report.SchemaVersion,
			Source:        report.Provenance{SSMParameters: true, RSSFeed: true},
		},
		Regions: []transform.Region{
			{Code: "us-east-1", Name: "US East (N. Virginia)", Partition: transform.PartitionCommercial, LaunchDate: "2006-08-25", FetchOK: true},
			{Code: "us-gov-west-1", Name: "AWS GovCloud (US-West)", Partition: transform.PartitionGovernment, FetchOK: false},
		},
		Services: []transform.Service{
			{Code: "ec2", Name: "Amazon EC2", FetchOK: true},
			{Code: "s3", Name: "Amazon S3", FetchOK: true},
		},
		Records: []matrix.Record{
			{Region: "us-east-1", Service: "ec2", Available: true, Confidence: matrix.ConfidenceConfirmed},
			{Region: "us-east-1", Service: "s3", Available: false, Confidence: matrix.ConfidenceConfirmed},
			{Region: "us-gov-west-1", Service: "ec2", Available: false, Confidence: matrix.ConfidenceMissing},
			{Region: "us-gov-west-1", Service: "s3", Available: false, Confidence: matrix.ConfidenceMissing},
		},
		Statistics: stats.Coverage{
			TotalRecords:         4,
			ConfirmedAvailable:   1,
			ConfirmedUnavailable: 1,
			Missing:              2,
			GlobalPercent:        floatPtr(50.0),
			Regions: map[string]stats.RegionCoverage{
				"us-east-1":     {ConfirmedAvailable: 1, ConfirmedUnavailable: 1, Percent: floatPtr(50.0), QualityScore: 1.0},
				"us-gov-west-1": {Missing: 2},
			},
			Services: map[string]stats.ServiceCoverage{
				"ec2": {ConfirmedAvailable: 1, NonMissing: 1, Percent: floatPtr(100.0)},
				"s3":  {NonMissing: 1, Percent: floatPtr(0.0)},
			},
		},
		Validation: validate.Report{
			Findings: []validate.Finding{
				{Severity: validate.SeverityWarning, Entity: "region:us-gov-west-1", Detail: "100.0% of records missing"},
			},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return rows
}

func TestJSONWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONWriter()

	paths, err := w.Write(sampleReport(), dir)
	if err != nil {
		t.Fatalf("failed to write JSON: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != jsonFile {
		t.Fatalf("unexpected paths: %v", paths)
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if rep.Metadata.RunID != "run-1" {
		t.Errorf("run ID mismatch: got %s", rep.Metadata.RunID)
	}
	if len(rep.Records) != 4 {
		t.Errorf("record count mismatch: got %d, want 4", len(rep.Records))
	}
}

func TestCSVWriter_Files(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter()

	paths, err := w.Write(sampleReport(), dir)
	if err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}
	if len(paths) != 5 {
		t.Fatalf("expected 5 files, got %d: %v", len(paths), paths)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
		}
	}
}

func TestCSVWriter_RegionalServices(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewCSVWriter().Write(sampleReport(), dir); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, csvRegionalServices))
	if len(rows) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d", len(rows))
	}
	if rows[0][0] != "Region Code" || rows[0][5] != "Confidence" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	want := []string{"us-east-1", "US East (N. Virginia)", "ec2", "Amazon EC2", "true", "confirmed"}
	for i, cell := range want {
		if rows[1][i] != cell {
			t.Errorf("row 1 col %d mismatch: got %q, want %q", i, rows[1][i], cell)
		}
	}
	if rows[3][4] != "false" || rows[3][5] != "missing" {
		t.Errorf("unexpected missing row: %v", rows[3])
	}
}

func TestCSVWriter_ServiceMatrix(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewCSVWriter().Write(sampleReport(), dir); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, csvServiceMatrix))
	wantRows := [][]string{
		{"Service", "us-east-1", "us-gov-west-1"},
		{"ec2", "✓", "–"},
		{"s3", "✗", "–"},
	}
	if len(rows) != len(wantRows) {
		t.Fatalf("row count mismatch: got %d, want %d", len(rows), len(wantRows))
	}
	for r, wantRow := range wantRows {
		for c, cell := range wantRow {
			if rows[r][c] != cell {
				t.Errorf("cell [%d][%d] mismatch: got %q, want %q", r, c, rows[r][c], cell)
			}
		}
	}
}

func TestCSVWriter_RegionSummary(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewCSVWriter().Write(sampleReport(), dir); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, csvRegionSummary))
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}

	east := rows[1]
	if east[0] != "us-east-1" || east[2] != "commercial" || east[3] != "2006-08-25" {
		t.Errorf("unexpected us-east-1 row: %v", east)
	}
	if east[4] != "1" || east[6] != "50.0" || east[7] != "1.00" {
		t.Errorf("unexpected us-east-1 coverage cells: %v", east)
	}

	gov := rows[2]
	if gov[3] != "n/a" {
		t.Errorf("expected n/a launch date, got %q", gov[3])
	}
	if gov[5] != "2" || gov[6] != "n/a" {
		t.Errorf("unexpected us-gov-west-1 coverage cells: %v", gov)
	}
}

func TestCSVWriter_ServiceSummaryOrder(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewCSVWriter().Write(sampleReport(), dir); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, csvServiceSummary))
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	// Sorted by coverage, highest first.
	if rows[1][0] != "ec2" || rows[1][3] != "100.0" {
		t.Errorf("unexpected first service row: %v", rows[1])
	}
	// A genuine 0% is a number, not n/a.
	if rows[2][0] != "s3" || rows[2][3] != "0.0" {
		t.Errorf("unexpected second service row: %v", rows[2])
	}
}

func TestCSVWriter_Statistics(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewCSVWriter().Write(sampleReport(), dir); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, csvStatistics))
	metrics := make(map[string]string, len(rows))
	for _, row := range rows[1:] {
		metrics[row[0]] = row[1]
	}

	checks := map[string]string{
		"Run ID":              "run-1",
		"Generated At":        "2025-06-01T12:00:00Z",
		"Total Records":       "4",
		"Missing":             "2",
		"Global Coverage %":   "50.0",
		"Data Sources":        "AWS SSM Parameter Store, AWS News RSS feed",
		"Validation Findings": "1",
	}
	for metric, want := range checks {
		if got := metrics[metric]; got != want {
			t.Errorf("metric %s mismatch: got %q, want %q", metric, got, want)
		}
	}
}

func TestExcelWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewExcelWriter()

	paths, err := w.Write(sampleReport(), dir)
	if err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != excelFile {
		t.Fatalf("unexpected paths: %v", paths)
	}

	f, err := excelize.OpenFile(paths[0])
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	wantSheets := []string{"Regional Services", "Service Matrix", "Region Summary", "Service Summary", "Statistics", "Validation"}
	gotSheets := f.GetSheetList()
	if len(gotSheets) != len(wantSheets) {
		t.Fatalf("sheet list mismatch: got %v", gotSheets)
	}
	for i, name := range wantSheets {
		if gotSheets[i] != name {
			t.Errorf("sheet %d mismatch: got %s, want %s", i, gotSheets[i], name)
		}
	}

	cellChecks := []struct {
		sheet string
		cell  string
		want  string
	}{
		{"Regional Services", "A1", "Region Code"},
		{"Regional Services", "A2", "us-east-1"},
		{"Service Matrix", "B2", "✓"},
		{"Service Matrix", "B3", "✗"},
		{"Service Matrix", "C2", "–"},
		{"Region Summary", "D3", "n/a"},
		{"Statistics", "B2", "run-1"},
		{"Validation", "A2", "warning"},
	}
	for _, check := range cellChecks {
		got, err := f.GetCellValue(check.sheet, check.cell)
		if err != nil {
			t.Fatalf("failed to read %s!%s: %v", check.sheet, check.cell, err)
		}
		if got != check.want {
			t.Errorf("%s!%s mismatch: got %q, want %q", check.sheet, check.cell, got, check.want)
		}
	}

	panes, err := f.GetPanes("Service Matrix")
	if err != nil {
		t.Fatalf("failed to read panes: %v", err)
	}
	if !panes.Freeze || panes.YSplit != 1 {
		t.Errorf("expected frozen header row, got %+v", panes)
	}
}

func TestForFormats(t *testing.T) {
	writers, err := ForFormats([]string{"json", "csv", "excel"})
	if err != nil {
		t.Fatalf("failed to build writers: %v", err)
	}
	if len(writers) != 3 {
		t.Fatalf("expected 3 writers, got %d", len(writers))
	}
	for i, format := range []string{"json", "csv", "excel"} {
		if writers[i].Format() != format {
			t.Errorf("writer %d format mismatch: got %s, want %s", i, writers[i].Format(), format)
		}
	}

	if _, err := ForFormats([]string{"pdf"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

// mockS3Client implements the aws.S3Client interface for upload tests.
type mockS3Client struct {
	puts []*s3.PutObjectInput
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{}, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.puts = append(m.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{}, nil
}

func TestUploader(t *testing.T) {
	dir := t.TempDir()
	names := []string{"report.json", "summary.csv", "workbook.xlsx"}
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
			t.Fatalf("failed to write fixture: %v", err)
		}
		paths = append(paths, path)
	}

	client := &mockS3Client{}
	u := NewUploader(client, nil)

	uris, err := u.Upload(context.Background(), paths, "s3://reports-bucket/weekly")
	if err != nil {
		t.Fatalf("failed to upload: %v", err)
	}
	if len(uris) != 3 {
		t.Fatalf("expected 3 URIs, got %d", len(uris))
	}
	if uris[0] != "s3://reports-bucket/weekly/report.json" {
		t.Errorf("unexpected first URI: %s", uris[0])
	}
	if len(client.puts) != 3 {
		t.Fatalf("expected 3 puts, got %d", len(client.puts))
	}

	wantTypes := []string{"application/json", "text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}
	for i, put := range client.puts {
		if *put.Bucket != "reports-bucket" {
			t.Errorf("put %d bucket mismatch: got %s", i, *put.Bucket)
		}
		if *put.Key != "weekly/"+names[i] {
			t.Errorf("put %d key mismatch: got %s", i, *put.Key)
		}
		if *put.ContentType != wantTypes[i] {
			t.Errorf("put %d content type mismatch: got %s, want %s", i, *put.ContentType, wantTypes[i])
		}
	}
}

func TestUploader_NoPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	client := &mockS3Client{}
	uris, err := NewUploader(client, nil).Upload(context.Background(), []string{path}, "s3://reports-bucket")
	if err != nil {
		t.Fatalf("failed to upload: %v", err)
	}
	if uris[0] != "s3://reports-bucket/report.json" {
		t.Errorf("unexpected URI: %s", uris[0])
	}
	if *client.puts[0].Key != "report.json" {
		t.Errorf("unexpected key: %s", *client.puts[0].Key)
	}
}

func TestUploader_InvalidURI(t *testing.T) {
	u := NewUploader(&mockS3Client{}, nil)
	testCases := []string{
		"http://bucket/prefix",
		"s3://",
		"bucket/prefix",
	}
	for _, uri := range testCases {
		t.Run(uri, func(t *testing.T) {
			if _, err := u.Upload(context.Background(), nil, uri); err == nil {
				t.Errorf("expected error for URI %s", uri)
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"a/report.JSON": "application/json",
		"b/rows.csv":    "text/csv",
		"c/book.xlsx":   "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"d/notes.txt":   "application/octet-stream",
	}
	for path, want := range cases {
		if got := contentTypeFor(path); got != want {
			t.Errorf("contentTypeFor(%s) = %s, want %s", path, got, want)
		}
	}
}
