package store

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/report"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

// maxRecordLine bounds a single NDJSON line when scanning the records
// sidecar from disk.
const maxRecordLine = 1024 * 1024

// FileStore implements the Store interface using the local filesystem.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at a file:///path URI. The run
// directory is created eagerly. The path must be absolute and is cleaned to
// prevent path traversal.
func NewFileStore(uri, runID string) (*FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("invalid file URI scheme: %s", u.Scheme)
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	cleanPath := filepath.Clean(u.Path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("store path must be absolute: %s", cleanPath)
	}

	dir := filepath.Join(cleanPath, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// Exists reports whether the run has a raw artifact.
func (f *FileStore) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(filepath.Join(f.dir, rawArtifact))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat raw artifact: %w", err)
	}
	return true, nil
}

// SaveRaw writes the raw dataset artifact.
func (f *FileStore) SaveRaw(ctx context.Context, raw transform.RawDataset) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode raw dataset: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, rawArtifact), data, 0644); err != nil {
		return fmt.Errorf("write raw dataset: %w", err)
	}
	return nil
}

// LoadRaw reads the raw dataset artifact.
func (f *FileStore) LoadRaw(ctx context.Context) (transform.RawDataset, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, rawArtifact))
	if err != nil {
		if os.IsNotExist(err) {
			return transform.RawDataset{}, fmt.Errorf("%w: %s", ErrNotFound, filepath.Join(f.dir, rawArtifact))
		}
		return transform.RawDataset{}, fmt.Errorf("read raw dataset: %w", err)
	}

	var raw transform.RawDataset
	if err := json.Unmarshal(data, &raw); err != nil {
		return transform.RawDataset{}, fmt.Errorf("decode raw dataset: %w", err)
	}
	return raw, nil
}

// SaveReport writes the report artifact and its records sidecar.
func (f *FileStore) SaveReport(ctx context.Context, rep report.Report) error {
	summary := rep
	summary.Records = nil
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, reportArtifact), data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	lines, err := encodeRecords(rep.Records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(f.dir, recordsArtifact), lines, 0644); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}

// LoadReport reads the report artifact and scans its records back in.
func (f *FileStore) LoadReport(ctx context.Context) (report.Report, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, reportArtifact))
	if err != nil {
		if os.IsNotExist(err) {
			return report.Report{}, fmt.Errorf("%w: %s", ErrNotFound, filepath.Join(f.dir, reportArtifact))
		}
		return report.Report{}, fmt.Errorf("read report: %w", err)
	}

	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return report.Report{}, fmt.Errorf("decode report: %w", err)
	}

	file, err := os.Open(filepath.Join(f.dir, recordsArtifact))
	if err != nil {
		if os.IsNotExist(err) {
			return report.Report{}, fmt.Errorf("%w: %s", ErrNotFound, filepath.Join(f.dir, recordsArtifact))
		}
		return report.Report{}, fmt.Errorf("open records: %w", err)
	}
	defer func() { _ = file.Close() }()

	var records []matrix.Record
	var offset int64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		rec, ok, err := decodeRecordLine(line, offset)
		if err != nil {
			return report.Report{}, err
		}
		if ok {
			records = append(records, rec)
		}
		offset += int64(len(line)) + 1
	}
	if err := scanner.Err(); err != nil {
		return report.Report{}, fmt.Errorf("scan records: %w", err)
	}
	rep.Records = records
	return rep, nil
}
