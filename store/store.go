// Package store persists pipeline artifacts between stages: the raw dataset
// a fetch produced and the finished report. Artifacts live under
// {root}/{run-id}/ so staged invocations, including Lambda chains, can hand
// off through S3 or a local directory.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"
	"github.com/gurre/s3streamer"

	"github.com/jxman/aws-ssm-data-fetcher/aws"
	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/report"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

// Artifact names inside a run directory. The report is split: report.json
// carries everything but the records, which go to an NDJSON sidecar so they
// can be streamed without decoding the whole report.
const (
	rawArtifact     = "raw.json"
	reportArtifact  = "report.json"
	recordsArtifact = "records.ndjson"
)

// ErrNotFound indicates the requested artifact does not exist, usually a
// wrong run ID or a stage that never ran.
var ErrNotFound = fmt.Errorf("artifact not found")

// ErrCorruptRecord indicates a records line that failed to decode.
var ErrCorruptRecord = fmt.Errorf("corrupt record line")

// Store saves and loads the artifacts of one run.
type Store interface {
	Exists(ctx context.Context) (bool, error)
	SaveRaw(ctx context.Context, raw transform.RawDataset) error
	LoadRaw(ctx context.Context) (transform.RawDataset, error)
	SaveReport(ctx context.Context, rep report.Report) error
	LoadReport(ctx context.Context) (report.Report, error)
}

// New creates a store for the given root URI. s3:// roots need both AWS
// clients; file:// roots need neither.
func New(uri, runID string, client aws.S3Client, streamer s3streamer.Streamer) (Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid store URI: %w", err)
	}
	switch u.Scheme {
	case "s3":
		if client == nil || streamer == nil {
			return nil, fmt.Errorf("s3 store requires an S3 client and streamer")
		}
		return NewS3Store(client, streamer, uri, runID)
	case "file":
		return NewFileStore(uri, runID)
	default:
		return nil, fmt.Errorf("unsupported store scheme: %s", u.Scheme)
	}
}

// S3Store implements the Store interface using AWS S3. Reports are written
// with PutObject; the records sidecar is read back through s3streamer so
// large matrices never sit in memory twice.
type S3Store struct {
	client   aws.S3Client
	streamer s3streamer.Streamer
	bucket   string
	prefix   string
	runID    string
}

// NewS3Store creates a store rooted at an s3://bucket/prefix URI.
func NewS3Store(client aws.S3Client, streamer s3streamer.Streamer, uri, runID string) (*S3Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid S3 URI scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("S3 URI must name a bucket")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	return &S3Store{
		client:   client,
		streamer: streamer,
		bucket:   u.Host,
		prefix:   strings.Trim(u.Path, "/"),
		runID:    runID,
	}, nil
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return s.runID + "/" + name
	}
	return s.prefix + "/" + s.runID + "/" + name
}

// Exists reports whether the run has a raw artifact.
func (s *S3Store) Exists(ctx context.Context) (bool, error) {
	key := s.key(rawArtifact)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isMissingObject(err) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", key, err)
	}
	return true, nil
}

// SaveRaw writes the raw dataset artifact.
func (s *S3Store) SaveRaw(ctx context.Context, raw transform.RawDataset) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode raw dataset: %w", err)
	}
	return s.put(ctx, s.key(rawArtifact), data)
}

// LoadRaw reads the raw dataset artifact.
func (s *S3Store) LoadRaw(ctx context.Context) (transform.RawDataset, error) {
	key := s.key(rawArtifact)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isMissingObject(err) {
			return transform.RawDataset{}, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, key)
		}
		return transform.RawDataset{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var raw transform.RawDataset
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return transform.RawDataset{}, fmt.Errorf("decode raw dataset: %w", err)
	}
	return raw, nil
}

// SaveReport writes the report artifact and its records sidecar.
func (s *S3Store) SaveReport(ctx context.Context, rep report.Report) error {
	summary := rep
	summary.Records = nil
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := s.put(ctx, s.key(reportArtifact), data); err != nil {
		return err
	}

	lines, err := encodeRecords(rep.Records)
	if err != nil {
		return err
	}
	return s.put(ctx, s.key(recordsArtifact), lines)
}

// LoadReport reads the report artifact and streams its records back in.
func (s *S3Store) LoadReport(ctx context.Context) (report.Report, error) {
	key := s.key(reportArtifact)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isMissingObject(err) {
			return report.Report{}, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, key)
		}
		return report.Report{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var rep report.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return report.Report{}, fmt.Errorf("decode report: %w", err)
	}

	var records []matrix.Record
	err = s.streamer.Stream(ctx, s.bucket, s.key(recordsArtifact), 0, func(line []byte, offset int64) error {
		rec, ok, err := decodeRecordLine(line, offset)
		if err != nil {
			return err
		}
		if ok {
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		if isMissingObject(err) {
			return report.Report{}, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.key(recordsArtifact))
		}
		return report.Report{}, fmt.Errorf("stream records: %w", err)
	}
	rep.Records = records
	return rep, nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// isMissingObject matches the error types S3 and S3-compatible stores
// return for absent objects.
func isMissingObject(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

// encodeRecords renders records as NDJSON, one record per line.
func encodeRecords(records []matrix.Record) ([]byte, error) {
	var buf bytes.Buffer
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// decodeRecordLine decodes one NDJSON line. Blank lines are skipped, not
// errors; anything else that fails to decode wraps ErrCorruptRecord with the
// byte offset so the bad line can be found.
func decodeRecordLine(line []byte, offset int64) (matrix.Record, bool, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return matrix.Record{}, false, nil
	}
	var rec matrix.Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return matrix.Record{}, false, fmt.Errorf("%w: offset %d: %v", ErrCorruptRecord, offset, err)
	}
	return rec, true, nil
}
