package output

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jxman/aws-ssm-data-fetcher/aws"
)

// Uploader copies produced report files to an S3 prefix, typically so a
// Lambda invocation can publish what it wrote under /tmp.
type Uploader struct {
	client aws.S3Client
	logger *slog.Logger
}

// NewUploader creates a new Uploader instance. A nil logger falls back to
// slog.Default().
func NewUploader(client aws.S3Client, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{client: client, logger: logger}
}

// Upload sends each file to {uri}/{basename} and returns the destination
// URIs in input order. Content types follow the file extension.
func (u *Uploader) Upload(ctx context.Context, paths []string, uri string) ([]string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid upload URI: %w", err)
	}
	if parsed.Scheme != "s3" || parsed.Host == "" {
		return nil, fmt.Errorf("upload URI must be s3://bucket[/prefix]: %s", uri)
	}
	bucket := parsed.Host
	prefix := strings.Trim(parsed.Path, "/")

	uris := make([]string, 0, len(paths))
	for _, path := range paths {
		key := filepath.Base(path)
		if prefix != "" {
			key = prefix + "/" + key
		}
		if err := u.putFile(ctx, bucket, key, path); err != nil {
			return nil, err
		}
		dest := "s3://" + bucket + "/" + key
		u.logger.Info("uploaded report file", "path", path, "dest", dest)
		uris = append(uris, dest)
	}
	return uris, nil
}

func (u *Uploader) putFile(ctx context.Context, bucket, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	contentType := contentTypeFor(path)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        file,
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// contentTypeFor maps a produced file to its MIME type.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
