package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is an in-memory mock of the fetcher's S3 interface. Objects live
// in Files keyed by "bucket/key"; ContentTypes records the Content-Type each
// PutObject supplied so upload tests can assert on it.
type S3Client struct {
	mu           sync.Mutex
	Files        map[string][]byte
	ContentTypes map[string]string
}

// NewS3Client creates an empty mock S3 client.
func NewS3Client() *S3Client {
	return &S3Client{
		Files:        make(map[string][]byte),
		ContentTypes: make(map[string]string),
	}
}

func objectKey(bucket, key string) string {
	return fmt.Sprintf("%s/%s", bucket, key)
}

// GetObject returns a stored object, or the NoSuchKey error real S3 returns
// for absent keys.
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucketKey := objectKey(*params.Bucket, *params.Key)
	content, ok := m.Files[bucketKey]
	if !ok {
		return nil, &types.NoSuchKey{
			Message: aws.String(fmt.Sprintf("The specified key does not exist: %s", *params.Key)),
		}
	}

	contentLength := int64(len(content))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ContentLength: &contentLength,
	}, nil
}

// PutObject stores the object body.
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucketKey := objectKey(*params.Bucket, *params.Key)
	m.Files[bucketKey] = data
	if params.ContentType != nil {
		m.ContentTypes[bucketKey] = *params.ContentType
	}

	etag := fmt.Sprintf("\"%x\"", len(data))
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

// HeadObject reports object metadata. HEAD requests carry no body, so real
// S3 signals absence with NotFound rather than NoSuchKey.
func (m *S3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucketKey := objectKey(*params.Bucket, *params.Key)
	content, ok := m.Files[bucketKey]
	if !ok {
		return nil, &types.NotFound{
			Message: aws.String(fmt.Sprintf("Not Found: %s", *params.Key)),
		}
	}

	contentLength := int64(len(content))
	return &s3.HeadObjectOutput{ContentLength: &contentLength}, nil
}

// Keys returns every stored bucket/key pair, sorted, for test assertions.
func (m *S3Client) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.Files))
	for k := range m.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
