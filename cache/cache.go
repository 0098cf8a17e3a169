// Package cache provides a multi-tier TTL cache for upstream responses, so
// repeated runs inside the TTL window skip the slow SSM tree walk. Lookups
// fall through the tiers in order, fastest first, and a hit in a slow tier
// is promoted back into the tiers that missed. Values are opaque bytes;
// callers pick the encoding.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jxman/aws-ssm-data-fetcher/aws"
)

// ErrMiss signals that a tier holds no entry for the key.
var ErrMiss = errors.New("cache miss")

// Tier is one storage level of the cache. Get returns the entry and the
// time it was stored; absent keys return ErrMiss.
// Example:
//
//	tier, err := cache.NewFileTier(".cache")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	data, storedAt, err := tier.Get(ctx, "dataset")
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, time.Time, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Cache layers tiers under a shared TTL. Entries older than the TTL are
// treated as misses regardless of which tier holds them.
// Example:
//
//	c := cache.New(24*time.Hour, logger, cache.NewMemoryTier(), fileTier)
//	if data, ok := c.Get(ctx, "dataset"); ok {
//	    // decode and reuse
//	}
type Cache struct {
	tiers  []Tier
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// New creates a cache over the given tiers, fastest first. A nil logger
// falls back to slog.Default.
func New(ttl time.Duration, logger *slog.Logger, tiers ...Tier) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		tiers:  tiers,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the freshest cached value for the key, or false when every
// tier misses or holds only expired entries. Tier read failures degrade to
// misses so a broken tier can never fail a run.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	for i, tier := range c.tiers {
		data, storedAt, err := tier.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrMiss) {
				c.logger.Warn("cache tier read failed", "key", key, "error", err)
			}
			continue
		}
		if c.now().Sub(storedAt) > c.ttl {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if err := c.tiers[j].Set(ctx, key, data); err != nil {
				c.logger.Warn("cache promotion failed", "key", key, "error", err)
			}
		}
		return data, true
	}
	return nil, false
}

// Set writes the value to every tier. Failures are collected rather than
// short-circuiting, so an unreachable S3 tier cannot block the local ones.
func (c *Cache) Set(ctx context.Context, key string, data []byte) error {
	var errs []error
	for _, tier := range c.tiers {
		if err := tier.Set(ctx, key, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sanitizeKey maps a cache key onto a safe file or object name.
func sanitizeKey(key string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(key)
}

// FileTier stores one file per key in a directory. The file modification
// time serves as the stored-at timestamp, so entries survive process
// restarts and expire without bookkeeping.
type FileTier struct {
	dir string
}

// NewFileTier creates a tier over the directory, creating it if needed.
func NewFileTier(dir string) (*FileTier, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileTier{dir: dir}, nil
}

func (t *FileTier) path(key string) string {
	return filepath.Join(t.dir, sanitizeKey(key)+".json")
}

// Get reads the entry file and reports its modification time.
func (t *FileTier) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	path := t.path(key)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, ErrMiss
		}
		return nil, time.Time{}, fmt.Errorf("stat cache entry: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read cache entry: %w", err)
	}
	return data, info.ModTime(), nil
}

// Set writes the entry file.
func (t *FileTier) Set(ctx context.Context, key string, data []byte) error {
	if err := os.WriteFile(t.path(key), data, 0644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// S3Tier stores entries under an S3 prefix so Lambda invocations can share
// a cache across cold starts. The object's LastModified is the stored-at
// timestamp.
type S3Tier struct {
	client aws.S3Client
	bucket string
	prefix string
}

// NewS3Tier creates a tier rooted at an s3://bucket/prefix URI.
// Example:
//
//	tier, err := cache.NewS3Tier(client, "s3://my-bucket/cache")
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewS3Tier(client aws.S3Client, uri string) (*S3Tier, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URI: %w", err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid cache URI scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("cache URI must name a bucket")
	}
	return &S3Tier{
		client: client,
		bucket: u.Host,
		prefix: strings.Trim(u.Path, "/"),
	}, nil
}

func (t *S3Tier) key(key string) string {
	name := sanitizeKey(key) + ".json"
	if t.prefix == "" {
		return name
	}
	return t.prefix + "/" + name
}

// Get fetches the entry object. Absent objects are a miss, not an error.
func (t *S3Tier) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	k := t.key(key)
	resp, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &t.bucket,
		Key:    &k,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, time.Time{}, ErrMiss
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, time.Time{}, ErrMiss
		}
		return nil, time.Time{}, fmt.Errorf("get cache entry %s: %w", k, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read cache entry %s: %w", k, err)
	}
	var storedAt time.Time
	if resp.LastModified != nil {
		storedAt = *resp.LastModified
	}
	return data, storedAt, nil
}

// Set uploads the entry object.
func (t *S3Tier) Set(ctx context.Context, key string, data []byte) error {
	k := t.key(key)
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &t.bucket,
		Key:    &k,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put cache entry %s: %w", k, err)
	}
	return nil
}
