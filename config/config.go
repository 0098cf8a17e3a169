// Package config implements configuration management for the fetcher. It
// handles parsing and validation of all stage, storage, and output
// parameters shared by the CLI and the Lambda entrypoint.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Stage names accepted by the -stage flag and the Lambda event.
const (
	StageFetch   = "fetch"
	StageProcess = "process"
	StageReport  = "report"
	StageAll     = "all"
)

// Output format names accepted by the -formats flag.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatExcel = "excel"
)

// Config holds all configuration for one invocation. Zero values are not
// usable; the entrypoints fill defaults before calling Validate.
type Config struct {
	Region             string        // AWS region for SDK clients (empty defers to the environment)
	Stage              string        // Stage to run: fetch, process, report, or all
	DataURI            string        // Artifact store root (s3://bucket/prefix or file:///path)
	RunID              string        // Run identifier; generated for fetch/all when empty
	OutputDir          string        // Local directory for report files
	OutputS3URI        string        // Optional S3 URI to upload report files to
	Formats            string        // Comma-separated output formats
	RSSFeedURL         string        // Feed URL for region launch dates
	SkipRSS            bool          // If true, skip the launch date feed entirely
	MaxWorkers         int           // Maximum number of concurrent workers
	HTTPTimeout        time.Duration // Timeout for feed fetches
	MaxMissingFraction float64       // Per-region missing fraction that triggers a warning
	MinGlobalCoverage  float64       // Global coverage percent below which the run is flagged
	CacheDir           string        // Local cache directory for upstream data (empty disables caching)
	CacheTTL           time.Duration // Age beyond which cached upstream data is stale
	CacheS3URI         string        // Optional S3 URI for a cache tier shared across hosts
	Preflight          bool          // If true, verify IAM permissions before fetching
	DryRun             bool          // If true, print the plan without executing
	Verbose            bool          // Enable debug logging

	// Internal fields
	formats []string // Formats parsed from the Formats string
}

// OutputFormats returns the formats parsed from the Formats string.
func (c *Config) OutputFormats() []string {
	return c.formats
}

// NeedsAWS reports whether this invocation will call AWS at all, so local
// file-store runs can skip credential resolution.
func (c *Config) NeedsAWS() bool {
	return c.Stage == StageFetch || c.Stage == StageAll ||
		c.Preflight ||
		strings.HasPrefix(c.DataURI, "s3://") ||
		c.OutputS3URI != "" ||
		c.CacheS3URI != ""
}

// CacheEnabled reports whether upstream responses should be cached.
func (c *Config) CacheEnabled() bool {
	return c.CacheDir != ""
}

// Validate ensures all required fields are present and have valid values.
func (c *Config) Validate() error {
	switch c.Stage {
	case StageFetch, StageProcess, StageReport, StageAll:
	default:
		return fmt.Errorf("stage must be one of fetch, process, report, all")
	}

	// The all stage can run entirely in memory; every other stage hands
	// artifacts to or takes them from the store.
	if c.DataURI == "" && c.Stage != StageAll {
		return fmt.Errorf("data URI is required for stage %s", c.Stage)
	}
	if c.DataURI != "" {
		u, err := url.Parse(c.DataURI)
		if err != nil {
			return fmt.Errorf("invalid data URI: %w", err)
		}
		switch u.Scheme {
		case "s3":
			if u.Host == "" {
				return fmt.Errorf("data URI must name a bucket")
			}
		case "file":
			if u.Path == "" {
				return fmt.Errorf("data URI must name a directory")
			}
		default:
			return fmt.Errorf("data URI must use the s3 or file scheme")
		}
	}

	if c.RunID == "" && (c.Stage == StageProcess || c.Stage == StageReport) {
		return fmt.Errorf("run ID is required for stage %s", c.Stage)
	}

	if c.OutputDir == "" && (c.Stage == StageReport || c.Stage == StageAll) {
		return fmt.Errorf("output directory is required for stage %s", c.Stage)
	}

	c.formats = nil
	for _, f := range strings.Split(c.Formats, ",") {
		f = strings.TrimSpace(strings.ToLower(f))
		if f == "" {
			continue
		}
		switch f {
		case FormatJSON, FormatCSV, FormatExcel:
			c.formats = append(c.formats, f)
		default:
			return fmt.Errorf("unknown output format %q", f)
		}
	}
	if len(c.formats) == 0 {
		return fmt.Errorf("at least one output format is required")
	}

	if !c.SkipRSS {
		u, err := url.Parse(c.RSSFeedURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("RSS feed URL must be an http(s) URL")
		}
	}

	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1")
	}

	if c.HTTPTimeout < time.Second {
		return fmt.Errorf("HTTP timeout must be at least 1 second")
	}

	if c.MaxMissingFraction < 0 || c.MaxMissingFraction > 1 {
		return fmt.Errorf("max missing fraction must be between 0 and 1")
	}

	if c.MinGlobalCoverage < 0 || c.MinGlobalCoverage > 100 {
		return fmt.Errorf("min global coverage must be between 0 and 100")
	}

	if c.OutputS3URI != "" && !strings.HasPrefix(c.OutputS3URI, "s3://") {
		return fmt.Errorf("output S3 URI must start with s3://")
	}

	if c.CacheEnabled() && c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive when caching is enabled")
	}

	if c.CacheS3URI != "" {
		if !c.CacheEnabled() {
			return fmt.Errorf("S3 cache tier requires a local cache directory")
		}
		if !strings.HasPrefix(c.CacheS3URI, "s3://") {
			return fmt.Errorf("cache S3 URI must start with s3://")
		}
	}

	return nil
}
