package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jxman/aws-ssm-data-fetcher/config"
	"github.com/jxman/aws-ssm-data-fetcher/rss"
	"github.com/jxman/aws-ssm-data-fetcher/validate"
)

// Event is the Lambda invocation payload. One stage runs per invocation so
// a Step Functions chain can thread the run ID between functions.
type Event struct {
	Stage     string `json:"stage"`
	RunID     string `json:"run_id"`
	DataURI   string `json:"data_uri"`
	OutputURI string `json:"output_uri"`
	Formats   string `json:"formats"`
}

// Response summarizes what an invocation did.
type Response struct {
	Stage    string   `json:"stage"`
	RunID    string   `json:"run_id"`
	Regions  int      `json:"regions"`
	Services int      `json:"services"`
	Records  int      `json:"records"`
	Findings int      `json:"findings"`
	Outputs  []string `json:"outputs,omitempty"`
}

func isLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func handleEvent(ctx context.Context, event Event) (Response, error) {
	cfg := lambdaConfig(event)
	if err := cfg.Validate(); err != nil {
		return Response{}, fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := newApp(ctx, cfg, newLogger(os.Getenv("VERBOSE") == "true"))
	if err != nil {
		return Response{}, err
	}

	res, err := a.execute(ctx)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Stage:    res.Stage,
		RunID:    res.RunID,
		Regions:  res.Regions,
		Services: res.Services,
		Records:  res.Records,
		Findings: res.Findings,
		Outputs:  res.Outputs,
	}, nil
}

// lambdaConfig merges the event with environment defaults. /tmp is the only
// writable path inside the sandbox, so report files and the cache land
// there; CACHE_S3_URI adds a tier that survives cold starts.
func lambdaConfig(event Event) *config.Config {
	stage := event.Stage
	if stage == "" {
		stage = config.StageAll
	}
	dataURI := event.DataURI
	if dataURI == "" {
		dataURI = os.Getenv("DATA_URI")
	}
	outputURI := event.OutputURI
	if outputURI == "" {
		outputURI = os.Getenv("OUTPUT_S3_URI")
	}
	formats := event.Formats
	if formats == "" {
		formats = os.Getenv("OUTPUT_FORMATS")
	}
	if formats == "" {
		formats = "json,csv,excel"
	}
	feedURL := os.Getenv("RSS_FEED_URL")
	if feedURL == "" {
		feedURL = rss.DefaultFeedURL
	}
	workers := 8
	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			workers = n
		}
	}
	cacheDir := "/tmp/cache"
	if os.Getenv("CACHE_DISABLED") == "true" {
		cacheDir = ""
	}
	cacheTTL := 24 * time.Hour
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cacheTTL = d
		}
	}

	thresholds := validate.DefaultThresholds()
	return &config.Config{
		Stage:              stage,
		DataURI:            dataURI,
		RunID:              event.RunID,
		OutputDir:          "/tmp/reports",
		OutputS3URI:        outputURI,
		Formats:            formats,
		RSSFeedURL:         feedURL,
		SkipRSS:            os.Getenv("SKIP_RSS") == "true",
		MaxWorkers:         workers,
		HTTPTimeout:        30 * time.Second,
		MaxMissingFraction: thresholds.MaxMissingFraction,
		MinGlobalCoverage:  thresholds.MinGlobalCoverage,
		CacheDir:           cacheDir,
		CacheTTL:           cacheTTL,
		CacheS3URI:         os.Getenv("CACHE_S3_URI"),
	}
}
