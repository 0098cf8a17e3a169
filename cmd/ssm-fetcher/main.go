// Package main implements the ssm-fetcher command. It discovers AWS region
// and service availability from SSM Parameter Store, processes the result
// into an availability report, and renders it as JSON, CSV, and Excel
// files. It runs as a CLI or, when a function name is present in the
// environment, as an AWS Lambda handler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gurre/s3streamer"

	"github.com/jxman/aws-ssm-data-fetcher/aws"
	"github.com/jxman/aws-ssm-data-fetcher/cache"
	"github.com/jxman/aws-ssm-data-fetcher/config"
	"github.com/jxman/aws-ssm-data-fetcher/discovery"
	"github.com/jxman/aws-ssm-data-fetcher/matrix"
	"github.com/jxman/aws-ssm-data-fetcher/metrics"
	"github.com/jxman/aws-ssm-data-fetcher/output"
	"github.com/jxman/aws-ssm-data-fetcher/pipeline"
	"github.com/jxman/aws-ssm-data-fetcher/preflight"
	"github.com/jxman/aws-ssm-data-fetcher/report"
	"github.com/jxman/aws-ssm-data-fetcher/rss"
	"github.com/jxman/aws-ssm-data-fetcher/stats"
	"github.com/jxman/aws-ssm-data-fetcher/store"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
	"github.com/jxman/aws-ssm-data-fetcher/validate"
)

func main() {
	if isLambda() {
		lambda.Start(handleEvent)
		return
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses flags, validates configuration, and executes the requested
// stage with a signal-aware context.
func run() error {
	fs := flag.NewFlagSet("ssm-fetcher", flag.ExitOnError)

	thresholds := validate.DefaultThresholds()

	stage := fs.String("stage", config.StageAll, "Stage to run (fetch|process|report|all)")
	dataURI := fs.String("data", "", "Artifact store root (s3://bucket/prefix or file:///dir)")
	runID := fs.String("run-id", "", "Run identifier (required for process and report)")
	region := fs.String("region", "", "AWS region (defaults to AWS_REGION env)")
	outputDir := fs.String("output", "./reports", "Directory for report files")
	uploadURI := fs.String("upload", "", "Optional S3 URI to upload report files to")
	formats := fs.String("formats", "json,csv,excel", "Comma-separated output formats")
	feedURL := fs.String("rss-feed", rss.DefaultFeedURL, "RSS feed URL for region launch dates")
	skipRSS := fs.Bool("skip-rss", false, "Skip the launch date feed")
	maxWorkers := fs.Int("workers", 8, "Maximum number of concurrent workers")
	httpTimeout := fs.Duration("http-timeout", 30*time.Second, "Timeout for feed fetches")
	maxMissing := fs.Float64("max-missing", thresholds.MaxMissingFraction, "Per-region missing fraction that triggers a warning")
	minCoverage := fs.Float64("min-coverage", thresholds.MinGlobalCoverage, "Global coverage percent below which the run is flagged")
	cacheDir := fs.String("cache-dir", ".cache", "Directory for the upstream data cache (empty disables caching)")
	cacheTTL := fs.Duration("cache-ttl", 24*time.Hour, "Age beyond which cached upstream data is stale")
	cacheS3 := fs.String("cache-s3", "", "Optional s3://bucket/prefix cache tier shared across hosts")
	doPreflight := fs.Bool("preflight", false, "Verify IAM permissions before fetching")
	dryRun := fs.Bool("dry-run", false, "Validate configuration without executing")
	verbose := fs.Bool("verbose", false, "Enable debug logging")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg := &config.Config{
		Region:             *region,
		Stage:              *stage,
		DataURI:            *dataURI,
		RunID:              *runID,
		OutputDir:          *outputDir,
		OutputS3URI:        *uploadURI,
		Formats:            *formats,
		RSSFeedURL:         *feedURL,
		SkipRSS:            *skipRSS,
		MaxWorkers:         *maxWorkers,
		HTTPTimeout:        *httpTimeout,
		MaxMissingFraction: *maxMissing,
		MinGlobalCoverage:  *minCoverage,
		CacheDir:           *cacheDir,
		CacheTTL:           *cacheTTL,
		CacheS3URI:         *cacheS3,
		Preflight:          *doPreflight,
		DryRun:             *dryRun,
		Verbose:            *verbose,
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.DryRun {
		printPlan(cfg)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, newLogger(cfg.Verbose))
	if err != nil {
		return err
	}

	res, err := a.execute(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Stage %s completed for run %s\n", res.Stage, res.RunID)
	if res.Regions > 0 || res.Services > 0 {
		fmt.Printf("  regions: %d, services: %d\n", res.Regions, res.Services)
	}
	if res.Records > 0 {
		fmt.Printf("  records: %d, findings: %d\n", res.Records, res.Findings)
	}
	for _, out := range res.Outputs {
		fmt.Printf("  wrote %s\n", out)
	}
	fmt.Println()
	fmt.Println(a.metrics.GenerateReport().String())
	return nil
}

func printPlan(cfg *config.Config) {
	fmt.Println("Dry run: configuration is valid")
	fmt.Printf("  stage: %s\n", cfg.Stage)
	if cfg.DataURI != "" {
		fmt.Printf("  data: %s\n", cfg.DataURI)
	} else {
		fmt.Println("  data: in-memory (single process)")
	}
	if cfg.RunID != "" {
		fmt.Printf("  run ID: %s\n", cfg.RunID)
	}
	fmt.Printf("  formats: %v\n", cfg.OutputFormats())
	fmt.Printf("  workers: %d\n", cfg.MaxWorkers)
	if cfg.SkipRSS {
		fmt.Println("  launch dates: skipped")
	} else {
		fmt.Printf("  launch dates: %s\n", cfg.RSSFeedURL)
	}
	if cfg.CacheEnabled() {
		fmt.Printf("  cache: %s (ttl %s)\n", cfg.CacheDir, cfg.CacheTTL)
		if cfg.CacheS3URI != "" {
			fmt.Printf("  cache tier: %s\n", cfg.CacheS3URI)
		}
	} else {
		fmt.Println("  cache: disabled")
	}
	if cfg.OutputS3URI != "" {
		fmt.Printf("  upload: %s\n", cfg.OutputS3URI)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// app holds the shared dependencies of one invocation. AWS clients stay nil
// for purely local runs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	runID    string
	store    store.Store
	cache    *cache.Cache
	ssm      aws.SSMClient
	s3       aws.S3Client
	iam      aws.IAMClient
	sts      aws.STSClient
	streamer s3streamer.Streamer
}

// runResult summarizes an executed stage for the CLI printout and the
// Lambda response.
type runResult struct {
	Stage    string
	RunID    string
	Regions  int
	Services int
	Records  int
	Findings int
	Outputs  []string
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewMetrics(),
		runID:   cfg.RunID,
	}
	if a.runID == "" {
		a.runID = uuid.NewString()
	}

	if cfg.NeedsAWS() {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		rawS3 := s3.NewFromConfig(awsCfg)
		a.ssm = aws.NewSSMClient(ssm.NewFromConfig(awsCfg))
		a.s3 = aws.NewS3Client(rawS3)
		a.iam = aws.NewIAMClient(iam.NewFromConfig(awsCfg))
		a.sts = aws.NewSTSClient(sts.NewFromConfig(awsCfg))
		a.streamer = s3streamer.NewS3Streamer(rawS3)
	}

	if cfg.DataURI == "" {
		a.store = store.NewMemoryStore()
	} else {
		st, err := store.New(cfg.DataURI, a.runID, a.s3, a.streamer)
		if err != nil {
			return nil, err
		}
		a.store = st
	}

	// Only fetch stages read or write the cache.
	fetches := cfg.Stage == config.StageFetch || cfg.Stage == config.StageAll
	if fetches && cfg.CacheEnabled() {
		fileTier, err := cache.NewFileTier(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("cache directory: %w", err)
		}
		tiers := []cache.Tier{cache.NewMemoryTier(), fileTier}
		if cfg.CacheS3URI != "" {
			s3Tier, err := cache.NewS3Tier(a.s3, cfg.CacheS3URI)
			if err != nil {
				return nil, fmt.Errorf("cache S3 tier: %w", err)
			}
			tiers = append(tiers, s3Tier)
		}
		a.cache = cache.New(cfg.CacheTTL, logger, tiers...)
	}
	return a, nil
}

// execute dispatches the configured stage.
func (a *app) execute(ctx context.Context) (*runResult, error) {
	res := &runResult{Stage: a.cfg.Stage, RunID: a.runID}

	if a.cfg.Preflight {
		checker := preflight.NewChecker(a.iam, a.sts, a.logger)
		if err := checker.Check(ctx, nil); err != nil {
			return nil, fmt.Errorf("preflight failed: %w", err)
		}
	}

	switch a.cfg.Stage {
	case config.StageFetch:
		raw, err := a.runFetch(ctx)
		if err != nil {
			return nil, err
		}
		res.Regions = len(raw.Regions)
		res.Services = len(raw.Services)

	case config.StageProcess:
		rep, err := a.runProcess(ctx)
		if err != nil {
			return nil, err
		}
		fillFromReport(res, rep)

	case config.StageReport:
		outputs, rep, err := a.runReport(ctx)
		if err != nil {
			return nil, err
		}
		fillFromReport(res, rep)
		res.Outputs = outputs

	case config.StageAll:
		if _, err := a.runFetch(ctx); err != nil {
			return nil, err
		}
		if _, err := a.runProcess(ctx); err != nil {
			return nil, err
		}
		outputs, rep, err := a.runReport(ctx)
		if err != nil {
			return nil, err
		}
		fillFromReport(res, rep)
		res.Outputs = outputs
	}

	return res, nil
}

func fillFromReport(res *runResult, rep report.Report) {
	res.Regions = len(rep.Regions)
	res.Services = len(rep.Services)
	res.Records = len(rep.Records)
	res.Findings = len(rep.Validation.Findings)
}

// upstreamCacheKey names the cached discovery output. Launch dates are
// not cached; the feed is a single cheap request.
const upstreamCacheKey = "ssm-dataset"

// runFetch discovers regions and services, merges launch dates from the
// feed, and persists the raw dataset. A fresh cache entry replaces the
// SSM tree walk entirely.
func (a *app) runFetch(ctx context.Context) (transform.RawDataset, error) {
	raw, ok := a.cachedDataset(ctx)
	if !ok {
		disco := discovery.NewClient(a.ssm, a.cfg.MaxWorkers, a.logger, a.metrics)
		var err error
		raw, err = disco.Discover(ctx)
		if err != nil {
			return transform.RawDataset{}, fmt.Errorf("discovery failed: %w", err)
		}
		a.cacheDataset(ctx, raw)
	}

	if !a.cfg.SkipRSS {
		feed := rss.NewClient(a.cfg.RSSFeedURL, a.cfg.HTTPTimeout, a.logger)
		dates, err := feed.FetchLaunchDates(ctx)
		if err != nil {
			// Launch dates only enrich quality scores; their absence
			// degrades the report instead of failing the run.
			a.logger.Warn("launch date feed unavailable", "error", err)
		} else {
			raw.LaunchDates = dates
		}
	}

	if err := a.store.SaveRaw(ctx, raw); err != nil {
		return transform.RawDataset{}, fmt.Errorf("save raw dataset: %w", err)
	}
	a.logger.Info("raw dataset saved",
		"runId", a.runID,
		"regions", len(raw.Regions),
		"services", len(raw.Services))
	return raw, nil
}

// cachedDataset returns a fresh cached discovery result, if any. Broken
// or undecodable entries degrade to a miss.
func (a *app) cachedDataset(ctx context.Context) (transform.RawDataset, bool) {
	if a.cache == nil {
		return transform.RawDataset{}, false
	}
	data, ok := a.cache.Get(ctx, upstreamCacheKey)
	if !ok {
		return transform.RawDataset{}, false
	}
	var raw transform.RawDataset
	if err := json.Unmarshal(data, &raw); err != nil {
		a.logger.Warn("discarding undecodable cache entry", "key", upstreamCacheKey, "error", err)
		return transform.RawDataset{}, false
	}
	a.logger.Info("using cached discovery data",
		"regions", len(raw.Regions),
		"services", len(raw.Services))
	return raw, true
}

// cacheDataset stores the discovery result. Cache failures are logged and
// never fail the fetch.
func (a *app) cacheDataset(ctx context.Context, raw transform.RawDataset) {
	if a.cache == nil {
		return
	}
	data, err := json.Marshal(raw)
	if err != nil {
		a.logger.Warn("failed to encode dataset for cache", "error", err)
		return
	}
	if err := a.cache.Set(ctx, upstreamCacheKey, data); err != nil {
		a.logger.Warn("failed to cache discovery data", "error", err)
	}
}

// runProcess loads the raw dataset, runs the pipeline, and persists the
// report.
func (a *app) runProcess(ctx context.Context) (report.Report, error) {
	exists, err := a.store.Exists(ctx)
	if err != nil {
		return report.Report{}, err
	}
	if !exists {
		return report.Report{}, fmt.Errorf("no raw dataset for run %s: %w", a.runID, store.ErrNotFound)
	}
	raw, err := a.store.LoadRaw(ctx)
	if err != nil {
		return report.Report{}, err
	}

	p := pipeline.NewPipeline(
		transform.NewTransformer(),
		matrix.NewBuilder(a.cfg.MaxWorkers),
		stats.NewAnalyzer(),
		validate.NewValidator(validate.Thresholds{
			MaxMissingFraction: a.cfg.MaxMissingFraction,
			MinGlobalCoverage:  a.cfg.MinGlobalCoverage,
		}),
		a.logger,
		a.metrics,
	)
	rep, err := p.Run(ctx, a.runID, raw)
	if err != nil {
		return report.Report{}, err
	}

	if err := a.store.SaveReport(ctx, rep); err != nil {
		return report.Report{}, fmt.Errorf("save report: %w", err)
	}
	return rep, nil
}

// runReport loads the report and renders it with every configured writer,
// uploading the produced files when an upload URI is set.
func (a *app) runReport(ctx context.Context) ([]string, report.Report, error) {
	rep, err := a.store.LoadReport(ctx)
	if err != nil {
		return nil, report.Report{}, err
	}

	writers, err := output.ForFormats(a.cfg.OutputFormats())
	if err != nil {
		return nil, report.Report{}, err
	}

	var outputs []string
	for _, w := range writers {
		paths, err := w.Write(rep, a.cfg.OutputDir)
		if err != nil {
			return nil, report.Report{}, fmt.Errorf("%s writer: %w", w.Format(), err)
		}
		a.logger.Info("report files written", "format", w.Format(), "files", len(paths))
		outputs = append(outputs, paths...)
	}

	if a.cfg.OutputS3URI != "" {
		uploader := output.NewUploader(a.s3, a.logger)
		uris, err := uploader.Upload(ctx, outputs, a.cfg.OutputS3URI)
		if err != nil {
			return nil, report.Report{}, fmt.Errorf("upload report files: %w", err)
		}
		outputs = append(outputs, uris...)
	}
	return outputs, rep, nil
}
