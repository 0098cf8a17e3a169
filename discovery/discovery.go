// Package discovery enumerates AWS regions and services from the SSM public
// parameter tree and assembles the raw dataset for the pipeline. Region and
// service detail lookups run on a worker pool and retry with exponential
// backoff; an entity whose lookups still fail is marked rather than dropped.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"

	"github.com/jxman/aws-ssm-data-fetcher/aws"
	"github.com/jxman/aws-ssm-data-fetcher/metrics"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

// Paths in the public global-infrastructure parameter tree.
const (
	regionsPath  = "/aws/service/global-infrastructure/regions"
	servicesPath = "/aws/service/global-infrastructure/services"
)

// maxRetries bounds retries for non-throttling errors. Throttling retries
// indefinitely until the context is cancelled.
const maxRetries = 5

const defaultBackoffBase = 100 * time.Millisecond

// Client discovers regions and services through SSM.
type Client struct {
	ssm         aws.SSMClient
	workers     int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	backoffBase time.Duration
}

// NewClient creates a discovery client. A nil logger falls back to
// slog.Default; a nil metrics collector gets a fresh one.
func NewClient(ssmClient aws.SSMClient, workers int, logger *slog.Logger, m *metrics.Metrics) *Client {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Client{
		ssm:         ssmClient,
		workers:     workers,
		logger:      logger,
		metrics:     m,
		backoffBase: defaultBackoffBase,
	}
}

// Discover enumerates all regions and services and resolves their details.
// Enumeration failures are fatal since nothing can anchor the dataset
// without them; per-entity detail failures mark the entity as failed and the
// dataset records the gap. Launch dates are left for the caller to merge.
func (c *Client) Discover(ctx context.Context) (transform.RawDataset, error) {
	regionCodes, err := c.listChildren(ctx, regionsPath)
	if err != nil {
		return transform.RawDataset{}, fmt.Errorf("enumerate regions: %w", err)
	}
	c.metrics.RecordRegionsDiscovered(len(regionCodes))
	c.logger.Info("regions enumerated", "count", len(regionCodes))

	serviceCodes, err := c.listChildren(ctx, servicesPath)
	if err != nil {
		return transform.RawDataset{}, fmt.Errorf("enumerate services: %w", err)
	}
	c.metrics.RecordServicesDiscovered(len(serviceCodes))
	c.logger.Info("services enumerated", "count", len(serviceCodes))

	regions, regionServices := c.fetchRegions(ctx, regionCodes)
	services := c.fetchServices(ctx, serviceCodes)
	if err := ctx.Err(); err != nil {
		return transform.RawDataset{}, err
	}

	return transform.RawDataset{
		Regions:        regions,
		Services:       services,
		RegionServices: regionServices,
	}, nil
}

type regionResult struct {
	code     string
	region   transform.RawRegion
	services []string
}

// fetchRegions resolves every region's service list and metadata on the
// worker pool. Results arrive in whatever order workers finish; maps absorb
// the nondeterminism and the transformer sorts later.
func (c *Client) fetchRegions(ctx context.Context, codes []string) (map[string]transform.RawRegion, map[string][]string) {
	tasks := make(chan string)
	results := make(chan regionResult, len(codes))
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := range tasks {
				results <- c.fetchRegion(ctx, code)
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, code := range codes {
			select {
			case tasks <- code:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	regions := make(map[string]transform.RawRegion, len(codes))
	regionServices := make(map[string][]string, len(codes))
	for res := range results {
		regions[res.code] = res.region
		if res.region.FetchStatus == transform.FetchOK {
			regionServices[res.code] = res.services
		}
	}
	return regions, regionServices
}

// fetchRegion resolves one region. The service list decides the region's
// fetch status since no availability claim can be made without it; metadata
// lookups degrade to fallbacks instead.
func (c *Client) fetchRegion(ctx context.Context, code string) regionResult {
	region := transform.RawRegion{FetchStatus: transform.FetchOK}

	services, err := c.listChildren(ctx, regionsPath+"/"+code+"/services")
	if err != nil {
		c.metrics.RecordFetchFailure()
		c.logger.Warn("region service list failed", "region", code, "error", err)
		region.FetchStatus = transform.FetchFailed
	}

	if name, err := c.getParameter(ctx, regionsPath+"/"+code+"/longName"); err == nil {
		region.DisplayName = name
	} else {
		c.logger.Warn("region long name lookup failed", "region", code, "error", err)
	}
	if partition, err := c.getParameter(ctx, regionsPath+"/"+code+"/partition"); err == nil {
		region.Partition = partition
	} else {
		c.logger.Warn("region partition lookup failed", "region", code, "error", err)
	}

	return regionResult{code: code, region: region, services: services}
}

type serviceResult struct {
	code    string
	service transform.RawService
}

func (c *Client) fetchServices(ctx context.Context, codes []string) map[string]transform.RawService {
	tasks := make(chan string)
	results := make(chan serviceResult, len(codes))
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := range tasks {
				results <- c.fetchService(ctx, code)
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, code := range codes {
			select {
			case tasks <- code:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	services := make(map[string]transform.RawService, len(codes))
	for res := range results {
		services[res.code] = res.service
	}
	return services
}

func (c *Client) fetchService(ctx context.Context, code string) serviceResult {
	service := transform.RawService{FetchStatus: transform.FetchOK}

	name, err := c.getParameter(ctx, servicesPath+"/"+code+"/longName")
	if err != nil {
		c.metrics.RecordFetchFailure()
		c.logger.Warn("service long name lookup failed", "service", code, "error", err)
		service.FetchStatus = transform.FetchFailed
	} else {
		service.DisplayName = name
	}

	return serviceResult{code: code, service: service}
}

// listChildren pages through GetParametersByPath and returns the sorted last
// path segments of every child parameter.
func (c *Client) listChildren(ctx context.Context, path string) ([]string, error) {
	var names []string
	var nextToken *string
	for {
		out, err := c.getParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:      &path,
			NextToken: nextToken,
		})
		if err != nil {
			return nil, err
		}
		for _, p := range out.Parameters {
			if p.Name == nil {
				continue
			}
			if name := lastSegment(*p.Name); name != "" {
				names = append(names, name)
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		nextToken = out.NextToken
	}
	sort.Strings(names)
	return names, nil
}

// getParametersByPath fetches one page with retry. Throttling errors retry
// indefinitely until context is cancelled; other errors fail after
// maxRetries attempts.
func (c *Client) getParametersByPath(ctx context.Context, input *ssm.GetParametersByPathInput) (*ssm.GetParametersByPathOutput, error) {
	attempt := 0
	for {
		out, err := c.ssm.GetParametersByPath(ctx, input)
		if err == nil {
			c.metrics.RecordParameterFetch()
			return out, nil
		}
		if !c.retryWait(ctx, err, &attempt) {
			return nil, fmt.Errorf("get parameters by path %s: %w", *input.Path, err)
		}
	}
}

// getParameter fetches a single parameter value with retry. A missing
// parameter fails immediately since retrying cannot create it.
func (c *Client) getParameter(ctx context.Context, name string) (string, error) {
	attempt := 0
	for {
		out, err := c.ssm.GetParameter(ctx, &ssm.GetParameterInput{Name: &name})
		if err == nil {
			c.metrics.RecordParameterFetch()
			if out.Parameter == nil || out.Parameter.Value == nil {
				return "", fmt.Errorf("parameter %s has no value", name)
			}
			return strings.TrimSpace(*out.Parameter.Value), nil
		}
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("get parameter %s: %w", name, err)
		}
		if !c.retryWait(ctx, err, &attempt) {
			return "", fmt.Errorf("get parameter %s: %w", name, err)
		}
	}
}

// retryWait decides whether the failed call should be retried and sleeps
// the backoff if so. Returns false when the caller should give up, either
// because the retry budget is exhausted or the context was cancelled.
func (c *Client) retryWait(ctx context.Context, err error, attempt *int) bool {
	if !isThrottlingError(err) && *attempt >= maxRetries {
		return false
	}
	if !backoffWait(ctx, c.backoffBase, *attempt) {
		return false
	}
	c.metrics.RecordRetry()
	*attempt++
	return true
}

// isThrottlingError returns true if the error is an SSM rate limiting error.
// These indicate temporary pressure on the shared public parameter tier and
// should trigger backoff and retry rather than failing the entity.
func isThrottlingError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "Throttling", "TooManyRequestsException", "RequestLimitExceeded":
		return true
	}
	return false
}

// backoffWait sleeps for an exponentially increasing duration with jitter.
// Returns false if the context is cancelled during the wait.
func backoffWait(ctx context.Context, base time.Duration, attempt int) bool {
	maxDelay := 30 * time.Second

	// Clamp the shift; throttling retries are unbounded and the doubling
	// would overflow long before the cap kicks in.
	if attempt > 10 {
		attempt = 10
	}
	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Add jitter: random value between 0 and delay
	jitter := time.Duration(rand.Int64N(int64(delay)))
	delay = delay + jitter

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func lastSegment(name string) string {
	idx := strings.LastIndexByte(name, '/')
	return name[idx+1:]
}
