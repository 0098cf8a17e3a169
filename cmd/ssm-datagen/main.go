// Package main provides a synthetic dataset generator for the fetcher
// pipeline. It emits a raw dataset shaped like real discovery output, with
// configurable sizes and failure rates, so the process and report stages
// can be exercised without AWS access.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gurre/s3streamer"

	"github.com/jxman/aws-ssm-data-fetcher/aws"
	"github.com/jxman/aws-ssm-data-fetcher/store"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

// Config holds the command-line configuration for the data generator.
type Config struct {
	DataURI      string
	RunID        string
	Regions      int
	GovRegions   int
	Services     int
	FailRegions  float64
	FailServices float64
	Coverage     float64
	LaunchDates  float64
	Seed         int64
}

var regionAreas = []string{"us", "eu", "ap", "sa", "ca", "af", "me", "il"}

var regionDirections = []string{"east", "west", "north", "south", "central", "southeast", "northeast"}

// baseServices seeds the catalog with real service codes so generated
// datasets look plausible; past the list the generator switches to
// numbered synthetic codes.
var baseServices = []struct{ code, name string }{
	{"ec2", "Amazon Elastic Compute Cloud (EC2)"},
	{"s3", "Amazon Simple Storage Service (S3)"},
	{"lambda", "AWS Lambda"},
	{"dynamodb", "Amazon DynamoDB"},
	{"rds", "Amazon Relational Database Service (RDS)"},
	{"sns", "Amazon Simple Notification Service (SNS)"},
	{"sqs", "Amazon Simple Queue Service (SQS)"},
	{"kms", "AWS Key Management Service (KMS)"},
	{"cloudwatch", "Amazon CloudWatch"},
	{"cloudtrail", "AWS CloudTrail"},
	{"iam", "AWS Identity and Access Management (IAM)"},
	{"ssm", "AWS Systems Manager (SSM)"},
	{"sts", "AWS Security Token Service (STS)"},
	{"ecs", "Amazon Elastic Container Service (ECS)"},
	{"eks", "Amazon Elastic Kubernetes Service (EKS)"},
	{"route53", "Amazon Route 53"},
	{"cloudfront", "Amazon CloudFront"},
	{"apigateway", "Amazon API Gateway"},
	{"athena", "Amazon Athena"},
	{"glue", "AWS Glue"},
}

func syntheticRegionCodes(n, gov int) []string {
	if gov > n {
		gov = n
	}
	codes := make([]string, 0, n)
	for i := 0; i < gov; i++ {
		dir := regionDirections[i%len(regionDirections)]
		codes = append(codes, fmt.Sprintf("us-gov-%s-%d", dir, i/len(regionDirections)+1))
	}
	for num := 1; len(codes) < n; num++ {
		for _, area := range regionAreas {
			for _, dir := range regionDirections {
				if len(codes) == n {
					return codes
				}
				codes = append(codes, fmt.Sprintf("%s-%s-%d", area, dir, num))
			}
		}
	}
	return codes
}

func syntheticServices(n int) ([]string, map[string]string) {
	codes := make([]string, 0, n)
	names := make(map[string]string, n)
	for i := 0; i < n && i < len(baseServices); i++ {
		codes = append(codes, baseServices[i].code)
		names[baseServices[i].code] = baseServices[i].name
	}
	for i := len(codes); i < n; i++ {
		code := fmt.Sprintf("svc%03d", i)
		codes = append(codes, code)
		names[code] = fmt.Sprintf("AWS Synthetic Service %d", i)
	}
	return codes, names
}

func displayName(code string) string {
	return fmt.Sprintf("Test Region (%s)", code)
}

func randomDate(r *rand.Rand) string {
	year := 2006 + r.Intn(19)
	month := time.Month(1 + r.Intn(12))
	day := 1 + r.Intn(28)
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// generate builds the dataset. All random draws iterate slices in a fixed
// order, so the output is fully determined by the seed.
func generate(r *rand.Rand, cfg Config) transform.RawDataset {
	regionCodes := syntheticRegionCodes(cfg.Regions, cfg.GovRegions)
	serviceCodes, serviceNames := syntheticServices(cfg.Services)

	raw := transform.RawDataset{
		Regions:        make(map[string]transform.RawRegion, len(regionCodes)),
		Services:       make(map[string]transform.RawService, len(serviceCodes)),
		RegionServices: make(map[string][]string, len(regionCodes)),
		LaunchDates:    make(map[string]string),
	}

	for _, code := range serviceCodes {
		status := transform.FetchOK
		name := serviceNames[code]
		if r.Float64() < cfg.FailServices {
			status = transform.FetchFailed
			name = ""
		}
		raw.Services[code] = transform.RawService{DisplayName: name, FetchStatus: status}
	}

	for _, code := range regionCodes {
		partition := "aws"
		if strings.HasPrefix(code, "us-gov-") {
			partition = "aws-us-gov"
		}

		if r.Float64() < cfg.FailRegions {
			raw.Regions[code] = transform.RawRegion{
				DisplayName: displayName(code),
				Partition:   partition,
				FetchStatus: transform.FetchFailed,
			}
		} else {
			raw.Regions[code] = transform.RawRegion{
				DisplayName: displayName(code),
				Partition:   partition,
				FetchStatus: transform.FetchOK,
			}
			var listed []string
			for _, svc := range serviceCodes {
				if r.Float64() < cfg.Coverage {
					listed = append(listed, svc)
				}
			}
			raw.RegionServices[code] = listed
		}

		if r.Float64() < cfg.LaunchDates {
			raw.LaunchDates[code] = randomDate(r)
		}
	}
	return raw
}

func newStore(ctx context.Context, dataURI, runID string) (store.Store, error) {
	var s3Client aws.S3Client
	var streamer s3streamer.Streamer
	if strings.HasPrefix(dataURI, "s3://") {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		rawS3 := s3.NewFromConfig(awsCfg)
		s3Client = aws.NewS3Client(rawS3)
		streamer = s3streamer.NewS3Streamer(rawS3)
	}
	return store.New(dataURI, runID, s3Client, streamer)
}

func main() {
	cfg := Config{}

	flag.StringVar(&cfg.DataURI, "data", "", "Artifact store root (s3://bucket/prefix or file:///dir)")
	flag.StringVar(&cfg.RunID, "run-id", "", "Run identifier (generated if empty)")
	flag.IntVar(&cfg.Regions, "regions", 30, "Number of regions to generate")
	flag.IntVar(&cfg.GovRegions, "gov-regions", 1, "Number of GovCloud regions among them")
	flag.IntVar(&cfg.Services, "services", 200, "Number of services to generate")
	flag.Float64Var(&cfg.FailRegions, "fail-regions", 0.05, "Fraction of regions whose service list fails")
	flag.Float64Var(&cfg.FailServices, "fail-services", 0.02, "Fraction of services whose metadata fails")
	flag.Float64Var(&cfg.Coverage, "coverage", 0.7, "Probability that a region lists a service")
	flag.Float64Var(&cfg.LaunchDates, "launch-dates", 0.8, "Fraction of regions with a launch date")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed (0 = time-based)")
	flag.Parse()

	if cfg.DataURI == "" {
		log.Fatal("-data is required")
	}
	if cfg.Regions < 1 || cfg.Services < 1 {
		log.Fatal("-regions and -services must be at least 1")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))
	fmt.Printf("Using seed: %d\n", seed)

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	raw := generate(r, cfg)

	ctx := context.Background()
	st, err := newStore(ctx, cfg.DataURI, runID)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	if err := st.SaveRaw(ctx, raw); err != nil {
		log.Fatalf("Failed to save dataset: %v", err)
	}

	okRegions := 0
	for _, region := range raw.Regions {
		if region.FetchStatus == transform.FetchOK {
			okRegions++
		}
	}
	fmt.Printf("Generated %d regions (%d resolved), %d services\n", len(raw.Regions), okRegions, len(raw.Services))
	fmt.Printf("Run ID: %s\n", runID)
	fmt.Printf("Process it with: ssm-fetcher -stage process -data %s -run-id %s\n", cfg.DataURI, runID)
}
