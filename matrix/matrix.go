// Package matrix builds the full region x service availability matrix from a
// normalized dataset. Every pair gets exactly one record, so downstream
// consumers can rely on the matrix being dense and sorted.
package matrix

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

// Confidence grades how much evidence backs an availability record.
type Confidence string

const (
	// ConfidenceConfirmed means the region's service list resolved and the
	// service's own metadata did too.
	ConfidenceConfirmed Confidence = "confirmed"
	// ConfidenceInferred means the region listed the service but the
	// service's own metadata lookup failed, so the claim is uncorroborated.
	ConfidenceInferred Confidence = "inferred"
	// ConfidenceMissing means the region's service list never resolved and
	// nothing can be said about the pair.
	ConfidenceMissing Confidence = "missing"
)

// Record is one cell of the availability matrix.
type Record struct {
	Region     string     `json:"region"`
	Service    string     `json:"service"`
	Available  bool       `json:"available"`
	Confidence Confidence `json:"confidence"`
}

// Builder computes availability records for the full cross product of
// regions and services.
type Builder struct {
	workers int
}

// NewBuilder creates a builder that fans row construction out over at most
// workers goroutines. Values below one run serially.
func NewBuilder(workers int) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{workers: workers}
}

// Build returns one record per (region, service) pair, sorted by region code
// then service code. Rows are computed concurrently but each goroutine
// writes only its own pre-sliced segment, so output order never depends on
// scheduling. The only error is context cancellation.
func (b *Builder) Build(ctx context.Context, ds transform.NormalizedDataset) ([]Record, error) {
	regions := ds.Regions
	services := ds.Services
	records := make([]Record, len(regions)*len(services))

	if b.workers == 1 || len(regions) < 2 {
		for i, region := range regions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			buildRow(ds, region, services, records[i*len(services):(i+1)*len(services)])
		}
		return records, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, region := range regions {
		row := records[i*len(services) : (i+1)*len(services)]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			buildRow(ds, region, services, row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// buildRow fills the record slots for one region. A failed region yields
// missing records across the board; otherwise membership in the region's
// service list decides availability and the service's own fetch status
// decides whether the claim is confirmed or merely inferred.
func buildRow(ds transform.NormalizedDataset, region transform.Region, services []transform.Service, row []Record) {
	for j, svc := range services {
		rec := Record{Region: region.Code, Service: svc.Code}
		switch {
		case !region.FetchOK:
			rec.Available = false
			rec.Confidence = ConfidenceMissing
		case ds.HasService(region.Code, svc.Code):
			rec.Available = true
			if svc.FetchOK {
				rec.Confidence = ConfidenceConfirmed
			} else {
				rec.Confidence = ConfidenceInferred
			}
		default:
			rec.Available = false
			rec.Confidence = ConfidenceConfirmed
		}
		row[j] = rec
	}
}
