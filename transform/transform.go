// Package transform normalizes raw AWS infrastructure discovery output into
// the canonical dataset consumed by the rest of the pipeline. Region and
// service codes are lowercased and deduplicated, display names are cleaned,
// partitions are resolved, and RSS launch dates are merged onto regions.
package transform

import (
	"fmt"
	"sort"
	"strings"
)

// ErrMalformedInput indicates the raw dataset cannot anchor a report, for
// example when discovery produced no regions or no services at all.
var ErrMalformedInput = fmt.Errorf("malformed input")

// FetchStatus records whether discovery fully resolved an entity.
type FetchStatus string

const (
	// FetchOK means every lookup for the entity succeeded.
	FetchOK FetchStatus = "ok"
	// FetchFailed means the entity was enumerated but its detail lookups
	// failed after retries.
	FetchFailed FetchStatus = "failed"
)

// RawRegion is a region as discovery saw it, before normalization.
type RawRegion struct {
	DisplayName string      `json:"displayName"`
	Partition   string      `json:"partition"`
	FetchStatus FetchStatus `json:"fetchStatus"`
}

// RawService is a service as discovery saw it, before normalization.
type RawService struct {
	DisplayName string      `json:"displayName"`
	FetchStatus FetchStatus `json:"fetchStatus"`
}

// RawDataset is the artifact the fetch stage persists and the process stage
// consumes. RegionServices carries entries only for regions whose service
// list resolved; LaunchDates is keyed by region code and may cover regions
// that are absent from Regions.
type RawDataset struct {
	Regions        map[string]RawRegion  `json:"regions"`
	Services       map[string]RawService `json:"services"`
	RegionServices map[string][]string   `json:"regionServices"`
	LaunchDates    map[string]string     `json:"launchDates,omitempty"`
}

// Partition classifies a region by the AWS partition it belongs to.
type Partition string

const (
	PartitionCommercial Partition = "commercial"
	PartitionGovernment Partition = "government"
	PartitionIsolated   Partition = "isolated"
)

// Region is a normalized region. LaunchDate is YYYY-MM-DD or empty when
// unknown. FetchOK is false when the region's own service list never
// resolved, which downgrades every availability record for it.
type Region struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Partition  Partition `json:"partition"`
	LaunchDate string    `json:"launchDate,omitempty"`
	FetchOK    bool      `json:"fetchOk"`
}

// Service is a normalized service. FetchOK is false when the service's own
// metadata lookup failed, which weakens availability confidence.
type Service struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	FetchOK bool   `json:"fetchOk"`
}

// NormalizedDataset is the cleaned view of one discovery run. Regions and
// Services are sorted by code. regionServices maps region code to the set of
// service codes that region listed.
type NormalizedDataset struct {
	Regions        []Region
	Services       []Service
	regionServices map[string]map[string]bool
}

// Region returns the region with the given code.
func (d NormalizedDataset) Region(code string) (Region, bool) {
	for _, r := range d.Regions {
		if r.Code == code {
			return r, true
		}
	}
	return Region{}, false
}

// Service returns the service with the given code.
func (d NormalizedDataset) Service(code string) (Service, bool) {
	for _, s := range d.Services {
		if s.Code == code {
			return s, true
		}
	}
	return Service{}, false
}

// HasService reports whether the region listed the service in its service
// enumeration. Always false for regions whose fetch failed.
func (d NormalizedDataset) HasService(regionCode, serviceCode string) bool {
	return d.regionServices[regionCode][serviceCode]
}

// ServiceCount returns how many services the region listed.
func (d NormalizedDataset) ServiceCount(regionCode string) int {
	return len(d.regionServices[regionCode])
}

// Transformer converts raw discovery output into a normalized dataset.
type Transformer struct{}

// NewTransformer creates a new transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform normalizes the raw dataset. It never mutates its input. The
// error wraps ErrMalformedInput when the raw dataset contains no usable
// regions or no usable services.
func (t *Transformer) Transform(raw RawDataset) (NormalizedDataset, error) {
	regions := make([]Region, 0, len(raw.Regions))
	for code, rr := range raw.Regions {
		normalized := normalizeCode(code)
		if normalized == "" {
			continue
		}
		regions = append(regions, Region{
			Code:      normalized,
			Name:      normalizeName(rr.DisplayName, normalized),
			Partition: derivePartition(rr.Partition, normalized),
			FetchOK:   rr.FetchStatus == FetchOK,
		})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Code < regions[j].Code })
	regions = dedupeRegions(regions)

	services := make([]Service, 0, len(raw.Services))
	for code, rs := range raw.Services {
		normalized := normalizeCode(code)
		if normalized == "" {
			continue
		}
		services = append(services, Service{
			Code:    normalized,
			Name:    normalizeName(rs.DisplayName, normalized),
			FetchOK: rs.FetchStatus == FetchOK,
		})
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Code < services[j].Code })
	services = dedupeServices(services)

	if len(regions) == 0 {
		return NormalizedDataset{}, fmt.Errorf("%w: no regions in raw dataset", ErrMalformedInput)
	}
	if len(services) == 0 {
		return NormalizedDataset{}, fmt.Errorf("%w: no services in raw dataset", ErrMalformedInput)
	}

	// Launch dates may cover regions the parameter tree has not published
	// yet; only merge dates for regions we actually normalized.
	dates := make(map[string]string, len(raw.LaunchDates))
	for k, v := range raw.LaunchDates {
		code := normalizeCode(k)
		v = strings.TrimSpace(v)
		if code == "" || v == "" {
			continue
		}
		if prev, ok := dates[code]; !ok || v < prev {
			dates[code] = v
		}
	}
	for i := range regions {
		regions[i].LaunchDate = dates[regions[i].Code]
	}

	// Service membership is only trusted for regions whose list resolved.
	// Entries for failed or unknown regions are dropped so that a failed
	// fetch always reads as an empty set.
	byCode := make(map[string]Region, len(regions))
	for _, r := range regions {
		byCode[r.Code] = r
	}
	regionServices := make(map[string]map[string]bool, len(raw.RegionServices))
	for code, listed := range raw.RegionServices {
		normalized := normalizeCode(code)
		region, ok := byCode[normalized]
		if !ok || !region.FetchOK {
			continue
		}
		set := make(map[string]bool, len(listed))
		for _, svc := range listed {
			if sc := normalizeCode(svc); sc != "" {
				set[sc] = true
			}
		}
		regionServices[normalized] = set
	}

	return NormalizedDataset{
		Regions:        regions,
		Services:       services,
		regionServices: regionServices,
	}, nil
}

// normalizeCode trims surrounding whitespace and lowercases an entity code.
func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// normalizeName trims a display name, falling back to the code when the
// upstream value is empty.
func normalizeName(name, code string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return code
	}
	return name
}

// derivePartition maps the SSM partition value onto the report taxonomy.
// When the partition lookup failed the region code itself is a reliable
// hint: us-gov-* regions are GovCloud and cn-/iso regions are isolated.
func derivePartition(raw, code string) Partition {
	switch strings.TrimSpace(raw) {
	case "aws":
		return PartitionCommercial
	case "aws-us-gov":
		return PartitionGovernment
	case "":
		if strings.HasPrefix(code, "us-gov-") {
			return PartitionGovernment
		}
		if strings.HasPrefix(code, "cn-") || strings.Contains(code, "-iso") {
			return PartitionIsolated
		}
		return PartitionCommercial
	default:
		return PartitionIsolated
	}
}

// dedupeRegions collapses duplicate codes after normalization. A fetch-ok
// duplicate replaces a failed one so a single bad alias cannot poison a
// region; remaining ties resolve to the lexicographically smaller name to
// keep the output independent of map iteration order.
func dedupeRegions(sorted []Region) []Region {
	out := sorted[:0]
	for _, r := range sorted {
		if len(out) > 0 && out[len(out)-1].Code == r.Code {
			prev := &out[len(out)-1]
			if (r.FetchOK && !prev.FetchOK) || (r.FetchOK == prev.FetchOK && r.Name < prev.Name) {
				*prev = r
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func dedupeServices(sorted []Service) []Service {
	out := sorted[:0]
	for _, s := range sorted {
		if len(out) > 0 && out[len(out)-1].Code == s.Code {
			prev := &out[len(out)-1]
			if (s.FetchOK && !prev.FetchOK) || (s.FetchOK == prev.FetchOK && s.Name < prev.Name) {
				*prev = s
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
