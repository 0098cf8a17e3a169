// Package metrics implements counter and timing collection for discovery and
// pipeline runs, and generates the final run report.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Metrics collects counters and stage timings for one run. It uses atomic
// operations for thread-safe counter updates so discovery workers can record
// concurrently; stage timings take the mutex.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	parametersFetched  int64 // SSM parameters and pages fetched
	fetchFailures      int64 // Entities whose lookups failed after retries
	retriesAttempted   int64 // Retried SSM calls
	regionsDiscovered  int64 // Regions enumerated
	servicesDiscovered int64 // Services enumerated
	recordsBuilt       int64 // Availability records produced
	missingRecords     int64 // Records with missing confidence
	findingsReported   int64 // Validation findings

	// Timings
	stageTimes map[string]time.Duration // Wall time per pipeline stage
	startTime  time.Time                // When the run started
}

// NewMetrics creates a new Metrics instance with initialized counters
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:  time.Now(),
		stageTimes: make(map[string]time.Duration),
	}
}

// RecordParameterFetch increments the fetched parameter counter
func (m *Metrics) RecordParameterFetch() {
	atomic.AddInt64(&m.parametersFetched, 1)
}

// RecordFetchFailure increments the failed fetch counter
func (m *Metrics) RecordFetchFailure() {
	atomic.AddInt64(&m.fetchFailures, 1)
}

// RecordRetry increments the retry counter
func (m *Metrics) RecordRetry() {
	atomic.AddInt64(&m.retriesAttempted, 1)
}

// RecordRegionsDiscovered adds to the discovered region counter
func (m *Metrics) RecordRegionsDiscovered(count int) {
	atomic.AddInt64(&m.regionsDiscovered, int64(count))
}

// RecordServicesDiscovered adds to the discovered service counter
func (m *Metrics) RecordServicesDiscovered(count int) {
	atomic.AddInt64(&m.servicesDiscovered, int64(count))
}

// RecordRecordsBuilt adds to the availability record counter
func (m *Metrics) RecordRecordsBuilt(count int) {
	atomic.AddInt64(&m.recordsBuilt, int64(count))
}

// RecordMissingRecords adds to the missing record counter
func (m *Metrics) RecordMissingRecords(count int) {
	atomic.AddInt64(&m.missingRecords, int64(count))
}

// RecordFindings adds to the validation finding counter
func (m *Metrics) RecordFindings(count int) {
	atomic.AddInt64(&m.findingsReported, int64(count))
}

// RecordStageTime accumulates wall time spent in a named stage
func (m *Metrics) RecordStageTime(stage string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageTimes[stage] += d
}

// Report contains the final metrics report for console and JSON output.
type Report struct {
	StartTime          time.Time         `json:"startTime"`          // When the run started
	EndTime            time.Time         `json:"endTime"`            // When the report was generated
	RegionsDiscovered  int64             `json:"regionsDiscovered"`  // Regions enumerated
	ServicesDiscovered int64             `json:"servicesDiscovered"` // Services enumerated
	ParametersFetched  int64             `json:"parametersFetched"`  // SSM parameters and pages fetched
	FetchFailures      int64             `json:"fetchFailures"`      // Entities that failed after retries
	RetriesAttempted   int64             `json:"retriesAttempted"`   // Retried SSM calls
	RecordsBuilt       int64             `json:"recordsBuilt"`       // Availability records produced
	MissingRecords     int64             `json:"missingRecords"`     // Records with missing confidence
	FindingsReported   int64             `json:"findingsReported"`   // Validation findings
	Stages             map[string]string `json:"stages"`             // Wall time per stage
	Duration           time.Duration     `json:"duration"`           // Total duration of the run
	Throughput         float64           `json:"throughput"`         // Records built per second
}

// GenerateReport calculates all metrics and returns a Report struct ready
// for JSON output.
func (m *Metrics) GenerateReport() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	endTime := time.Now()
	duration := endTime.Sub(m.startTime)

	var throughput float64
	if duration > 0 {
		throughput = float64(atomic.LoadInt64(&m.recordsBuilt)) / duration.Seconds()
	}

	stages := make(map[string]string, len(m.stageTimes))
	for stage, d := range m.stageTimes {
		stages[stage] = d.String()
	}

	return Report{
		StartTime:          m.startTime,
		EndTime:            endTime,
		RegionsDiscovered:  atomic.LoadInt64(&m.regionsDiscovered),
		ServicesDiscovered: atomic.LoadInt64(&m.servicesDiscovered),
		ParametersFetched:  atomic.LoadInt64(&m.parametersFetched),
		FetchFailures:      atomic.LoadInt64(&m.fetchFailures),
		RetriesAttempted:   atomic.LoadInt64(&m.retriesAttempted),
		RecordsBuilt:       atomic.LoadInt64(&m.recordsBuilt),
		MissingRecords:     atomic.LoadInt64(&m.missingRecords),
		FindingsReported:   atomic.LoadInt64(&m.findingsReported),
		Stages:             stages,
		Duration:           duration,
		Throughput:         throughput,
	}
}

// MarshalJSON implements json.Marshaler to format the duration as a string.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// String returns a human-readable string representation of the report
// for console output.
func (r Report) String() string {
	stages := make([]string, 0, len(r.Stages))
	for stage := range r.Stages {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	var timing strings.Builder
	for _, stage := range stages {
		fmt.Fprintf(&timing, "\n  %s: %s", stage, r.Stages[stage])
	}

	return fmt.Sprintf(
		"Run completed in %s\n"+
			"Regions: %d, Services: %d\n"+
			"Parameters fetched: %d (failures: %d, retries: %d)\n"+
			"Records built: %d (missing: %d)\n"+
			"Findings: %d\n"+
			"Throughput: %.2f records/sec%s",
		r.Duration,
		r.RegionsDiscovered,
		r.ServicesDiscovered,
		r.ParametersFetched,
		r.FetchFailures,
		r.RetriesAttempted,
		r.RecordsBuilt,
		r.MissingRecords,
		r.FindingsReported,
		r.Throughput,
		timing.String(),
	)
}
