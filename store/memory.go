package store

import (
	"context"
	"sync"

	"github.com/jxman/aws-ssm-data-fetcher/report"
	"github.com/jxman/aws-ssm-data-fetcher/transform"
)

// MemoryStore implements the Store interface in memory. It backs single
// process all-stage runs and is primarily intended for testing purposes.
type MemoryStore struct {
	mu  sync.RWMutex
	raw *transform.RawDataset
	rep *report.Report
}

// NewMemoryStore creates a new MemoryStore instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Exists reports whether a raw dataset was saved.
func (s *MemoryStore) Exists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw != nil, nil
}

// SaveRaw stores the raw dataset in memory
func (s *MemoryStore) SaveRaw(ctx context.Context, raw transform.RawDataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = &raw
	return nil
}

// LoadRaw retrieves the raw dataset from memory
func (s *MemoryStore) LoadRaw(ctx context.Context) (transform.RawDataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.raw == nil {
		return transform.RawDataset{}, ErrNotFound
	}
	return *s.raw, nil
}

// SaveReport stores the report in memory
func (s *MemoryStore) SaveReport(ctx context.Context, rep report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rep = &rep
	return nil
}

// LoadReport retrieves the report from memory
func (s *MemoryStore) LoadReport(ctx context.Context) (report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rep == nil {
		return report.Report{}, ErrNotFound
	}
	return *s.rep, nil
}
