package vectorindex

import (
	"context"
	"sync"

	"github.com/richinex/musicbi/internal/apperror"
)

// Memory is an exact, brute-force index held in process memory.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	metric  Metric
	records map[string]Record
}

// NewMemory creates an in-memory index.
func NewMemory(dim int, metric Metric) (*Memory, error) {
	if dim <= 0 {
		return nil, apperror.Config("vector dimension must be positive, got %d", dim)
	}
	if metric == "" {
		metric = Cosine
	}
	return &Memory{dim: dim, metric: metric, records: make(map[string]Record)}, nil
}

// Create is a no-op; the index exists from construction.
func (m *Memory) Create(ctx context.Context) error {
	return nil
}

// Clear drops all records.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]Record)
	return nil
}

// Upsert stores copies of records, replacing by key.
func (m *Memory) Upsert(ctx context.Context, records []Record) error {
	if err := checkRecords(m.dim, records); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		m.records[r.Key] = r
	}
	return nil
}

// Query scans every record.
func (m *Memory) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if err := checkQuery(m.dim, vector, topK); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matches := make([]Match, 0, len(m.records))
	for key, r := range m.records {
		matches = append(matches, Match{Key: key, Score: Score(m.metric, vector, r.Vector)})
	}
	m.mu.RUnlock()

	Rank(m.metric, matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Dimension returns the fixed vector length.
func (m *Memory) Dimension() int { return m.dim }

// Metric returns the ranking metric.
func (m *Memory) Metric() Metric { return m.metric }

var _ Index = (*Memory)(nil)
