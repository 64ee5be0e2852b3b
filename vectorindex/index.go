// Package vectorindex stores (key, vector) records and answers
// nearest-neighbor queries under a fixed dimension and metric.
package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/richinex/musicbi/internal/apperror"
)

// Metric is the distance function an index ranks by.
type Metric string

// Supported metrics.
const (
	Cosine    Metric = "cosine"
	Dot       Metric = "dot"
	Euclidean Metric = "euclidean"
)

// ParseMetric parses a metric name (case-insensitive). Empty means Cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine", "cos":
		return Cosine, nil
	case "dot", "ip", "inner_product":
		return Dot, nil
	case "euclidean", "euclid", "l2":
		return Euclidean, nil
	default:
		return "", apperror.Config("unknown vector metric %q", s)
	}
}

// HigherIsBetter reports whether larger scores rank first.
func (m Metric) HigherIsBetter() bool {
	return m != Euclidean
}

// Record is one stored vector. Key joins it to its chunk.
type Record struct {
	Key      string
	Vector   []float32
	Metadata map[string]string
}

// Match is one query hit. Score is a similarity for Cosine and Dot, and a
// distance for Euclidean.
type Match struct {
	Key   string  `json:"key"`
	Score float32 `json:"score"`
}

// Index is a named vector collection.
type Index interface {
	// Create provisions the collection; idempotent. An existing collection
	// with a different dimension is a CONFIG error.
	Create(ctx context.Context) error

	// Clear removes every record but keeps the collection.
	Clear(ctx context.Context) error

	// Upsert inserts or replaces records by key.
	Upsert(ctx context.Context, records []Record) error

	// Query returns at most topK matches, best first, ties by key ascending.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)

	Dimension() int
	Metric() Metric
}

// Score computes the metric between a and b, which must have equal length.
func Score(m Metric, a, b []float32) float32 {
	switch m {
	case Dot:
		return dot(a, b)
	case Euclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	default:
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

// Rank sorts matches best first with ties broken by key ascending.
func Rank(m Metric, matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			if m.HigherIsBetter() {
				return matches[i].Score > matches[j].Score
			}
			return matches[i].Score < matches[j].Score
		}
		return matches[i].Key < matches[j].Key
	})
}

func checkQuery(dim int, vector []float32, topK int) error {
	if topK <= 0 {
		return apperror.Validation("top_k must be a positive integer, got %d", topK)
	}
	return checkVector(dim, vector)
}

func checkVector(dim int, vector []float32) error {
	if len(vector) != dim {
		return apperror.Validation("vector has %d components, index dimension is %d", len(vector), dim)
	}
	return nil
}

func checkRecords(dim int, records []Record) error {
	for _, r := range records {
		if r.Key == "" {
			return apperror.Validation("record key must not be empty")
		}
		if err := checkVector(dim, r.Vector); err != nil {
			return fmt.Errorf("record %s: %w", r.Key, err)
		}
	}
	return nil
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

func norm(a []float32) float32 {
	return float32(math.Sqrt(float64(dot(a, a))))
}
