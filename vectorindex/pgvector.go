package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richinex/musicbi/internal/apperror"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PGVector is an Index stored in a Postgres table using the pgvector extension.
type PGVector struct {
	db     *pgxpool.Pool
	table  string
	dim    int
	metric Metric
}

// NewPGVector connects to Postgres. The collection name becomes the table name.
func NewPGVector(ctx context.Context, connStr, collection string, dim int, metric Metric) (*PGVector, error) {
	if !identPattern.MatchString(collection) {
		return nil, apperror.Config("pgvector collection %q is not a valid table name", collection)
	}
	if dim <= 0 {
		return nil, apperror.Config("vector dimension must be positive, got %d", dim)
	}
	if metric == "" {
		metric = Cosine
	}
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfig, "failed to connect to Postgres", err)
	}
	return &PGVector{db: db, table: collection, dim: dim, metric: metric}, nil
}

// Close releases the pool.
func (p *PGVector) Close() error {
	p.db.Close()
	return nil
}

// Create installs the extension and table, or verifies the existing column dimension.
func (p *PGVector) Create(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return apperror.Transient("create extension vector", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb
	)`, p.table, p.dim)
	if _, err := p.db.Exec(ctx, ddl); err != nil {
		return apperror.Transient("create table "+p.table, err)
	}

	// pgvector stores the declared dimension as the column typmod.
	var typmod int
	err := p.db.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'`, p.table).Scan(&typmod)
	if err != nil {
		return apperror.Transient("inspect "+p.table, err)
	}
	if typmod != p.dim {
		return apperror.Config("pgvector table %q has dimension %d, embedder produces %d", p.table, typmod, p.dim)
	}
	return nil
}

// Clear truncates the table.
func (p *PGVector) Clear(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, p.table)); err != nil {
		return apperror.Transient("truncate "+p.table, err)
	}
	return nil
}

// Upsert writes records in one batch.
func (p *PGVector) Upsert(ctx context.Context, records []Record) error {
	if err := checkRecords(p.dim, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (key, embedding, metadata)
		VALUES ($1, $2::vector, $3::jsonb)
		ON CONFLICT (key) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`, p.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		metaJSON, _ := json.Marshal(meta)
		batch.Queue(query, r.Key, vectorLiteral(r.Vector), string(metaJSON))
	}
	if err := p.db.SendBatch(ctx, batch).Close(); err != nil {
		return apperror.Transient("upsert into "+p.table, err)
	}
	return nil
}

// Query orders by the pgvector operator matching the metric.
func (p *PGVector) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if err := checkQuery(p.dim, vector, topK); err != nil {
		return nil, err
	}
	op, toScore := p.operator()
	query := fmt.Sprintf(`
		SELECT key, (embedding %s $1::vector) AS distance
		FROM %s
		ORDER BY distance, key
		LIMIT $2`, op, p.table)

	rows, err := p.db.Query(ctx, query, vectorLiteral(vector), topK)
	if err != nil {
		return nil, apperror.Transient("query "+p.table, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var key string
		var distance float64
		if err := rows.Scan(&key, &distance); err != nil {
			return nil, err
		}
		matches = append(matches, Match{Key: key, Score: toScore(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []Match{}
	}
	Rank(p.metric, matches)
	return matches, nil
}

// operator returns the pgvector distance operator and the mapping from
// its distance to this package's score.
func (p *PGVector) operator() (string, func(float64) float32) {
	switch p.metric {
	case Dot:
		// <#> is the negative inner product
		return "<#>", func(d float64) float32 { return float32(-d) }
	case Euclidean:
		return "<->", func(d float64) float32 { return float32(d) }
	default:
		return "<=>", func(d float64) float32 { return float32(1 - d) }
	}
}

// Dimension returns the fixed vector length.
func (p *PGVector) Dimension() int { return p.dim }

// Metric returns the ranking metric.
func (p *PGVector) Metric() Metric { return p.metric }

// vectorLiteral renders v in pgvector's text format, e.g. "[1,2,3]".
func vectorLiteral(v []float32) string {
	b, _ := json.Marshal(v)
	return "[" + strings.Trim(string(b), "[]") + "]"
}

var _ Index = (*PGVector)(nil)
