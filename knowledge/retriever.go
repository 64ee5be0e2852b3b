package knowledge

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/richinex/musicbi/embedding"
	"github.com/richinex/musicbi/internal/apperror"
	"github.com/richinex/musicbi/internal/metrics"
	"github.com/richinex/musicbi/storage"
	"github.com/richinex/musicbi/vectorindex"
)

// DefaultTopK is the number of chunks retrieve_knowledge returns.
const DefaultTopK = 5

// BuildStats summarizes one index build.
type BuildStats struct {
	Chunks   int           `json:"chunks"`
	Unique   int           `json:"unique"`
	// Stored is the chunk store's count after the build, or -1 when the
	// store cannot count.
	Stored   int           `json:"stored"`
	Duration time.Duration `json:"duration"`
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFetchConcurrency bounds parallel chunk fetches per retrieval.
func WithFetchConcurrency(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.fetchLimit = n
		}
	}
}

// Retriever composes the embedder, vector index and chunk store.
//
// BuildIndex is destructive and holds the write lock for its whole
// clear-then-fill sequence. Retrieve holds the read lock, so it never
// observes a half-built index.
type Retriever struct {
	mu         sync.RWMutex
	store      storage.ChunkStore
	embedder   embedding.Embedder
	index      vectorindex.Index
	logger     *slog.Logger
	fetchLimit int
}

// NewRetriever wires the pipeline. The embedder and index must agree on
// dimension; a mismatch is a CONFIG error.
func NewRetriever(store storage.ChunkStore, embedder embedding.Embedder, index vectorindex.Index, opts ...Option) (*Retriever, error) {
	if embedder.Dimension() != index.Dimension() {
		return nil, apperror.Config("embedder dimension %d does not match index dimension %d",
			embedder.Dimension(), index.Dimension())
	}
	r := &Retriever{
		store:      store,
		embedder:   embedding.NewChecked(embedder),
		index:      index,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		fetchLimit: 8,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// BuildIndex replaces the index and chunk store contents with corpus.
func (r *Retriever) BuildIndex(ctx context.Context, corpus string) (stats BuildStats, err error) {
	started := time.Now()
	defer func() { metrics.RecordIndexBuild(err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.index.Create(ctx); err != nil {
		return BuildStats{}, err
	}
	if err := r.index.Clear(ctx); err != nil {
		return BuildStats{}, err
	}
	if err := r.store.Clear(ctx); err != nil {
		return BuildStats{}, err
	}

	chunks := Ingest(corpus)
	unique := dedupe(chunks)
	stats = BuildStats{Chunks: len(chunks), Unique: len(unique), Stored: -1}
	if len(unique) == 0 {
		stats.Stored = 0
		stats.Duration = time.Since(started)
		r.logger.Warn("knowledge corpus has no records")
		return stats, nil
	}

	texts := make([]string, len(unique))
	for i, c := range unique {
		texts[i] = c.Content
	}
	vectors, err := r.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return BuildStats{}, err
	}

	records := make([]vectorindex.Record, len(unique))
	for i, c := range unique {
		if err := r.store.Put(ctx, c.Key, c.Content); err != nil {
			return BuildStats{}, err
		}
		records[i] = vectorindex.Record{
			Key:      c.Key,
			Vector:   vectors[i],
			Metadata: map[string]string{"bytes": strconv.Itoa(len(c.Content))},
		}
	}
	if err := r.index.Upsert(ctx, records); err != nil {
		return BuildStats{}, err
	}
	if counter, ok := r.store.(storage.Counter); ok {
		if stats.Stored, err = counter.Count(ctx); err != nil {
			return BuildStats{}, err
		}
	}

	stats.Duration = time.Since(started)
	r.logger.Info("knowledge index built",
		"chunks", stats.Chunks,
		"unique", stats.Unique,
		"stored", stats.Stored,
		"duration", stats.Duration)
	return stats, nil
}

// Retrieve returns the text of the k chunks nearest to query, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (docs []string, err error) {
	started := time.Now()
	defer func() { metrics.RecordRetrieval(err, time.Since(started)) }()

	if strings.TrimSpace(query) == "" {
		return nil, apperror.Validation("query must not be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	vec, err := embedding.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, err
	}
	matches, err := r.index.Query(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	// fetch in parallel, place by rank
	docs = make([]string, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fetchLimit)
	for i, m := range matches {
		g.Go(func() error {
			content, err := r.store.Get(gctx, m.Key)
			if err != nil {
				if apperror.HasCode(err, apperror.CodeNotFound) {
					return apperror.Wrap(apperror.CodeConsistency,
						"index references chunk "+m.Key+" missing from the chunk store", err)
				}
				return err
			}
			docs[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("knowledge retrieved", "k", k, "hits", len(docs))
	return docs, nil
}

func dedupe(chunks []Chunk) []Chunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.Key]; ok {
			continue
		}
		seen[c.Key] = struct{}{}
		out = append(out, c)
	}
	return out
}
