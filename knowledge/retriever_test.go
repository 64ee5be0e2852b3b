package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/richinex/musicbi/embedding"
	"github.com/richinex/musicbi/internal/apperror"
	"github.com/richinex/musicbi/storage"
	"github.com/richinex/musicbi/vectorindex"
)

const twoRecordCorpus = "<document>find the agent module</document>\n<document>database connection guide</document>\n"

func newTestRetriever(t *testing.T) (*Retriever, *storage.MemoryStore, *vectorindex.Memory) {
	t.Helper()
	emb := embedding.NewHashing(256)
	idx, err := vectorindex.NewMemory(emb.Dimension(), vectorindex.Cosine)
	if err != nil {
		t.Fatal(err)
	}
	store := storage.NewMemoryStore("")
	r, err := NewRetriever(store, emb, idx)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	return r, store, idx
}

func TestRetrieveTwoRecordScenario(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	ctx := context.Background()

	stats, err := r.BuildIndex(ctx, twoRecordCorpus)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if stats.Chunks != 2 || stats.Unique != 2 {
		t.Errorf("stats = %+v", stats)
	}

	docs, err := r.Retrieve(ctx, "which module defines the agent", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 1 || docs[0] != "<document>find the agent module</document>" {
		t.Fatalf("docs = %q", docs)
	}
}

func TestRetrieveReturnsAvailableCountInRankOrder(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	ctx := context.Background()
	if _, err := r.BuildIndex(ctx, twoRecordCorpus); err != nil {
		t.Fatal(err)
	}

	docs, err := r.Retrieve(ctx, "database connection", DefaultTopK)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0] != "<document>database connection guide</document>" {
		t.Errorf("rank 1 = %q", docs[0])
	}
}

func TestRetrieveSelfSimilarity(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	ctx := context.Background()
	corpus := "<document>invoice lines per track</document><document>customer support rep</document><document>playlist genres and media types</document>"
	if _, err := r.BuildIndex(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	for _, c := range Ingest(corpus) {
		docs, err := r.Retrieve(ctx, c.Content, 1)
		if err != nil {
			t.Fatal(err)
		}
		if docs[0] != c.Content {
			t.Errorf("query by %q ranked %q first", c.Content, docs[0])
		}
	}
}

func TestBuildIndexReplacesPreviousState(t *testing.T) {
	r, _, idx := newTestRetriever(t)
	ctx := context.Background()
	if _, err := r.BuildIndex(ctx, twoRecordCorpus); err != nil {
		t.Fatal(err)
	}
	stats, err := r.BuildIndex(ctx, "<document>only one</document><document>only one</document>")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Chunks != 2 || stats.Unique != 1 || stats.Stored != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if idx.Len() != 1 {
		t.Errorf("index has %d records, want 1", idx.Len())
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	docs, err := r.Retrieve(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Retrieve on empty index: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("docs = %v", docs)
	}
}

func TestRetrieveMissingChunkIsConsistencyError(t *testing.T) {
	r, store, _ := newTestRetriever(t)
	ctx := context.Background()
	if _, err := r.BuildIndex(ctx, twoRecordCorpus); err != nil {
		t.Fatal(err)
	}
	_ = store.Clear(ctx)

	_, err := r.Retrieve(ctx, "agent module", 2)
	if !apperror.HasCode(err, apperror.CodeConsistency) {
		t.Fatalf("err = %v, want CONSISTENCY", err)
	}
	if !errors.Is(err, storage.ErrChunkNotFound) {
		t.Errorf("err should wrap ErrChunkNotFound: %v", err)
	}
}

func TestRetrieveValidation(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	ctx := context.Background()
	if _, err := r.Retrieve(ctx, "  ", 1); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Errorf("blank query err = %v", err)
	}
	if _, err := r.Retrieve(ctx, "q", 0); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Errorf("k=0 err = %v", err)
	}
}

func TestNewRetrieverDimensionMismatch(t *testing.T) {
	idx, _ := vectorindex.NewMemory(8, vectorindex.Cosine)
	_, err := NewRetriever(storage.NewMemoryStore(""), embedding.NewHashing(16), idx)
	if !apperror.HasCode(err, apperror.CodeConfig) {
		t.Fatalf("err = %v, want CONFIG", err)
	}
}

func TestConcurrentBuildAndRetrieve(t *testing.T) {
	r, _, _ := newTestRetriever(t)
	ctx := context.Background()
	if _, err := r.BuildIndex(ctx, twoRecordCorpus); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := r.BuildIndex(ctx, twoRecordCorpus)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			// serialized behind the build lock: always sees a complete index
			docs, err := r.Retrieve(ctx, "agent module", 2)
			if err == nil && len(docs) != 2 {
				err = errors.New("observed partial index")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}
