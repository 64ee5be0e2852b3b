package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestSqliteStorage_Contract(t *testing.T) {
	storage, err := NewSqliteInMemory("chunks/")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	runChunkStoreContract(t, storage)
}

func TestSqliteStoragePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chunks.db")
	ctx := context.Background()

	first, err := OpenSqlite(path, "")
	if err != nil {
		t.Fatalf("OpenSqlite: %v", err)
	}
	if err := first.Put(ctx, "abc", "persisted"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	first.Close()

	second, err := OpenSqlite(path, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "persisted" {
		t.Errorf("Get = %q", got)
	}
}

func TestSqliteStorageClearRespectsPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	a, err := OpenSqlite(path, "a/")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := OpenSqlite(path, "b/")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	_ = a.Put(ctx, "k", "from a")
	_ = b.Put(ctx, "k", "from b")

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := a.Get(ctx, "k"); !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("a still has chunk: %v", err)
	}
	got, err := b.Get(ctx, "k")
	if err != nil || got != "from b" {
		t.Errorf("b lost its chunk: %q, %v", got, err)
	}
	if n, _ := b.Count(ctx); n != 1 {
		t.Errorf("b.Count = %d", n)
	}
}
