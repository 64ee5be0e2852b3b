package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps chunks in a map. Used for offline runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	prefix string
	blobs  map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{prefix: prefix, blobs: make(map[string]string)}
}

// Put stores content.
func (s *MemoryStore) Put(ctx context.Context, key, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[BlobName(s.prefix, key)] = content
	return nil
}

// Get returns content or an ErrChunkNotFound error.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.blobs[BlobName(s.prefix, key)]
	if !ok {
		return "", notFound(key)
	}
	return content, nil
}

// Clear drops all chunks.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[string]string)
	return nil
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs), nil
}

var _ Counter = (*MemoryStore)(nil)
var _ ChunkStore = (*MemoryStore)(nil)
