// Package storage persists knowledge chunk text under content-hash names.
//
// Every backend implements ChunkStore over a flat namespace of blob names
// built by BlobName. A missing blob is always an error wrapping
// ErrChunkNotFound, never an empty string.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/richinex/musicbi/internal/apperror"
)

// ChunkSuffix is appended to every blob name.
const ChunkSuffix = ".txt"

// ErrChunkNotFound is returned by Get for an absent key.
var ErrChunkNotFound = errors.New("chunk not found")

// ChunkStore persists chunk text by content key.
type ChunkStore interface {
	// Put stores content under key, overwriting any previous value.
	Put(ctx context.Context, key, content string) error

	// Get returns the content stored under key.
	Get(ctx context.Context, key string) (string, error)

	// Clear removes every chunk in this store's namespace.
	Clear(ctx context.Context) error
}

// Counter is implemented by stores that can report how many chunks they hold.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// BlobName returns the flat blob name for key: <prefix><key>.txt.
func BlobName(prefix, key string) string {
	return prefix + key + ChunkSuffix
}

func notFound(key string) error {
	return apperror.Wrap(apperror.CodeNotFound, fmt.Sprintf("chunk %s", key), ErrChunkNotFound)
}
