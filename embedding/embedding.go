// Package embedding turns text into fixed-dimension vectors.
//
// Every Embedder preserves input order one-to-one and returns vectors of
// exactly Dimension() components. Wrap third-party backends with Checked
// to enforce that contract at the boundary.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/richinex/musicbi/internal/apperror"
)

// ErrDimensionMismatch reports a vector whose length differs from the declared dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder converts text into vectors.
type Embedder interface {
	// EmbedMany embeds texts; result i corresponds to texts[i].
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed length of every vector this embedder returns.
	Dimension() int
}

// EmbedOne embeds a single text as EmbedMany([text])[0].
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	out, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, apperror.Internal("embed one", fmt.Errorf("got %d vectors for 1 input", len(out)))
	}
	return out[0], nil
}

// Checked validates count and dimension of every batch returned by the
// wrapped Embedder.
type Checked struct {
	inner Embedder
}

// NewChecked wraps e.
func NewChecked(e Embedder) *Checked {
	if c, ok := e.(*Checked); ok {
		return c
	}
	return &Checked{inner: e}
}

// Dimension returns the wrapped embedder's dimension.
func (c *Checked) Dimension() int {
	return c.inner.Dimension()
}

// EmbedMany embeds texts and verifies the result shape.
func (c *Checked) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out, err := c.inner.EmbedMany(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, apperror.Internal("embed many", fmt.Errorf("got %d vectors for %d inputs", len(out), len(texts)))
	}
	dim := c.inner.Dimension()
	for i, v := range out {
		if len(v) != dim {
			return nil, apperror.Wrap(apperror.CodeNotFound,
				fmt.Sprintf("vector %d has %d components, want %d", i, len(v), dim), ErrDimensionMismatch)
		}
	}
	return out, nil
}

// Unwrap returns the wrapped embedder.
func (c *Checked) Unwrap() Embedder {
	return c.inner
}

// Closer is implemented by embedders holding native resources.
type Closer interface {
	Close() error
}

// Close releases e's resources when it has any.
func Close(e Embedder) error {
	if c, ok := e.(*Checked); ok {
		e = c.inner
	}
	if closer, ok := e.(Closer); ok {
		return closer.Close()
	}
	return nil
}
