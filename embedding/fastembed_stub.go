//go:build !fastembed

package embedding

import (
	"context"

	"github.com/richinex/musicbi/internal/apperror"
)

// FastEmbed is unavailable without the fastembed build tag.
type FastEmbed struct{}

// NewFastEmbed reports that fastembed support was not compiled in.
func NewFastEmbed(cacheDir string, batchSize int) (*FastEmbed, error) {
	return nil, apperror.Config("fastembed support not included; rebuild with -tags fastembed")
}

// Dimension returns 0.
func (FastEmbed) Dimension() int { return 0 }

// EmbedMany always fails.
func (FastEmbed) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperror.Config("fastembed support not included")
}
