//go:build fastembed

package embedding

import (
	"context"
	"fmt"
	"runtime"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/richinex/musicbi/internal/apperror"
)

// FastEmbed runs a local ONNX model (BGE small, 384 dims by default).
type FastEmbed struct {
	m   *fastembed.FlagEmbedding
	dim int
	bs  int
}

// NewFastEmbed loads the model into cacheDir, downloading it on first use.
func NewFastEmbed(cacheDir string, batchSize int) (*FastEmbed, error) {
	if cacheDir == "" {
		cacheDir = ".fastembed"
	}
	m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:    fastembed.BGESmallENV15,
		CacheDir: cacheDir,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfig, "fastembed init", err)
	}
	bs := 64
	if batchSize > 0 {
		bs = batchSize
	}
	if bs > 4*runtime.GOMAXPROCS(0) {
		bs = 4 * runtime.GOMAXPROCS(0)
	}
	return &FastEmbed{m: m, dim: 384, bs: bs}, nil
}

// Dimension returns 384.
func (e *FastEmbed) Dimension() int {
	return e.dim
}

// EmbedMany embeds texts as passages. The same prefix applies to queries
// so that batch and single embeddings of one text agree.
func (e *FastEmbed) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := e.m.PassageEmbed(texts, e.bs)
	if err != nil {
		return nil, fmt.Errorf("passage embed: %w", err)
	}
	return out, nil
}

// Close frees the ONNX session.
func (e *FastEmbed) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}

var _ Embedder = (*FastEmbed)(nil)
