package embedding

import (
	"context"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/richinex/musicbi/internal/apperror"
)

// Ollama defaults.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// Ollama embeds text with a local Ollama server.
type Ollama struct {
	client *ollama.Client
	model  string
	dim    int
}

// NewOllama creates an Ollama embedder. An empty host selects DefaultOllamaHost.
func NewOllama(host, model string, dim int) (*Ollama, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfig, "ollama host", err)
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if dim <= 0 {
		dim = 768
	}
	httpClient := &http.Client{Timeout: 60 * time.Second}
	return &Ollama{
		client: ollama.NewClient(u, httpClient),
		model:  model,
		dim:    dim,
	}, nil
}

// Dimension returns the configured vector length.
func (e *Ollama) Dimension() int {
	return e.dim
}

// EmbedMany embeds texts in one request.
func (e *Ollama) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := e.client.Embed(ctx, &ollama.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, apperror.Transient("ollama embed", err)
	}
	return res.Embeddings, nil
}

var _ Embedder = (*Ollama)(nil)
