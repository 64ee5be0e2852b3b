package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/richinex/musicbi/internal/apperror"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAI embeds text through the OpenAI embeddings endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAI creates an OpenAI embedder. dim must match the model output
// (1536 for text-embedding-3-small unless shortened).
func NewOpenAI(apiKey, model string, dim int) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if dim <= 0 {
		dim = 1536
	}
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
		dim:    dim,
	}
}

// Dimension returns the configured vector length.
func (e *OpenAI) Dimension() int {
	return e.dim
}

// EmbedMany embeds texts in a single request.
func (e *OpenAI) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	if e.dim != 1536 {
		req.Dimensions = e.dim
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, apperror.Transient("openai embeddings", err)
	}

	// Data carries an index; place by it rather than trusting response order.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, apperror.Internal("openai embeddings", fmt.Errorf("index %d out of range", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var _ Embedder = (*OpenAI)(nil)
