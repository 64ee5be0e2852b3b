package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/richinex/musicbi/internal/apperror"
)

// DefaultGeminiModel is the embedding model used when none is configured.
const DefaultGeminiModel = "text-embedding-004"

// Gemini embeds text through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGemini creates a Gemini embedder.
func NewGemini(ctx context.Context, apiKey, model string, dim int) (*Gemini, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	if dim <= 0 {
		dim = 768
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfig, "gemini embeddings client", err)
	}
	return &Gemini{client: client, model: model, dim: dim}, nil
}

// Dimension returns the configured vector length.
func (e *Gemini) Dimension() int {
	return e.dim
}

// EmbedMany embeds texts in one batch request.
func (e *Gemini) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	dim := int32(e.dim)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, apperror.Transient("gemini embeddings", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, apperror.Internal("gemini embeddings", fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts)))
	}
	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

var _ Embedder = (*Gemini)(nil)
