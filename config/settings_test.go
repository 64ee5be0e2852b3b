package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/richinex/musicbi/internal/apperror"
)

func TestNewValidProvider(t *testing.T) {
	settings, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", settings.LLM.Provider)
	}
}

func TestNewWithAlias(t *testing.T) {
	settings, err := New("claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
}

func TestNewProviderFromEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	settings, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "gemini" {
		t.Errorf("expected provider 'gemini', got %q", settings.LLM.Provider)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("unknown_provider")
	if !apperror.HasCode(err, apperror.CodeConfig) {
		t.Errorf("expected CONFIG error for unknown provider, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	for _, key := range []string{"EMBEDDING_BACKEND", "VECTOR_BACKEND", "CHUNK_STORE", "KNOWLEDGE_TOP_K", "LOG_LEVEL", "AGENT_MAX_ITERATIONS"} {
		t.Setenv(key, "")
	}
	s, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Embedding.Backend != "hash" || s.Vector.Backend != "memory" || s.ChunkStore.Backend != "memory" {
		t.Errorf("unexpected backends: %+v %+v %+v", s.Embedding, s.Vector, s.ChunkStore)
	}
	if s.Knowledge.TopK != 5 {
		t.Errorf("expected top k 5, got %d", s.Knowledge.TopK)
	}
	if s.Agent.MaxIterations != 10 {
		t.Errorf("expected 10 iterations, got %d", s.Agent.MaxIterations)
	}
	if s.LLM.Temperature != 0 {
		t.Errorf("expected temperature 0, got %v", s.LLM.Temperature)
	}
}

func TestNewInvalidEnv(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"LLM_MAX_TOKENS", "not-a-number"},
		{"LLM_TEMPERATURE", "warm"},
		{"AGENT_MAX_ITERATIONS", "0"},
		{"ROUTER_QUIET", "maybe"},
		{"EMBEDDING_BACKEND", "word2vec"},
		{"EMBEDDING_DIM", "-3"},
		{"VECTOR_BACKEND", "faiss"},
		{"CHUNK_STORE", "s3"},
		{"KNOWLEDGE_TOP_K", "zero"},
		{"LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := New("openai")
			if !apperror.HasCode(err, apperror.CodeConfig) {
				t.Errorf("expected CONFIG error for %s=%q, got %v", tt.key, tt.value, err)
			}
		})
	}
}

func TestPGVectorRequiresURL(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "pgvector")
	t.Setenv("PGVECTOR_URL", "")
	if _, err := New("openai"); err == nil {
		t.Error("expected error when PGVECTOR_URL is missing")
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("QDRANT_API_KEY", "secret")
	s, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "musicbi.yaml")
	content := `llm:
  provider: claude
vector:
  backend: qdrant
  qdrant_url: http://qdrant:6333
knowledge:
  top_k: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", s.LLM.Provider)
	}
	if s.Vector.Backend != "qdrant" || s.Vector.QdrantURL != "http://qdrant:6333" {
		t.Errorf("unexpected vector config: %+v", s.Vector)
	}
	if s.Vector.QdrantAPIKey != "secret" {
		t.Error("API key from env should survive the file overlay")
	}
	if s.Knowledge.TopK != 3 {
		t.Errorf("expected top k 3, got %d", s.Knowledge.TopK)
	}
	if s.ChunkStore.Backend != "memory" {
		t.Errorf("unset keys should keep their values, got %q", s.ChunkStore.Backend)
	}
}

func TestLoadFileErrors(t *testing.T) {
	s, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !apperror.HasCode(err, apperror.CodeConfig) {
		t.Errorf("expected CONFIG error for missing file, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("vector:\n  backend: faiss\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadFile(path); !apperror.HasCode(err, apperror.CodeConfig) {
		t.Errorf("expected CONFIG error for invalid backend, got %v", err)
	}
}

func TestAPIKeyForValidProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	key, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := APIKeyFor("openai")
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	_, err := APIKeyFor("unknown")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestAPIKeyForLocalProvider(t *testing.T) {
	key, err := APIKeyFor("local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "" {
		t.Errorf("expected no key for ollama, got %q", key)
	}
}

func TestModelFor(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	model, err := ModelFor("google")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gemini-2.5-pro" {
		t.Errorf("expected model from env, got %q", model)
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	MustNew("unknown_provider")
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if len(providers) != 5 || providers[0] != "anthropic" {
		t.Errorf("unexpected providers: %v", providers)
	}
}
