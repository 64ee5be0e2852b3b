// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
//
// A YAML settings file can then be layered on top with LoadFile.

package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/richinex/musicbi/internal/apperror"
)

// Settings holds all application configuration.
type Settings struct {
	LLM        LLMConfig        `yaml:"llm"`
	Agent      AgentConfig      `yaml:"agent"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	ChunkStore ChunkStoreConfig `yaml:"chunk_store"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	SQL        SQLConfig        `yaml:"sql"`
	LogLevel   string           `yaml:"log_level"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// BaseURL overrides the endpoint of OpenAI-compatible providers.
	BaseURL string `yaml:"base_url"`
}

// AgentConfig holds agent execution configuration.
type AgentConfig struct {
	MaxIterations int  `yaml:"max_iterations"`
	RouterQuiet   bool `yaml:"router_quiet"`
	// MetricsAgent adds the metrics specialist to the router's tools.
	MetricsAgent bool `yaml:"metrics_agent"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Backend    string `yaml:"backend"` // hash, openai, gemini, ollama, fastembed
	Model      string `yaml:"model"`
	Dim        int    `yaml:"dim"`
	OllamaHost string `yaml:"ollama_host"`
	CacheDir   string `yaml:"cache_dir"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	Backend      string `yaml:"backend"` // memory, pgvector, qdrant
	Collection   string `yaml:"collection"`
	Metric       string `yaml:"metric"`
	PGVectorURL  string `yaml:"pgvector_url"`
	QdrantURL    string `yaml:"qdrant_url"`
	QdrantAPIKey string `yaml:"-"`
}

// ChunkStoreConfig selects where chunk text is kept.
type ChunkStoreConfig struct {
	Backend         string `yaml:"backend"` // memory, sqlite, redis, mongo
	Prefix          string `yaml:"prefix"`
	SqlitePath      string `yaml:"sqlite_path"`
	RedisAddr       string `yaml:"redis_addr"`
	RedisPassword   string `yaml:"-"`
	RedisDB         int    `yaml:"redis_db"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

// KnowledgeConfig configures retrieval.
type KnowledgeConfig struct {
	TopK       int    `yaml:"top_k"`
	CorpusPath string `yaml:"corpus_path"`
}

// SQLConfig locates the database registrations.
type SQLConfig struct {
	// ConfigPath is a YAML or JSON registration file.
	ConfigPath string `yaml:"config_path"`
	// ChinookPath registers the Chinook sample when ConfigPath is empty.
	ChinookPath string `yaml:"chinook_path"`
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string // empty for local providers
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o-mini", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
	"ollama":    {"OLLAMA_MODEL", "llama3.1", ""},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
	"local":  "ollama",
}

var (
	embeddingBackends  = []string{"hash", "openai", "gemini", "ollama", "fastembed"}
	vectorBackends     = []string{"memory", "pgvector", "qdrant"}
	chunkStoreBackends = []string{"memory", "sqlite", "redis", "mongo"}
	logLevels          = []string{"debug", "info", "warn", "error"}
)

// New creates settings for the specified provider, loading values from environment variables.
// An empty provider falls back to LLM_PROVIDER, then openai.
// Returns a CONFIG error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	if provider == "" {
		provider = getEnv("LLM_PROVIDER", "openai")
	}
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	s.LLM.Provider = provider
	s.LLM.Model = getEnv(info.modelEnv, info.defaultModel)
	s.LLM.BaseURL = getEnv("LLM_BASE_URL", "")

	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", 4096); err != nil {
		return Settings{}, err
	}
	// routing wants deterministic tool choice
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", 0); err != nil {
		return Settings{}, err
	}
	if s.Agent.MaxIterations, err = getEnvInt("AGENT_MAX_ITERATIONS", 10); err != nil {
		return Settings{}, err
	}
	if s.Agent.RouterQuiet, err = getEnvBool("ROUTER_QUIET", false); err != nil {
		return Settings{}, err
	}
	if s.Agent.MetricsAgent, err = getEnvBool("ROUTER_METRICS_AGENT", false); err != nil {
		return Settings{}, err
	}

	s.Embedding.Backend = strings.ToLower(getEnv("EMBEDDING_BACKEND", "hash"))
	s.Embedding.Model = os.Getenv("EMBEDDING_MODEL")
	s.Embedding.OllamaHost = os.Getenv("OLLAMA_HOST")
	s.Embedding.CacheDir = getEnv("FASTEMBED_CACHE_DIR", filepath.Join(".musicbi", "models"))
	if s.Embedding.Dim, err = getEnvInt("EMBEDDING_DIM", 0); err != nil {
		return Settings{}, err
	}

	s.Vector.Backend = strings.ToLower(getEnv("VECTOR_BACKEND", "memory"))
	s.Vector.Collection = getEnv("VECTOR_COLLECTION", "knowledge")
	s.Vector.Metric = getEnv("VECTOR_METRIC", "cosine")
	s.Vector.PGVectorURL = os.Getenv("PGVECTOR_URL")
	s.Vector.QdrantURL = os.Getenv("QDRANT_URL")
	s.Vector.QdrantAPIKey = os.Getenv("QDRANT_API_KEY")

	s.ChunkStore.Backend = strings.ToLower(getEnv("CHUNK_STORE", "memory"))
	s.ChunkStore.Prefix = getEnv("CHUNK_PREFIX", "chunks/")
	s.ChunkStore.SqlitePath = getEnv("SQLITE_PATH", filepath.Join(".musicbi", "chunks.db"))
	s.ChunkStore.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	s.ChunkStore.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if s.ChunkStore.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Settings{}, err
	}
	s.ChunkStore.MongoURI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	s.ChunkStore.MongoDatabase = getEnv("MONGO_DATABASE", "musicbi")
	s.ChunkStore.MongoCollection = getEnv("MONGO_COLLECTION", "chunks")

	if s.Knowledge.TopK, err = getEnvInt("KNOWLEDGE_TOP_K", 5); err != nil {
		return Settings{}, err
	}
	s.Knowledge.CorpusPath = os.Getenv("KNOWLEDGE_CORPUS")

	s.SQL.ConfigPath = os.Getenv("SQL_CONFIG")
	s.SQL.ChinookPath = os.Getenv("SQLITE_CHINOOK")

	s.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic("config: " + err.Error())
	}
	return settings
}

// LoadFile overlays the YAML file at path onto s. Keys absent from the
// file keep their current values. Secrets are never read from files.
func (s *Settings) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperror.Wrap(apperror.CodeConfig, "read settings file "+path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return apperror.Wrap(apperror.CodeConfig, "parse settings file "+path, err)
	}
	s.LLM.Provider = normalizeProvider(s.LLM.Provider)
	return s.Validate()
}

// Validate checks enumerated values and numeric ranges.
func (s *Settings) Validate() error {
	if _, err := getProviderInfo(s.LLM.Provider); err != nil {
		return err
	}
	if s.Agent.MaxIterations <= 0 {
		return apperror.Config("agent max iterations must be positive, got %d", s.Agent.MaxIterations)
	}
	if s.Knowledge.TopK <= 0 {
		return apperror.Config("knowledge top k must be positive, got %d", s.Knowledge.TopK)
	}
	if s.Embedding.Dim < 0 {
		return apperror.Config("embedding dimension must not be negative, got %d", s.Embedding.Dim)
	}
	checks := []struct {
		name, value string
		allowed     []string
	}{
		{"EMBEDDING_BACKEND", s.Embedding.Backend, embeddingBackends},
		{"VECTOR_BACKEND", s.Vector.Backend, vectorBackends},
		{"CHUNK_STORE", s.ChunkStore.Backend, chunkStoreBackends},
		{"LOG_LEVEL", s.LogLevel, logLevels},
	}
	for _, c := range checks {
		if !contains(c.allowed, c.value) {
			return apperror.Config("invalid value for %s: %q (want one of %s)", c.name, c.value, strings.Join(c.allowed, ", "))
		}
	}
	if s.Vector.Backend == "pgvector" && s.Vector.PGVectorURL == "" {
		return apperror.Config("PGVECTOR_URL is required for the pgvector backend")
	}
	return nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, apperror.Config("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
// Providers that need no key return "".
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if info.apiKeyEnv == "" {
		return "", nil
	}
	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", apperror.Config("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}
	return getEnv(info.modelEnv, info.defaultModel), nil
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, apperror.Wrap(apperror.CodeConfig, "invalid value for "+key+": "+strconv.Quote(val), err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, apperror.Wrap(apperror.CodeConfig, "invalid value for "+key+": "+strconv.Quote(val), err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, apperror.Wrap(apperror.CodeConfig, "invalid value for "+key+": "+strconv.Quote(val), err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, apperror.Wrap(apperror.CodeConfig, "invalid value for "+key+": "+strconv.Quote(val), err)
	}
	return b, nil
}
