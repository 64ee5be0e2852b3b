// Provider construction.
//
//	router, err := llm.ProviderAnthropic.FromEnv()
//	specialist, err := llm.ProviderOpenAI.Model(llm.ModelOpenAIGPT4oMini).Temperature(0).FromEnv()
//	local, err := llm.ProviderOllama.Model("qwen2.5:7b").FromEnv() // no key needed

package llm

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
	// ProviderOllama is a local Ollama server through its OpenAI-compatible API.
	ProviderOllama
)

// DefaultOllamaChatURL is the OpenAI-compatible endpoint of a local Ollama.
const DefaultOllamaChatURL = "http://localhost:11434/v1"

type providerInfo struct {
	name         string
	keyEnv       string // empty when no key is needed
	baseURLEnv   string
	defaultModel string
}

var providerTable = map[ProviderType]providerInfo{
	ProviderOpenAI:    {"openai", "OPENAI_API_KEY", "OPENAI_BASE_URL", ModelOpenAIGPT4oMini},
	ProviderAnthropic: {"anthropic", "ANTHROPIC_API_KEY", "", ModelAnthropicClaudeSonnet4},
	ProviderDeepSeek:  {"deepseek", "DEEPSEEK_API_KEY", "", ModelDeepSeekChat},
	ProviderGemini:    {"gemini", "GEMINI_API_KEY", "", ModelGeminiFlash25},
	ProviderOllama:    {"ollama", "", "OLLAMA_CHAT_URL", ModelOllamaLlama31},
}

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	if info, ok := providerTable[p]; ok {
		return info.name
	}
	return "unknown"
}

// EnvVar returns the environment variable holding this provider's API key,
// or "" when the provider needs none.
func (p ProviderType) EnvVar() string {
	return providerTable[p].keyEnv
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	return providerTable[p].defaultModel
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "ollama", "local":
		return ProviderOllama, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// FromEnv creates a provider with defaults, reading API key from environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	baseURL      string
	maxTokens    uint32
	temperature  *float32
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// BaseURL points OpenAI-compatible providers (openai, ollama) at another
// endpoint. Other providers ignore it.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// FromEnv builds the provider, reading the API key and base URL from the
// environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	info := providerTable[b.providerType]
	if b.baseURL == "" && info.baseURLEnv != "" {
		b.baseURL = os.Getenv(info.baseURLEnv)
	}
	if info.keyEnv == "" {
		return b.build("")
	}
	apiKey := os.Getenv(info.keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", b.providerType, info.keyEnv)
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}

	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	temperature := float32(0) // routing wants deterministic tool choice
	if b.temperature != nil {
		temperature = *b.temperature
	}

	switch b.providerType {
	case ProviderOpenAI:
		if b.baseURL != "" {
			return NewCompatibleProvider("openai", b.baseURL, apiKey, model, maxTokens, temperature), nil
		}
		return NewOpenAIProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderDeepSeek:
		return NewDeepSeekProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderOllama:
		url := b.baseURL
		if url == "" {
			url = DefaultOllamaChatURL
		}
		if apiKey == "" {
			apiKey = "ollama" // ignored by the server, required by the client
		}
		return NewCompatibleProvider("ollama", url, apiKey, model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}
}

// OpenAI model identifiers
const (
	ModelOpenAIGPT4o = "gpt-4o"
	// ModelOpenAIGPT4oMini is cheap and fast, good for specialists.
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
	ModelOpenAIGPT41     = "gpt-4.1"
)

// Anthropic model identifiers
const (
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelAnthropicClaudeHaiku35 = "claude-3-5-haiku-20241022"
)

// DeepSeek model identifiers
const (
	ModelDeepSeekChat = "deepseek-chat"
)

// Gemini model identifiers
const (
	ModelGeminiFlash25 = "gemini-2.5-flash"
	ModelGeminiPro25   = "gemini-2.5-pro"
)

// Ollama model identifiers; any locally pulled model with tool support works.
const (
	ModelOllamaLlama31 = "llama3.1"
)
