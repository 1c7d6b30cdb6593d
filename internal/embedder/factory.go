package embedder

import (
	"fmt"
	"strings"

	"github.com/54b3r/docrank/internal/budget"
	"github.com/54b3r/docrank/internal/config"
	"github.com/54b3r/docrank/internal/rank"
)

// Backend names accepted by EMBEDDING_PROVIDER.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
	BackendTFIDF  = "tfidf"
)

// Default embedding models per backend.
const (
	// defaultOllamaModel is MiniLM, a small sentence-embedding model.
	defaultOllamaModel = "all-minilm"
	defaultOpenAIModel = "text-embedding-3-small"

	defaultOllamaHost      = "http://localhost:11434"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultAzureAPIVersion = "2025-04-01-preview"
)

// NewFromEnv constructs the embedder selected by the environment.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER: ollama (default), openai, azure, tfidf
//  2. EMBEDDING_MODEL: overrides the backend's default model
//  3. EMBEDDING_API_KEY: overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY
//  4. EMBEDDING_ENDPOINT: overrides OLLAMA_HOST / AZURE_OPENAI_ENDPOINT
//  5. EMBEDDING_DIMENSIONS: requested vector size (openai/azure only)
//
// Remote backends are wrapped with request batching (EMBEDDING_BATCH_TOKENS,
// EMBEDDING_BATCH_SIZE) and, when EMBEDDING_RPS > 0, rate limiting. The
// tfidf backend is never batched: its vocabulary is built per call.
func NewFromEnv() (rank.Embedder, error) {
	backend := strings.ToLower(config.EnvOr("EMBEDDING_PROVIDER", BackendOllama))

	var base rank.Embedder
	switch backend {
	case BackendTFIDF:
		return NewTFIDFEmbedder(), nil

	case BackendOllama:
		host := config.EnvOr("EMBEDDING_ENDPOINT", config.EnvOr("OLLAMA_HOST", defaultOllamaHost))
		base = NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: config.EnvOr("EMBEDDING_MODEL", defaultOllamaModel),
		})

	case BackendOpenAI:
		apiKey := config.EnvOr("EMBEDDING_API_KEY", config.EnvOr("OPENAI_API_KEY", ""))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		base = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    config.EnvOr("EMBEDDING_ENDPOINT", defaultOpenAIBaseURL),
			APIKey:     apiKey,
			Model:      config.EnvOr("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: config.EnvInt("EMBEDDING_DIMENSIONS", 0),
		})

	case BackendAzure:
		apiKey := config.EnvOr("EMBEDDING_API_KEY", config.EnvOr("AZURE_OPENAI_API_KEY", ""))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := config.EnvOr("EMBEDDING_ENDPOINT", config.EnvOr("AZURE_OPENAI_ENDPOINT", ""))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		base = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(endpoint, "/") + "/openai",
			APIKey:     apiKey,
			Model:      config.EnvOr("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: config.EnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: config.EnvOr("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion),
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure, tfidf", backend)
	}

	if rps := config.EnvFloat("EMBEDDING_RPS", 0); rps > 0 {
		base = NewLimited(base, rps)
	}
	return NewBatched(base,
		config.EnvInt("EMBEDDING_BATCH_TOKENS", budget.DefaultBatchTokens),
		config.EnvInt("EMBEDDING_BATCH_SIZE", budget.DefaultBatchSize),
	), nil
}
