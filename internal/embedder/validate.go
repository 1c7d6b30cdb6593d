package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/docrank/internal/config"
)

// knownChatModelPrefixes contains name fragments that identify chat or
// completion models, which are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel reports whether model resembles a known chat model
// rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check of the embedding environment. It returns an
// error for configurations that cannot work and logs warnings for ones that
// probably will not work well. Call it before NewFromEnv so a broken setup
// fails at startup rather than on the first collection.
func Validate(log *slog.Logger) error {
	backend := strings.ToLower(config.EnvOr("EMBEDDING_PROVIDER", BackendOllama))
	model := config.EnvOr("EMBEDDING_MODEL", "")

	switch backend {
	case BackendOllama:
	case BackendTFIDF:
		if model != "" {
			log.Warn("embedder: EMBEDDING_MODEL is ignored by the tfidf backend",
				slog.String("model", model),
			)
		}
		return nil

	case BackendOpenAI:
		if config.EnvOr("EMBEDDING_API_KEY", config.EnvOr("OPENAI_API_KEY", "")) == "" {
			return fmt.Errorf("embedder: no OpenAI API key found — set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}

	case BackendAzure:
		if config.EnvOr("EMBEDDING_API_KEY", config.EnvOr("AZURE_OPENAI_API_KEY", "")) == "" {
			return fmt.Errorf("embedder: no Azure API key found — set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if config.EnvOr("EMBEDDING_ENDPOINT", config.EnvOr("AZURE_OPENAI_ENDPOINT", "")) == "" {
			return fmt.Errorf("embedder: no Azure endpoint found — set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}

	default:
		return fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure, tfidf", backend)
	}

	if config.EnvFloat("EMBEDDING_RPS", 0) < 0 {
		return fmt.Errorf("embedder: EMBEDDING_RPS must not be negative")
	}

	if model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model — "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. all-minilm, text-embedding-3-small"),
		)
	}

	return nil
}
