package embedder

import (
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If EMBEDDING_MODEL matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the index build.
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

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Preflight resolves the embedding settings from the environment and checks
// that they are usable before any document is read or any request is
// served. It returns an error if the configuration is clearly broken (e.g.
// openai embedder with no API key), and logs a warning if the embedding
// model looks like a chat model rather than an embedding model.
//
// Call it at startup so operators get a clear error instead of a cryptic
// failure during the first embed call.
func Preflight(log *slog.Logger) (*Settings, error) {
	s, err := SettingsFromEnv()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	// Warn if the resolved backend was inherited rather than chosen.
	if os.Getenv("EMBEDDING_PROVIDER") == "" && os.Getenv("MODEL_PROVIDER") != "" {
		log.Debug("embedder: EMBEDDING_PROVIDER not set, inheriting MODEL_PROVIDER",
			slog.String("backend", s.Backend),
		)
	}

	if looksLikeChatModel(s.Model) {
		log.Warn("embedder: embedding model looks like a chat model, not an embedding model; "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", s.Model),
			slog.String("hint", "use a dedicated embedding model e.g. text-embedding-ada-002, nomic-embed-text"),
		)
	}

	return s, nil
}
