package embedder

import (
	"context"
	"fmt"
	"strings"
)

// ollamaAPIKey is sent as the Bearer token. Ollama ignores it, but the
// OpenAI client always sets the header.
const ollamaAPIKey = "ollama"

// OllamaEmbedder implements rag.Embedder against Ollama's OpenAI-compatible
// API (/v1/embeddings, /v1/models). It is safe for concurrent use.
type OllamaEmbedder struct {
	// api is the OpenAI client pointed at <host>/v1.
	api *OpenAIEmbedder
	// host is the Ollama server base URL, kept for error messages.
	host string
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	host := strings.TrimRight(cfg.Host, "/")
	return &OllamaEmbedder{
		api: NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL: host + "/v1",
			APIKey:  ollamaAPIKey,
			Model:   cfg.Model,
		}),
		host: host,
	}
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.api.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder (%s): %w", e.host, err)
	}
	return vecs, nil
}

// HealthCheck verifies that the Ollama server is reachable by listing its
// models.
func (e *OllamaEmbedder) HealthCheck(ctx context.Context) error {
	if err := e.api.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ollama embedder (%s): %w", e.host, err)
	}
	return nil
}
