package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/ragdemo-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-ada-002"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-ada-002
	// and text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Settings is the resolved embedding configuration.
type Settings struct {
	// Backend is one of ollama, openai, azure.
	Backend string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Dimensions is the expected vector size. Used to size Qdrant
	// collections; only sent to the API when EMBEDDING_DIMENSIONS is set.
	Dimensions int
	// RequestDimensions is the explicit dimension override sent to the API.
	RequestDimensions int
	// APIKey is the credential for openai / azure.
	APIKey string
	// Endpoint is the API base URL or Ollama host.
	Endpoint string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
}

// SettingsFromEnv resolves embedding settings using cascading defaults that
// inherit from the chat provider configuration when embedding-specific
// overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER: if unset, inherits MODEL_PROVIDER (default: openai)
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL: overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY: overrides the inherited API key
//  5. EMBEDDING_ENDPOINT: overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS: overrides the default dimensions (ollama: 768, openai/azure: 1536)
//
// Chat-only backends (bedrock, gemini) have no embedding implementation;
// set EMBEDDING_PROVIDER explicitly when using them for generation.
func SettingsFromEnv() (*Settings, error) {
	backend := strings.ToLower(getEnv("EMBEDDING_PROVIDER"))
	if backend == "" {
		backend = strings.ToLower(getEnvOrDefault("MODEL_PROVIDER", "openai"))
	}

	override := getEnvInt("EMBEDDING_DIMENSIONS", 0)
	s := &Settings{Backend: backend, RequestDimensions: override}

	switch backend {
	case "ollama":
		s.Endpoint = getEnv("EMBEDDING_ENDPOINT")
		if s.Endpoint == "" {
			s.Endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		s.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
		s.Dimensions = defaultOllamaDimensions

	case "openai":
		s.APIKey = firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("OPENAI_API_KEY"))
		s.Endpoint = getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1")
		s.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		s.Dimensions = defaultOpenAIDimensions

	case "azure":
		s.APIKey = firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("AZURE_OPENAI_API_KEY"))
		s.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), getEnv("AZURE_OPENAI_ENDPOINT"))
		s.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		s.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		s.Dimensions = defaultOpenAIDimensions

	case "bedrock", "gemini":
		return nil, fmt.Errorf("embedder: %s has no embedding support; set EMBEDDING_PROVIDER to ollama, openai, or azure", backend)

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid values: ollama, openai, azure)", backend)
	}

	if override > 0 {
		s.Dimensions = override
	}
	return s, nil
}

// Validate checks that the settings carry the credentials their backend needs.
func (s *Settings) Validate() error {
	switch s.Backend {
	case "openai":
		if s.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if s.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if s.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "ollama":
		if s.Endpoint == "" {
			return fmt.Errorf("embedder: ollama requires OLLAMA_HOST or EMBEDDING_ENDPOINT")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q", s.Backend)
	}
	return nil
}

// New constructs the rag.Embedder described by s.
func New(s *Settings) (rag.Embedder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	switch s.Backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{Host: s.Endpoint, Model: s.Model}), nil
	case "azure":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint,
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.RequestDimensions,
			Azure:      true,
			APIVersion: s.APIVersion,
		}), nil
	default:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint,
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.RequestDimensions,
		}), nil
	}
}

// NewFromEnv resolves settings from the environment and constructs the
// matching embedder.
func NewFromEnv() (rag.Embedder, *Settings, error) {
	s, err := SettingsFromEnv()
	if err != nil {
		return nil, nil, err
	}
	emb, err := New(s)
	if err != nil {
		return nil, nil, err
	}
	return emb, s, nil
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
