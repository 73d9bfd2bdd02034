package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Index backends accepted by INDEX_BACKEND.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
)

// Runtime holds the typed settings shared by the CLI commands. Provider and
// embedding credentials are resolved by their own packages.
type Runtime struct {
	// DataPath is the directory scanned for documents (DATA_PATH).
	DataPath string
	// IndexPath is the persisted local index directory (INDEX_PATH).
	IndexPath string
	// IndexBackend is local or qdrant (INDEX_BACKEND).
	IndexBackend string

	ChunkSize    int
	ChunkOverlap int
	TopK         int
	BatchSize    int
	// MaxContextTokens caps the prompt size. Negative disables the budget.
	MaxContextTokens int

	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	QdrantAPIKey     string
	QdrantTLS        bool

	ServerHost string
	ServerPort int
	// APIKey is the Bearer token for /ask (RAGDEMO_API_KEY).
	APIKey string
	// RateLimit is the sustained /ask rate per client in questions per
	// second (RATE_LIMIT).
	RateLimit float64
	// RateBurst is the per-client /ask burst (RATE_BURST).
	RateBurst int
}

// RuntimeFromEnv reads Runtime from the environment, filling defaults for
// anything unset. Malformed numbers are reported rather than ignored.
func RuntimeFromEnv() (*Runtime, error) {
	p := &envParser{}
	rt := &Runtime{
		DataPath:         envOr("DATA_PATH", "data"),
		IndexPath:        envOr("INDEX_PATH", "vector_store_index/faiss_index"),
		IndexBackend:     strings.ToLower(envOr("INDEX_BACKEND", BackendLocal)),
		ChunkSize:        p.int("CHUNK_SIZE", 1000),
		ChunkOverlap:     p.int("CHUNK_OVERLAP", 100),
		TopK:             p.int("TOP_K", 3),
		BatchSize:        p.int("BATCH_SIZE", 64),
		MaxContextTokens: p.int("MAX_CONTEXT_TOKENS", 6000),
		QdrantHost:       envOr("QDRANT_HOST", "localhost"),
		QdrantPort:       p.int("QDRANT_PORT", 6334),
		QdrantCollection: envOr("QDRANT_COLLECTION", "ragdemo"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantTLS:        p.bool("QDRANT_TLS"),
		ServerHost:       envOr("RAGDEMO_HOST", "127.0.0.1"),
		ServerPort:       p.int("RAGDEMO_PORT", 8000),
		APIKey:           os.Getenv("RAGDEMO_API_KEY"),
		RateLimit:        p.float("RATE_LIMIT", 10),
		RateBurst:        p.int("RATE_BURST", 20),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return rt, nil
}

// Validate rejects settings that cannot work.
func (r *Runtime) Validate() error {
	var errs []error
	if r.DataPath == "" {
		errs = append(errs, errors.New("config: DATA_PATH must not be empty"))
	}
	switch r.IndexBackend {
	case BackendLocal:
		if r.IndexPath == "" {
			errs = append(errs, errors.New("config: INDEX_PATH must not be empty"))
		}
	case BackendQdrant:
		if r.QdrantCollection == "" {
			errs = append(errs, errors.New("config: QDRANT_COLLECTION must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown INDEX_BACKEND %q (valid values: local, qdrant)", r.IndexBackend))
	}
	if r.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("config: CHUNK_SIZE must be positive, got %d", r.ChunkSize))
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		errs = append(errs, fmt.Errorf("config: CHUNK_OVERLAP must be within [0, CHUNK_SIZE), got %d", r.ChunkOverlap))
	}
	if r.TopK <= 0 {
		errs = append(errs, fmt.Errorf("config: TOP_K must be positive, got %d", r.TopK))
	}
	if r.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("config: BATCH_SIZE must be positive, got %d", r.BatchSize))
	}
	if r.ServerPort < 1 || r.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("config: RAGDEMO_PORT out of range: %d", r.ServerPort))
	}
	if r.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("config: RATE_LIMIT must be positive, got %g", r.RateLimit))
	}
	if r.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("config: RATE_BURST must be positive, got %d", r.RateBurst))
	}
	return errors.Join(errs...)
}

// envOr returns the env var value, or fallback if it is unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envParser collects parse errors so that every bad variable is reported at
// once.
type envParser struct {
	errs []error
}

func (p *envParser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s must be an integer, got %q", key, v))
		return fallback
	}
	return n
}

func (p *envParser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s must be a number, got %q", key, v))
		return fallback
	}
	return f
}

func (p *envParser) bool(key string) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s must be a boolean, got %q", key, v))
		return false
	}
	return b
}
