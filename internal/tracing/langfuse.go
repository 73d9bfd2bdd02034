// Package tracing sends Eino chain and chat model spans to Langfuse when it
// is configured.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/ragdemo-go/internal/version"
)

// Config is the Langfuse connection resolved from the environment.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY. ok is false when either key is missing.
func ConfigFromEnv() (cfg Config, ok bool) {
	cfg = Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return cfg, false
	}
	if cfg.Host == "" {
		cfg.Host = "http://localhost:3000"
	}
	return cfg, true
}

// Setup registers the Langfuse handler as a global Eino callback when the
// keys are set. The returned flush function must run before process exit so
// buffered traces are sent; it is a no-op when tracing is disabled.
func Setup(log *slog.Logger) (flush func()) {
	cfg, ok := ConfigFromEnv()
	if !ok {
		log.Debug("tracing: langfuse disabled, LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set")
		return func() {}
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "ragdemo",
		Release:   version.Version,
	})
	callbacks.AppendGlobalHandlers(handler)

	log.Info("tracing: langfuse enabled", slog.String("host", cfg.Host))
	return flusher
}
