package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragdemo-go/internal/config"
	"github.com/54b3r/ragdemo-go/internal/embedder"
	"github.com/54b3r/ragdemo-go/internal/index"
	"github.com/54b3r/ragdemo-go/internal/pipeline"
	"github.com/54b3r/ragdemo-go/internal/provider"
	"github.com/54b3r/ragdemo-go/internal/rag"
)

// newEmbedder constructs the embedding client. When reg is non-nil the
// client is wrapped with Prometheus instrumentation.
func newEmbedder(s *embedder.Settings, reg prometheus.Registerer) (rag.Embedder, error) {
	emb, err := embedder.New(s)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	if reg == nil {
		return emb, nil
	}
	return embedder.NewInstrumented(emb, reg, s.Backend, s.Model), nil
}

// newQdrantStore connects to the Qdrant collection named by rt.
func newQdrantStore(rt *config.Runtime, dims int) (*rag.QdrantStore, error) {
	return rag.NewQdrantStore(&rag.QdrantConfig{
		Host:       rt.QdrantHost,
		Port:       rt.QdrantPort,
		Collection: rt.QdrantCollection,
		VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
		APIKey:     rt.QdrantAPIKey,
		UseTLS:     rt.QdrantTLS,
	})
}

// openStore opens the persisted index for querying. A missing or corrupt
// index is reported as rag.ErrIndexUnavailable.
func openStore(ctx context.Context, rt *config.Runtime, dims int, log *slog.Logger) (rag.VectorStore, *rag.QdrantStore, error) {
	switch rt.IndexBackend {
	case config.BackendQdrant:
		qs, err := newQdrantStore(rt, dims)
		if err != nil {
			return nil, nil, err
		}
		if err := qs.Open(ctx); err != nil {
			_ = qs.Close()
			return nil, nil, err
		}
		log.Info("index: qdrant collection opened",
			slog.String("host", rt.QdrantHost),
			slog.String("collection", rt.QdrantCollection),
		)
		return qs, qs, nil
	default:
		ix, err := index.Load(ctx, rt.IndexPath)
		if err != nil {
			return nil, nil, err
		}
		meta := ix.Meta()
		log.Info("index: loaded",
			slog.String("path", rt.IndexPath),
			slog.Int("chunks", ix.Len()),
			slog.String("embedding_model", meta.EmbeddingModel),
			slog.Time("built_at", meta.BuiltAt),
		)
		return ix, nil, nil
	}
}

// app bundles the objects the question-answering commands share.
type app struct {
	// pipeline answers questions. Never nil once newApp succeeds.
	pipeline *pipeline.Pipeline
	// embedder is the (possibly instrumented) embedding client.
	embedder rag.Embedder
	// qdrant is set when the qdrant backend is in use, for health probes.
	qdrant *rag.QdrantStore
	// store is the open vector store, nil when no index is available.
	store rag.VectorStore
}

// Close releases the vector store.
func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// newApp wires the chat model, embedder, index and pipeline. An unavailable
// index is not an error: the pipeline is returned without a retriever and
// Ready reports false.
func newApp(ctx context.Context, s *settings, reg prometheus.Registerer, log *slog.Logger) (*app, error) {
	chatModel, err := newChatModel(ctx, s.provider, log)
	if err != nil {
		return nil, err
	}

	emb, err := newEmbedder(s.embed, reg)
	if err != nil {
		return nil, err
	}

	a := &app{embedder: emb}

	var retriever rag.Retriever
	store, qs, err := openStore(ctx, s.runtime, s.embed.Dimensions, log)
	switch {
	case errors.Is(err, rag.ErrIndexUnavailable):
		log.Warn("index: not available", slog.Any("error", err))
	case err != nil:
		return nil, err
	default:
		a.store, a.qdrant = store, qs
		r, err := rag.NewRetriever(emb, store, s.runtime.TopK)
		if err != nil {
			a.Close()
			return nil, err
		}
		retriever = r
	}

	p, err := pipeline.New(ctx, &pipeline.Config{
		Retriever:        retriever,
		ChatModel:        chatModel,
		TopK:             s.runtime.TopK,
		MaxContextTokens: s.runtime.MaxContextTokens,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p
	return a, nil
}

// newChatModel constructs the chat model for the configured backend.
func newChatModel(ctx context.Context, cfg *provider.Config, log *slog.Logger) (model.BaseChatModel, error) {
	cm, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(cfg.Backend)),
		slog.String("model", cfg.ModelName()),
	)
	return cm, nil
}
