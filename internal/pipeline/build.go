// Package pipeline orchestrates the two RAG workflows: Build turns a data
// directory into a persisted vector index, and Ask answers a question from
// that index with an Eino chat chain.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/ragdemo-go/internal/chunker"
	"github.com/54b3r/ragdemo-go/internal/logging"
	"github.com/54b3r/ragdemo-go/internal/rag"
)

var (
	// ErrNoDocuments is returned by Build when the data directory holds no
	// readable documents. Nothing is written.
	ErrNoDocuments = errors.New("pipeline: no documents found")

	// ErrNoChunks is returned by Build when the documents produce no chunks
	// (every document is empty). Nothing is written.
	ErrNoChunks = errors.New("pipeline: documents produced no chunks")
)

// DefaultBatchSize is the number of chunks sent to the embedder per call.
const DefaultBatchSize = 64

// DocumentLoader reads the corpus. *loader.Loader satisfies it.
type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]rag.Document, error)
}

// IndexWriter is the sink a build writes into. Upsert receives batches in
// chunk order; Commit makes the result durable. *index.Writer and
// *rag.QdrantStore satisfy it.
type IndexWriter interface {
	Upsert(ctx context.Context, chunks []rag.Chunk, embeddings [][]float32) error
	Commit(ctx context.Context) error
}

// resetter is implemented by sinks that must be cleared before the first
// write (Qdrant drops and recreates its collection).
type resetter interface {
	Reset(ctx context.Context) error
}

// BuildConfig holds the build parameters.
type BuildConfig struct {
	// DataDir is the directory the documents are loaded from.
	DataDir string
	// ChunkSize is the maximum chunk length in characters. Defaults to
	// chunker.DefaultSize if zero.
	ChunkSize int
	// ChunkOverlap is the number of characters shared by consecutive chunks.
	ChunkOverlap int
	// BatchSize is the number of chunks embedded per request. Defaults to
	// DefaultBatchSize if zero.
	BatchSize int
}

// BuildReport summarises a finished build.
type BuildReport struct {
	Documents int
	Chunks    int
	Batches   int
}

// Builder runs the load, chunk, embed and write steps.
type Builder struct {
	loader    DocumentLoader
	splitter  *chunker.Splitter
	embedder  rag.Embedder
	sink      IndexWriter
	dataDir   string
	batchSize int
}

// NewBuilder constructs a Builder. The chunk parameters are validated here
// so a bad configuration fails before any document is read.
func NewBuilder(loader DocumentLoader, embedder rag.Embedder, sink IndexWriter, cfg *BuildConfig) (*Builder, error) {
	if loader == nil {
		return nil, fmt.Errorf("pipeline: loader must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("pipeline: embedder must not be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("pipeline: index writer must not be nil")
	}
	if cfg == nil {
		cfg = &BuildConfig{}
	}

	size := cfg.ChunkSize
	if size == 0 {
		size = chunker.DefaultSize
	}
	splitter, err := chunker.New(size, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	return &Builder{
		loader:    loader,
		splitter:  splitter,
		embedder:  embedder,
		sink:      sink,
		dataDir:   cfg.DataDir,
		batchSize: batch,
	}, nil
}

// Build loads every document, chunks them lazily, embeds the chunks in
// batches and writes them to the sink, committing once at the end. If any
// step fails the sink is not committed. progress, if non-nil, receives
// human-readable status lines.
func (b *Builder) Build(ctx context.Context, progress func(msg string)) (*BuildReport, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)

	docs, err := b.loader.Load(ctx, b.dataDir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, b.dataDir)
	}
	progress(fmt.Sprintf("loaded %d documents from %s", len(docs), b.dataDir))

	report := &BuildReport{Documents: len(docs)}
	batch := make([]rag.Chunk, 0, b.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if report.Batches == 0 {
			if r, ok := b.sink.(resetter); ok {
				if err := r.Reset(ctx); err != nil {
					return fmt.Errorf("pipeline: reset index: %w", err)
				}
			}
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("pipeline: embed batch %d: %w", report.Batches+1, err)
		}
		if err := b.sink.Upsert(ctx, batch, vecs); err != nil {
			return fmt.Errorf("pipeline: write batch %d: %w", report.Batches+1, err)
		}

		report.Batches++
		report.Chunks += len(batch)
		log.Debug("pipeline: batch written",
			slog.Int("batch", report.Batches),
			slog.Int("chunks", len(batch)),
		)
		progress(fmt.Sprintf("embedded %d chunks", report.Chunks))
		batch = batch[:0]
		return nil
	}

	for c := range b.splitter.Split(docs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch = append(batch, c)
		if len(batch) == b.batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if report.Chunks == 0 {
		return nil, ErrNoChunks
	}

	if err := b.sink.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: commit index: %w", err)
	}

	log.Info("pipeline: index built",
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("batches", report.Batches),
		slog.Int("chunk_size", b.splitter.Size()),
		slog.Int("chunk_overlap", b.splitter.Overlap()),
	)
	return report, nil
}
