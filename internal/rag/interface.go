// Package rag defines the data model and interfaces shared by the
// retrieval-augmented generation components: loaded documents, chunks,
// search hits, vector storage, retrieval, and embedding.
// Concrete implementations (the local SQLite-backed index, Qdrant) satisfy
// these interfaces so the pipeline never depends on a specific backend.
package rag

import (
	"context"
	"errors"
)

// ErrIndexUnavailable is returned when the persisted vector index is missing
// or cannot be read. Callers match it with errors.Is to report a clear
// "not available" result instead of failing hard.
var ErrIndexUnavailable = errors.New("rag: index unavailable")

// Metadata describes where a piece of text came from.
type Metadata struct {
	// Source is the file name the text was loaded from.
	Source string `json:"source"`

	// Page is the 1-based page number for paginated formats (PDF).
	// Zero means the source is not paginated.
	Page int `json:"page,omitempty"`
}

// Document is one unit of raw text produced by the loader: a whole text
// file or a single PDF page. Immutable once loaded.
type Document struct {
	// Content is the document text.
	Content string

	// Metadata identifies the origin of the document.
	Metadata Metadata
}

// Chunk is a bounded, possibly overlapping slice of a Document's text.
type Chunk struct {
	// ID is a deterministic identifier derived from source, page and offset.
	ID string

	// Content is the chunk text.
	Content string

	// Metadata is copied from the parent Document.
	Metadata Metadata

	// StartIndex is the character offset of Content inside the parent Document.
	StartIndex int
}

// Hit is a single search result.
type Hit struct {
	// Chunk is the matching chunk.
	Chunk Chunk

	// Score is the similarity between the query and the chunk (cosine).
	Score float32
}

// VectorStore is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores a batch of chunks with their pre-computed embeddings.
	// The embeddings slice must be parallel to chunks: embeddings[i] is the vector for chunks[i].
	Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error

	// Search returns the topK chunks most similar to the query embedding,
	// best first.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Hit, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the pipeline to fetch
// relevant context for a question. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant chunks for the given query.
	Retrieve(ctx context.Context, query string, topK int) ([]Hit, error)
}
