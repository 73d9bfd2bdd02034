// Package index implements the local vector index: an in-memory exact
// cosine-similarity index over chunk embeddings that is built once,
// serialised to a directory and loaded wholesale at query time.
//
// The on-disk form is a single SQLite database (index.db) written through
// the pure-Go modernc.org/sqlite driver. Once loaded the index is read-only
// and safe for concurrent readers.
package index

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/54b3r/ragdemo-go/internal/rag"
)

// Meta records how an index was built. It is informational: no
// compatibility check is made against the embedder used at query time.
type Meta struct {
	// EmbeddingModel is the model that produced the stored vectors.
	EmbeddingModel string
	// Dimensions is the vector length, set from the first upserted vector.
	Dimensions int
	// ChunkSize is the chunk size used at build time.
	ChunkSize int
	// ChunkOverlap is the chunk overlap used at build time.
	ChunkOverlap int
	// BuiltAt is when the index was saved.
	BuiltAt time.Time
}

// Index is an in-memory vector index. It implements rag.VectorStore.
type Index struct {
	// mu guards the slices below. Writes only happen during a build.
	mu sync.RWMutex
	// meta describes the build.
	meta Meta
	// chunks and vectors are parallel and kept in insertion order.
	chunks  []rag.Chunk
	vectors [][]float32
	// norms caches the Euclidean norm of each vector.
	norms []float64
}

// New returns an empty index carrying meta.
func New(meta Meta) *Index {
	return &Index{meta: meta}
}

// Meta returns the build metadata.
func (ix *Index) Meta() Meta {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.meta
}

// Len returns the number of entries in the index.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Upsert appends chunks and their embeddings in order. All vectors must share
// the index dimensionality.
func (ix *Index) Upsert(_ context.Context, chunks []rag.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("index: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for i, vec := range embeddings {
		if len(vec) == 0 {
			return fmt.Errorf("index: empty embedding for chunk %s", chunks[i].ID)
		}
		if ix.meta.Dimensions == 0 {
			ix.meta.Dimensions = len(vec)
		}
		if len(vec) != ix.meta.Dimensions {
			return fmt.Errorf("index: embedding for chunk %s has %d dimensions, want %d",
				chunks[i].ID, len(vec), ix.meta.Dimensions)
		}
	}

	for i, vec := range embeddings {
		ix.chunks = append(ix.chunks, chunks[i])
		ix.vectors = append(ix.vectors, vec)
		ix.norms = append(ix.norms, norm(vec))
	}
	return nil
}

// Search returns the topK entries with the highest cosine similarity to
// query, best first. Equal scores keep insertion order. topK <= 0 yields no
// hits; topK larger than the index yields every entry.
func (ix *Index) Search(_ context.Context, query []float32, topK int) ([]rag.Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if topK <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}
	if len(query) != ix.meta.Dimensions {
		return nil, fmt.Errorf("index: query has %d dimensions, index has %d", len(query), ix.meta.Dimensions)
	}

	qn := norm(query)
	hits := make([]rag.Hit, len(ix.chunks))
	for i, vec := range ix.vectors {
		hits[i] = rag.Hit{Chunk: ix.chunks[i], Score: cosine(query, vec, qn, ix.norms[i])}
	}

	slices.SortStableFunc(hits, func(a, b rag.Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// Close is a no-op; the index holds no external resources.
func (ix *Index) Close() error { return nil }

// norm returns the Euclidean length of v.
func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of a and b given their norms.
// A zero vector has similarity 0 with everything.
func cosine(a, b []float32, na, nb float64) float32 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (na * nb))
}
