package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written alongside every Qdrant point.
const (
	payloadContent    = "content"
	payloadSource     = "source"
	payloadPage       = "page"
	payloadStartIndex = "start_index"
	payloadSeq        = "seq"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use (default: ragdemo).
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection. It is the
// remote alternative to the local index: the collection plays the role of
// the persisted index directory.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// seq numbers points in insertion order so equal scores can be ordered
	// the same way the local index orders them.
	seq int64
}

// NewQdrantStore connects to Qdrant and returns a store for cfg.Collection.
// It does not create or check the collection; use Reset before a build and
// Open before querying.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "ragdemo"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client, cfg: cfg}, nil
}

// Client exposes the underlying gRPC client for health probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// Reset drops the collection if it exists and recreates it empty. The index
// is always rebuilt wholesale, never updated in place.
func (s *QdrantStore) Reset(ctx context.Context) error {
	if s.cfg.VectorSize == 0 {
		return fmt.Errorf("qdrant: vector size must be set before creating %q", s.cfg.Collection)
	}

	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to drop collection %q: %w", s.cfg.Collection, err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	s.seq = 0

	return nil
}

// Open verifies that a previously built collection exists. A missing
// collection or an unreachable server is reported as ErrIndexUnavailable.
func (s *QdrantStore) Open(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("%w: qdrant: %w", ErrIndexUnavailable, err)
	}
	if !exists {
		return fmt.Errorf("%w: qdrant collection %q does not exist", ErrIndexUnavailable, s.cfg.Collection)
	}
	return nil
}

// Upsert writes a batch of chunks with their embeddings as Qdrant points.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("qdrant: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		payload := map[string]any{
			payloadContent:    c.Content,
			payloadSource:     c.Metadata.Source,
			payloadStartIndex: int64(c.StartIndex),
			payloadSeq:        s.seq,
		}
		if c.Metadata.Page > 0 {
			payload[payloadPage] = int64(c.Metadata.Page)
		}
		s.seq++

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Commit is a no-op: points are durable once Upsert returns.
func (s *QdrantStore) Commit(context.Context) error { return nil }

// tieSlack is how many points beyond topK are fetched so that points tied
// with the last kept score can be re-ordered by insertion before truncating.
// Ties reaching further than this follow Qdrant's own order.
const tieSlack = 16

// Search performs a cosine similarity search and returns the top-k results.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	limit := uint64(topK + tieSlack) //nolint:gosec // topK is positive
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}
	return rankPoints(results, topK), nil
}

// rankPoints orders points by descending score, breaking ties by insertion
// sequence, and keeps the first topK.
func rankPoints(points []*qdrant.ScoredPoint, topK int) []Hit {
	type ranked struct {
		hit Hit
		seq int64
	}
	out := make([]ranked, 0, len(points))
	for _, r := range points {
		h := Hit{Chunk: Chunk{ID: r.GetId().GetUuid()}, Score: r.GetScore()}
		var seq int64
		if p := r.GetPayload(); p != nil {
			h.Chunk.Content = p[payloadContent].GetStringValue()
			h.Chunk.Metadata.Source = p[payloadSource].GetStringValue()
			h.Chunk.Metadata.Page = int(p[payloadPage].GetIntegerValue())
			h.Chunk.StartIndex = int(p[payloadStartIndex].GetIntegerValue())
			seq = p[payloadSeq].GetIntegerValue()
		}
		out = append(out, ranked{hit: h, seq: seq})
	}

	slices.SortStableFunc(out, func(a, b ranked) int {
		if c := cmp.Compare(b.hit.Score, a.hit.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	hits := make([]Hit, 0, min(topK, len(out)))
	for _, r := range out[:min(topK, len(out))] {
		hits = append(hits, r.hit)
	}
	return hits
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
