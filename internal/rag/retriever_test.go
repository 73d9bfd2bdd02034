package rag

import (
	"context"
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeEmbedder returns a fixed vector per text, or err when set.
type fakeEmbedder struct {
	vec []float32
	err error
	// calls records the texts passed to Embed.
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// fakeStore records the last search and returns canned hits.
type fakeStore struct {
	hits    []Hit
	err     error
	gotTopK int
	gotVec  []float32
}

func (f *fakeStore) Upsert(context.Context, []Chunk, [][]float32) error { return nil }
func (f *fakeStore) Close() error                                       { return nil }

func (f *fakeStore) Search(_ context.Context, q []float32, topK int) ([]Hit, error) {
	f.gotVec = q
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// ---------------------------------------------------------------------------
// NewRetriever
// ---------------------------------------------------------------------------

func TestNewRetriever_NilDeps(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, &fakeStore{}, 3); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 3); err == nil {
		t.Error("expected error for nil store")
	}
}

// ---------------------------------------------------------------------------
// Retrieve
// ---------------------------------------------------------------------------

func TestRetrieve_EmbedsQueryAndSearches(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{vec: []float32{1, 0}}
	store := &fakeStore{hits: []Hit{{Chunk: Chunk{Content: "a"}, Score: 0.9}}}

	r, err := NewRetriever(emb, store, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	hits, err := r.Retrieve(t.Context(), "what is a?", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.Content != "a" {
		t.Errorf("unexpected hits: %+v", hits)
	}
	if store.gotTopK != 3 {
		t.Errorf("want default topK 3, got %d", store.gotTopK)
	}
	if len(emb.calls) != 1 || emb.calls[0][0] != "what is a?" {
		t.Errorf("query was not embedded: %+v", emb.calls)
	}
}

func TestRetrieve_ExplicitTopK(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	r, _ := NewRetriever(&fakeEmbedder{vec: []float32{1}}, store, 3)

	if _, err := r.Retrieve(t.Context(), "q", 7); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.gotTopK != 7 {
		t.Errorf("want topK 7, got %d", store.gotTopK)
	}
}

func TestRetrieve_PropagatesErrors(t *testing.T) {
	t.Parallel()

	embErr := errors.New("embedding api down")
	r, _ := NewRetriever(&fakeEmbedder{err: embErr}, &fakeStore{}, 3)
	if _, err := r.Retrieve(t.Context(), "q", 1); !errors.Is(err, embErr) {
		t.Errorf("want embed error, got %v", err)
	}

	r, _ = NewRetriever(&fakeEmbedder{vec: []float32{1}}, &fakeStore{err: ErrIndexUnavailable}, 3)
	if _, err := r.Retrieve(t.Context(), "q", 1); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("want ErrIndexUnavailable, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// ChunkID
// ---------------------------------------------------------------------------

func TestChunkID_Deterministic(t *testing.T) {
	t.Parallel()

	meta := Metadata{Source: "guide.pdf", Page: 2}
	a := ChunkID(meta, 900)
	b := ChunkID(meta, 900)
	if a != b {
		t.Errorf("same input produced different IDs: %s vs %s", a, b)
	}
	if a == ChunkID(meta, 901) {
		t.Error("different offsets produced the same ID")
	}
	if a == ChunkID(Metadata{Source: "guide.pdf", Page: 3}, 900) {
		t.Error("different pages produced the same ID")
	}
	if len(a) != 36 {
		t.Errorf("want canonical UUID string, got %q", a)
	}
}
