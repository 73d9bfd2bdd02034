package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/54b3r/ragdemo-go/internal/rag"
)

// chunk builds a test chunk with a readable ID.
func chunk(id, content string) rag.Chunk {
	return rag.Chunk{ID: id, Content: content, Metadata: rag.Metadata{Source: id + ".txt"}}
}

// newTestIndex returns an index with three 2-d entries.
func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix := New(Meta{EmbeddingModel: "test-embed", ChunkSize: 1000, ChunkOverlap: 100})
	err := ix.Upsert(t.Context(),
		[]rag.Chunk{chunk("east", "points east"), chunk("north", "points north"), chunk("ne", "points north-east")},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return ix
}

// ---------------------------------------------------------------------------
// Upsert / Search
// ---------------------------------------------------------------------------

func TestSearch_OrdersBySimilarity(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t)
	hits, err := ix.Search(t.Context(), []float32{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.ID != "east" || hits[1].Chunk.ID != "ne" {
		t.Errorf("unexpected order: %s, %s", hits[0].Chunk.ID, hits[1].Chunk.ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("scores not descending: %v, %v", hits[0].Score, hits[1].Score)
	}
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	ix := New(Meta{})
	chunks := []rag.Chunk{chunk("first", "a"), chunk("other", "b"), chunk("second", "c"), chunk("third", "d")}
	vecs := [][]float32{{1, 0}, {0, 1}, {2, 0}, {3, 0}}
	if err := ix.Upsert(t.Context(), chunks, vecs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := ix.Search(t.Context(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, h := range hits {
		if h.Chunk.ID != want[i] {
			t.Errorf("hit %d: got %s, want %s", i, h.Chunk.ID, want[i])
		}
	}
}

func TestSearch_TopKBounds(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t)

	hits, err := ix.Search(t.Context(), []float32{1, 0}, 10)
	if err != nil || len(hits) != 3 {
		t.Errorf("topK larger than index: got %d hits, err %v", len(hits), err)
	}

	hits, err = ix.Search(t.Context(), []float32{1, 0}, 0)
	if err != nil || len(hits) != 0 {
		t.Errorf("topK 0: got %d hits, err %v", len(hits), err)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t)
	if _, err := ix.Search(t.Context(), []float32{1, 0, 0}, 1); err == nil {
		t.Error("expected error for 3-d query against 2-d index")
	}
}

func TestUpsert_RejectsBadInput(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t)
	if err := ix.Upsert(t.Context(), []rag.Chunk{chunk("x", "x")}, nil); err == nil {
		t.Error("expected error for mismatched lengths")
	}
	if err := ix.Upsert(t.Context(), []rag.Chunk{chunk("x", "x")}, [][]float32{{1, 2, 3}}); err == nil {
		t.Error("expected error for wrong dimensionality")
	}
	if ix.Len() != 3 {
		t.Errorf("rejected batch must not be applied, len=%d", ix.Len())
	}
}

// ---------------------------------------------------------------------------
// Save / Load
// ---------------------------------------------------------------------------

func TestSaveLoad_PreservesSearchResults(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "vector_store_index", "faiss_index")
	ix := newTestIndex(t)
	if err := ix.Save(t.Context(), dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != ix.Len() {
		t.Fatalf("want %d entries, got %d", ix.Len(), loaded.Len())
	}

	meta := loaded.Meta()
	if meta.EmbeddingModel != "test-embed" || meta.Dimensions != 2 || meta.ChunkSize != 1000 || meta.ChunkOverlap != 100 {
		t.Errorf("meta not preserved: %+v", meta)
	}
	if meta.BuiltAt.IsZero() {
		t.Error("built_at not recorded")
	}

	query := []float32{0.2, 1}
	want, _ := ix.Search(t.Context(), query, 3)
	got, err := loaded.Search(t.Context(), query, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := range want {
		if got[i].Chunk != want[i].Chunk || got[i].Score != want[i].Score {
			t.Errorf("hit %d differs after reload: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestSave_ReplacesPreviousIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := newTestIndex(t).Save(t.Context(), dir); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	w := NewWriter(dir, Meta{EmbeddingModel: "v2"})
	if err := w.Upsert(t.Context(), []rag.Chunk{chunk("only", "only")}, [][]float32{{0, 1}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := w.Commit(t.Context()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	loaded, err := Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != 1 || loaded.Meta().EmbeddingModel != "v2" {
		t.Errorf("old index not replaced: len=%d meta=%+v", loaded.Len(), loaded.Meta())
	}
	if _, err := os.Stat(filepath.Join(dir, FileName+".tmp")); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestLoad_MissingIndex(t *testing.T) {
	t.Parallel()

	_, err := Load(t.Context(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, rag.ErrIndexUnavailable) {
		t.Errorf("want ErrIndexUnavailable, got %v", err)
	}
}

func TestLoad_CorruptIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("definitely not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(t.Context(), dir)
	if !errors.Is(err, rag.ErrIndexUnavailable) {
		t.Errorf("want ErrIndexUnavailable, got %v", err)
	}
}

func TestVectorCodec(t *testing.T) {
	t.Parallel()

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
	v := []float32{-1.5, 0, 3.25}
	got, err := decodeVector(encodeVector(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("component %d: got %v, want %v", i, got[i], v[i])
		}
	}
}
