package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/ragdemo-go/internal/rag"
)

// FileName is the name of the database file inside the index directory.
const FileName = "index.db"

// schema creates the tables of a fresh index database.
var schema = []string{
	`CREATE TABLE meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE entries (
		seq         INTEGER PRIMARY KEY,
		chunk_id    TEXT    NOT NULL,
		source      TEXT    NOT NULL,
		page        INTEGER NOT NULL,
		start_index INTEGER NOT NULL,
		content     TEXT    NOT NULL,
		embedding   BLOB    NOT NULL
	)`,
}

// Meta keys stored in the meta table.
const (
	metaEmbeddingModel = "embedding_model"
	metaDimensions     = "dimensions"
	metaChunkSize      = "chunk_size"
	metaChunkOverlap   = "chunk_overlap"
	metaBuiltAt        = "built_at"
)

// Save writes the index to dir/index.db, replacing any previous index. The
// database is written to a temporary file first and renamed into place, so a
// failed save leaves the previous index intact.
func (ix *Index) Save(ctx context.Context, dir string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: create %s: %w", dir, err)
	}

	final := filepath.Join(dir, FileName)
	tmp := final + ".tmp"
	_ = os.Remove(tmp)

	ix.meta.BuiltAt = time.Now().UTC()
	if err := ix.writeDB(ctx, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("index: install %s: %w", final, err)
	}
	return nil
}

// writeDB creates a new database at path holding every entry.
func (ix *Index) writeDB(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("index: open %s: %w", path, err)
	}
	defer db.Close()

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index: create schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := map[string]string{
		metaEmbeddingModel: ix.meta.EmbeddingModel,
		metaDimensions:     strconv.Itoa(ix.meta.Dimensions),
		metaChunkSize:      strconv.Itoa(ix.meta.ChunkSize),
		metaChunkOverlap:   strconv.Itoa(ix.meta.ChunkOverlap),
		metaBuiltAt:        ix.meta.BuiltAt.Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("index: write meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (seq, chunk_id, source, page, start_index, content, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range ix.chunks {
		_, err := stmt.ExecContext(ctx, i, c.ID, c.Metadata.Source, c.Metadata.Page,
			c.StartIndex, c.Content, encodeVector(ix.vectors[i]))
		if err != nil {
			return fmt.Errorf("index: write entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}

// Load reads a whole index from dir. A missing directory, a missing
// database file or an unreadable database is reported as
// rag.ErrIndexUnavailable.
func Load(ctx context.Context, dir string) (*Index, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", rag.ErrIndexUnavailable, path, err)
	}

	ix, err := readDB(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", rag.ErrIndexUnavailable, path, err)
	}
	return ix, nil
}

// readDB loads every entry of the database at path, in insertion order.
func readDB(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ix := &Index{}
	if err := ix.readMeta(ctx, db); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT chunk_id, source, page, start_index, content, embedding FROM entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c    rag.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Metadata.Source, &c.Metadata.Page, &c.StartIndex, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", c.ID, err)
		}
		if len(vec) != ix.meta.Dimensions {
			return nil, fmt.Errorf("entry %s has %d dimensions, index has %d", c.ID, len(vec), ix.meta.Dimensions)
		}
		ix.chunks = append(ix.chunks, c)
		ix.vectors = append(ix.vectors, vec)
		ix.norms = append(ix.norms, norm(vec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}

	return ix, nil
}

// readMeta populates ix.meta from the meta table.
func (ix *Index) readMeta(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scan meta: %w", err)
		}
		switch k {
		case metaEmbeddingModel:
			ix.meta.EmbeddingModel = v
		case metaDimensions:
			ix.meta.Dimensions, _ = strconv.Atoi(v)
		case metaChunkSize:
			ix.meta.ChunkSize, _ = strconv.Atoi(v)
		case metaChunkOverlap:
			ix.meta.ChunkOverlap, _ = strconv.Atoi(v)
		case metaBuiltAt:
			ix.meta.BuiltAt, _ = time.Parse(time.RFC3339, v)
		}
	}
	return rows.Err()
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector reverses encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("embedding blob length is not a multiple of 4")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Writer adapts an Index to the build sink: chunks are upserted in memory
// and Commit saves the whole index to the directory.
type Writer struct {
	*Index
	// dir is the index directory written on Commit.
	dir string
}

// NewWriter returns a Writer that builds a fresh index for dir.
func NewWriter(dir string, meta Meta) *Writer {
	return &Writer{Index: New(meta), dir: dir}
}

// Commit persists the index.
func (w *Writer) Commit(ctx context.Context) error {
	return w.Save(ctx, w.dir)
}
