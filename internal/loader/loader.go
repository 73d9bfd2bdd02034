// Package loader reads the documents that make up the RAG corpus from a
// directory on disk. Plain-text files become one Document each; PDF files
// become one Document per page with a 1-based page number.
//
// A single unreadable file never aborts the load: it is logged and skipped.
// Only a missing data directory is treated as an error.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/ragdemo-go/internal/rag"
)

// ErrDirNotFound is returned when the data directory does not exist or is
// not a directory.
var ErrDirNotFound = errors.New("loader: directory not found")

// readFunc extracts the documents contained in a single file.
type readFunc func(path, name string) ([]rag.Document, error)

// Loader reads supported files from a directory.
type Loader struct {
	// log receives skip warnings and per-file read errors.
	log *slog.Logger

	// readers maps a lower-case file extension to its reader.
	readers map[string]readFunc
}

// New constructs a Loader that understands .txt, .md and .pdf files.
// If log is nil, slog.Default is used.
func New(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		log: log,
		readers: map[string]readFunc{
			".txt": readText,
			".md":  readText,
			".pdf": readPDF,
		},
	}
}

// Load reads every supported file directly under dir, in lexical order, and
// returns the resulting documents. Unsupported extensions are skipped with a
// warning; unreadable files are skipped with an error log. An empty directory
// yields zero documents and a nil error.
func (l *Loader) Load(ctx context.Context, dir string) ([]rag.Document, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", dir, err)
	}

	var docs []rag.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("loader: %w", err)
		}

		name := entry.Name()
		if entry.IsDir() {
			l.log.Debug("loader: skipping sub-directory", slog.String("dir", name))
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		read, ok := l.readers[ext]
		if !ok {
			l.log.Warn("loader: skipping unsupported file type",
				slog.String("file", name),
				slog.String("extension", ext),
			)
			continue
		}

		fileDocs, err := read(filepath.Join(dir, name), name)
		if err != nil {
			l.log.Error("loader: failed to read file, skipping",
				slog.String("file", name),
				slog.Any("error", err),
			)
			continue
		}

		l.log.Debug("loader: loaded file",
			slog.String("file", name),
			slog.Int("documents", len(fileDocs)),
		)
		docs = append(docs, fileDocs...)
	}

	return docs, nil
}

// readText loads a UTF-8 text file as a single document.
func readText(path, name string) ([]rag.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8", name)
	}
	return []rag.Document{{
		Content:  cleanText(string(data)),
		Metadata: rag.Metadata{Source: name},
	}}, nil
}

// readPDF loads a PDF as one document per page. Pages without extractable
// text are omitted. The parser panics on some malformed files, so panics are
// converted into a read error.
func readPDF(path, name string) (docs []rag.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("malformed pdf %s: %v", name, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		text = cleanText(text)
		if text == "" {
			continue
		}
		docs = append(docs, rag.Document{
			Content:  text,
			Metadata: rag.Metadata{Source: name, Page: i},
		})
	}

	return docs, nil
}

// cleanText trims surrounding whitespace from extracted text.
func cleanText(s string) string {
	return strings.TrimSpace(s)
}
