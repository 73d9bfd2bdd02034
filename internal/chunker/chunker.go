// Package chunker splits documents into overlapping windows of text for
// embedding.
//
// Windows are measured in characters (runes). Each window ends at the best
// natural boundary found in its back half, trying paragraph breaks first,
// then line breaks, sentence ends and finally whitespace, and falls back to
// a hard cut at the window size. The next window starts exactly Overlap
// characters before the previous one ended, so consecutive chunks of the
// same document share Overlap characters.
package chunker

import (
	"fmt"
	"iter"

	"github.com/54b3r/ragdemo-go/internal/rag"
)

const (
	// DefaultSize is the default maximum chunk length in characters.
	DefaultSize = 1000
	// DefaultOverlap is the default number of characters shared by
	// consecutive chunks.
	DefaultOverlap = 100
)

// boundaries lists the separator groups in order of preference. A cut is
// placed immediately after the separator.
var boundaries = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", "。"},
	{" ", "\t"},
}

// Splitter turns documents into chunks. It holds no mutable state and is
// safe for concurrent use.
type Splitter struct {
	size    int
	overlap int
	seps    [][][]rune
}

// New constructs a Splitter producing chunks of at most size characters with
// overlap characters shared between neighbours. size must be positive and
// overlap must be in [0, size).
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: overlap must be in [0, %d), got %d", size, overlap)
	}

	seps := make([][][]rune, len(boundaries))
	for i, group := range boundaries {
		for _, s := range group {
			seps[i] = append(seps[i], []rune(s))
		}
	}

	return &Splitter{size: size, overlap: overlap, seps: seps}, nil
}

// Size returns the maximum chunk length.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the number of characters shared by consecutive chunks.
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns a lazy sequence over the chunks of every document, in
// document order.
func (s *Splitter) Split(docs []rag.Document) iter.Seq[rag.Chunk] {
	return func(yield func(rag.Chunk) bool) {
		for _, doc := range docs {
			for c := range s.SplitDocument(doc) {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// SplitDocument returns a lazy sequence over the chunks of a single document.
// A document no longer than the chunk size yields exactly one chunk equal to
// its content, whitespace included. An empty document yields nothing.
func (s *Splitter) SplitDocument(doc rag.Document) iter.Seq[rag.Chunk] {
	return func(yield func(rag.Chunk) bool) {
		if doc.Content == "" {
			return
		}

		text := []rune(doc.Content)
		start := 0
		for {
			end := s.cut(text, start)
			c := rag.Chunk{
				ID:         rag.ChunkID(doc.Metadata, start),
				Content:    string(text[start:end]),
				Metadata:   doc.Metadata,
				StartIndex: start,
			}
			if !yield(c) || end == len(text) {
				return
			}
			start = end - s.overlap
		}
	}
}

// cut returns the end offset of the window beginning at start.
func (s *Splitter) cut(text []rune, start int) int {
	limit := start + s.size
	if limit >= len(text) {
		return len(text)
	}

	// The cut must leave more than overlap characters in the window so the
	// next window starts strictly after this one.
	floor := start + max(s.overlap+1, s.size/2)

	for _, group := range s.seps {
		if end := lastBoundary(text, floor, limit, group); end > 0 {
			return end
		}
	}
	return limit
}

// lastBoundary returns the largest offset in [floor, limit] that immediately
// follows one of seps, or 0 when there is none.
func lastBoundary(text []rune, floor, limit int, seps [][]rune) int {
	for end := limit; end >= floor; end-- {
		for _, sep := range seps {
			if endsWith(text[:end], sep) {
				return end
			}
		}
	}
	return 0
}

// endsWith reports whether text ends with suffix.
func endsWith(text, suffix []rune) bool {
	if len(suffix) > len(text) {
		return false
	}
	tail := text[len(text)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}
