package repl

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/54b3r/ragdemo-go/internal/pipeline"
	"github.com/54b3r/ragdemo-go/internal/rag"
)

// scriptedAsker answers from a map and records the questions it receives.
type scriptedAsker struct {
	answers map[string]*pipeline.Answer
	asked   []string
}

func (a *scriptedAsker) Ask(_ context.Context, q string) (*pipeline.Answer, error) {
	a.asked = append(a.asked, q)
	if ans, ok := a.answers[q]; ok {
		return ans, nil
	}
	return nil, errors.New("embedding API unavailable")
}

func TestRun_AnswersUntilExit(t *testing.T) {
	t.Parallel()

	a := &scriptedAsker{answers: map[string]*pipeline.Answer{
		"what is rag?": {
			Text: "Retrieval-augmented generation.",
			Sources: []rag.Hit{
				{Chunk: rag.Chunk{Metadata: rag.Metadata{Source: "intro.pdf", Page: 2}}},
				{Chunk: rag.Chunk{Metadata: rag.Metadata{Source: "notes.txt"}}},
			},
		},
	}}
	in := strings.NewReader("\n   \nwhat is rag?\nEXIT\nnever asked\n")
	var out bytes.Buffer

	if err := Run(t.Context(), in, &out, a); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(a.asked) != 1 || a.asked[0] != "what is rag?" {
		t.Errorf("asked = %q, want only the one real question", a.asked)
	}
	got := out.String()
	for _, want := range []string{
		"Answer:",
		"Retrieval-augmented generation.",
		"Sources:",
		"[1] intro.pdf (Page 2)",
		"[2] notes.txt",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "never asked") {
		t.Error("input after exit must not be processed")
	}
}

func TestRun_ContinuesAfterError(t *testing.T) {
	t.Parallel()

	a := &scriptedAsker{answers: map[string]*pipeline.Answer{"second": {Text: "fine"}}}
	var out bytes.Buffer

	if err := Run(t.Context(), strings.NewReader("first\nsecond\nquit\n"), &out, a); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(a.asked) != 2 {
		t.Errorf("asked %d questions, want 2", len(a.asked))
	}
	got := out.String()
	if !strings.Contains(got, "Error: embedding API unavailable") || !strings.Contains(got, "fine") {
		t.Errorf("unexpected output:\n%s", got)
	}
}

func TestRun_StopsAtEOF(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := Run(t.Context(), strings.NewReader(""), &out, &scriptedAsker{}); err != nil {
		t.Errorf("Run at EOF should return nil, got %v", err)
	}
	if !strings.Contains(out.String(), Prompt) {
		t.Error("prompt was not printed")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	a := &scriptedAsker{}
	err := Run(ctx, strings.NewReader("question\n"), &bytes.Buffer{}, a)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(a.asked) != 0 {
		t.Error("no question should be asked after cancellation")
	}
}

func TestRun_PlainOutputWhenNotATerminal(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_ = Run(t.Context(), strings.NewReader("exit\n"), &out, &scriptedAsker{})
	if strings.Contains(out.String(), "\x1b[") {
		t.Errorf("output to a buffer should carry no ANSI escapes: %q", out.String())
	}
}

func TestSourceLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source string
		page   int
		want   string
	}{
		{"a.txt", 0, "a.txt"},
		{"b.pdf", 3, "b.pdf (Page 3)"},
		{"", 0, "Unknown source"},
	}
	for _, tc := range tests {
		if got := SourceLabel(tc.source, tc.page); got != tc.want {
			t.Errorf("SourceLabel(%q, %d) = %q, want %q", tc.source, tc.page, got, tc.want)
		}
	}
}
