// Package repl implements the interactive question loop behind
// `ragdemo query`.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/54b3r/ragdemo-go/internal/pipeline"
)

// Asker answers a single question.
type Asker interface {
	Ask(ctx context.Context, question string) (*pipeline.Answer, error)
}

// Prompt is printed before each question.
const Prompt = "Enter your question: "

// separator is printed after every answer.
var separator = strings.Repeat("-", 50)

// styles holds the lipgloss styles bound to one output writer. Colours are
// dropped automatically when the writer is not a terminal.
type styles struct {
	prompt  lipgloss.Style
	heading lipgloss.Style
	source  lipgloss.Style
	err     lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		prompt:  r.NewStyle().Bold(true),
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		source:  r.NewStyle().Foreground(lipgloss.Color("8")),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Run reads questions from in, one per line, and writes answers to out
// until in is exhausted, the user types exit or quit, or ctx is cancelled.
// Blank lines are ignored. A failed question prints the error and the loop
// continues.
func Run(ctx context.Context, in io.Reader, out io.Writer, a Asker) error {
	st := newStyles(out)
	sc := bufio.NewScanner(in)

	fmt.Fprintln(out, "RAG system ready. Type 'exit' or 'quit' to stop.")
	for {
		fmt.Fprint(out, "\n"+st.prompt.Render(Prompt))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		ans, err := a.Ask(ctx, line)
		if err != nil {
			fmt.Fprintln(out, st.err.Render("Error: "+err.Error()))
			continue
		}
		printAnswer(out, st, ans)
	}
}

// printAnswer writes the answer text followed by its numbered sources.
func printAnswer(out io.Writer, st styles, ans *pipeline.Answer) {
	fmt.Fprintln(out, "\n"+st.heading.Render("Answer:"))
	fmt.Fprintln(out, ans.Text)

	if len(ans.Sources) > 0 {
		fmt.Fprintln(out, "\n"+st.heading.Render("Sources:"))
		for i, h := range ans.Sources {
			fmt.Fprintln(out, st.source.Render(fmt.Sprintf("  [%d] %s", i+1, SourceLabel(h.Chunk.Metadata.Source, h.Chunk.Metadata.Page))))
		}
	}
	fmt.Fprintln(out, separator)
}

// SourceLabel renders a source name with its page number when the source is
// paginated.
func SourceLabel(source string, page int) string {
	if source == "" {
		source = "Unknown source"
	}
	if page > 0 {
		return fmt.Sprintf("%s (Page %d)", source, page)
	}
	return source
}
