package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragdemo-go/internal/logging"
	"github.com/54b3r/ragdemo-go/internal/pipeline"
	"github.com/54b3r/ragdemo-go/internal/repl"
	"github.com/54b3r/ragdemo-go/internal/tracing"
)

// NewAskCmd constructs the `ragdemo ask` command, which answers a single
// question and exits.
func NewAskCmd() *cobra.Command {
	var direct bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the index and exit",
		Long: `Answer a single question. With --direct the question goes straight to the
chat model without retrieval, which is useful to compare grounded and
ungrounded answers.

Examples:
  ragdemo ask "What does the onboarding guide say about laptops?"
  ragdemo ask --direct "What is retrieval-augmented generation?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			flush := tracing.Setup(log)
			defer flush()

			a, err := newApp(ctx, s, nil, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			question := strings.Join(args, " ")

			var ans *pipeline.Answer
			if direct {
				ans, err = a.pipeline.AskDirect(ctx, question)
			} else {
				if !a.pipeline.Ready() {
					return errIndexNotAvailable
				}
				ans, err = a.pipeline.Ask(ctx, question)
			}
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			writeAnswer(cmd.OutOrStdout(), ans)
			return nil
		},
	}

	cmd.Flags().BoolVar(&direct, "direct", false, "Skip retrieval and ask the chat model directly")

	return needsCredentials(cmd)
}

// writeAnswer prints the answer followed by its sources, one per line.
func writeAnswer(w io.Writer, ans *pipeline.Answer) {
	fmt.Fprintln(w, ans.Text)
	if len(ans.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for i, h := range ans.Sources {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, repl.SourceLabel(h.Chunk.Metadata.Source, h.Chunk.Metadata.Page))
	}
}
