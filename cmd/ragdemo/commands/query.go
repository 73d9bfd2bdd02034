package commands

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragdemo-go/internal/logging"
	"github.com/54b3r/ragdemo-go/internal/repl"
	"github.com/54b3r/ragdemo-go/internal/tracing"
)

// errIndexNotAvailable is returned by commands that need a built index.
var errIndexNotAvailable = errors.New("index not available, run 'ragdemo build' first")

// NewQueryCmd constructs the `ragdemo query` command, an interactive prompt
// over the persisted index.
func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ask questions interactively against the built index",
		Long: `Start an interactive prompt. Each question is answered from the chunks
retrieved from the index, followed by the list of sources used.

Type 'exit' or 'quit' (or send EOF) to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			flush := tracing.Setup(log)
			defer flush()

			a, err := newApp(ctx, s, nil, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer a.Close()

			if !a.pipeline.Ready() {
				return errIndexNotAvailable
			}

			return repl.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.pipeline)
		},
	}

	return needsCredentials(cmd)
}
