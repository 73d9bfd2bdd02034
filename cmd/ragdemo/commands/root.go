// Package commands defines all Cobra CLI commands for the ragdemo binary.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragdemo-go/internal/audit"
	"github.com/54b3r/ragdemo-go/internal/config"
	"github.com/54b3r/ragdemo-go/internal/embedder"
	"github.com/54b3r/ragdemo-go/internal/logging"
	"github.com/54b3r/ragdemo-go/internal/provider"
)

// annotationCredentials marks commands that talk to the model backends and
// therefore need the credential pre-flight.
const annotationCredentials = "ragdemo/credentials"

// settings is everything a command needs that was resolved from the
// environment before it ran.
type settings struct {
	runtime  *config.Runtime
	embed    *embedder.Settings
	provider *provider.Config
}

// settingsKey is the context key under which the root command stores the
// resolved settings.
type settingsKey struct{}

// settingsFrom returns the settings resolved by the root command.
func settingsFrom(ctx context.Context) (*settings, error) {
	s, ok := ctx.Value(settingsKey{}).(*settings)
	if !ok || s == nil {
		return nil, fmt.Errorf("settings not resolved")
	}
	return s, nil
}

// needsCredentials marks cmd for the credential pre-flight.
func needsCredentials(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationCredentials] = "true"
	return cmd
}

// resolveSettings reads the runtime, embedding and provider configuration
// and fails fast on anything missing.
func resolveSettings(log *slog.Logger) (*settings, error) {
	rt, err := config.RuntimeFromEnv()
	if err != nil {
		return nil, err
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}

	emb, err := embedder.Preflight(log)
	if err != nil {
		return nil, err
	}

	prov := provider.ConfigFromEnv()
	if err := prov.Validate(); err != nil {
		return nil, err
	}

	return &settings{runtime: rt, embed: emb, provider: prov}, nil
}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "ragdemo",
		Short: "Ask questions about your own documents",
		Long: `ragdemo answers questions about a folder of text, Markdown and PDF files.

'ragdemo build' splits the documents into chunks, embeds them and stores the
vectors in an index. 'ragdemo query', 'ragdemo ask' and 'ragdemo serve'
retrieve the most relevant chunks for each question and have a chat model
answer from them.

Configuration comes from environment variables, a .env file in the working
directory and an optional YAML file (~/.ragdemo/config.yaml).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// YAML and .env only fill unset vars, so load them before the
			// logger reads LOG_LEVEL and LOG_FORMAT.
			path, err := config.Load(configPath, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}

			log := logging.NewWithWriter(cmd.ErrOrStderr())
			ctx := logging.WithLogger(cmd.Context(), log)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)

			if cmd.Annotations[annotationCredentials] == "true" {
				s, err := resolveSettings(log)
				if err != nil {
					return fmt.Errorf("%s: %w", cmd.Name(), err)
				}
				ctx = context.WithValue(ctx, settingsKey{}, s)
			}

			cmd.SetContext(ctx)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragdemo/config.yaml)")

	root.AddCommand(
		NewBuildCmd(),
		NewQueryCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
