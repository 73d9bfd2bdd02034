package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragdemo-go/internal/config"
	"github.com/54b3r/ragdemo-go/internal/index"
	"github.com/54b3r/ragdemo-go/internal/loader"
	"github.com/54b3r/ragdemo-go/internal/logging"
	"github.com/54b3r/ragdemo-go/internal/pipeline"
)

// NewBuildCmd constructs the `ragdemo build` command, which ingests every
// document under the data directory into the vector index.
func NewBuildCmd() *cobra.Command {
	var dataDir string
	var indexDir string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the vector index from the documents in the data directory",
		Long: `Load every .txt, .md and .pdf file directly under the data directory,
split the text into overlapping chunks, embed them and write the index.

The previous index is replaced only once the new one is complete; an empty
data directory leaves it untouched.

Environment variables:
  DATA_PATH          Document directory (default: data)
  INDEX_PATH         Local index directory (default: vector_store_index/faiss_index)
  INDEX_BACKEND      local or qdrant (default: local)
  CHUNK_SIZE         Characters per chunk (default: 1000)
  CHUNK_OVERLAP      Characters shared by neighbouring chunks (default: 100)
  BATCH_SIZE         Chunks per embedding request (default: 64)

Examples:
  ragdemo build
  ragdemo build --data ./docs --index ./idx
  INDEX_BACKEND=qdrant ragdemo build`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			rt := *s.runtime
			if dataDir != "" {
				rt.DataPath = dataDir
			}
			if indexDir != "" {
				rt.IndexPath = indexDir
			}

			emb, err := newEmbedder(s.embed, nil)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}

			var sink pipeline.IndexWriter
			switch rt.IndexBackend {
			case config.BackendQdrant:
				qs, err := newQdrantStore(&rt, s.embed.Dimensions)
				if err != nil {
					return fmt.Errorf("build: %w", err)
				}
				defer func() { _ = qs.Close() }()
				sink = qs
			default:
				sink = index.NewWriter(rt.IndexPath, index.Meta{
					EmbeddingModel: s.embed.Model,
					ChunkSize:      rt.ChunkSize,
					ChunkOverlap:   rt.ChunkOverlap,
				})
			}

			builder, err := pipeline.NewBuilder(loader.New(log), emb, sink, &pipeline.BuildConfig{
				DataDir:      rt.DataPath,
				ChunkSize:    rt.ChunkSize,
				ChunkOverlap: rt.ChunkOverlap,
				BatchSize:    rt.BatchSize,
			})
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}

			out := cmd.OutOrStdout()
			log.Info("build starting",
				slog.String("data", rt.DataPath),
				slog.String("backend", rt.IndexBackend),
				slog.String("embedding_model", s.embed.Model),
			)
			report, err := builder.Build(ctx, func(msg string) {
				fmt.Fprintln(out, msg)
			})
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}

			target := rt.IndexPath
			if rt.IndexBackend == config.BackendQdrant {
				target = "qdrant collection " + rt.QdrantCollection
			}
			fmt.Fprintf(out, "Index built: %d documents, %d chunks, saved to %s\n",
				report.Documents, report.Chunks, target)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "", "Document directory (overrides DATA_PATH)")
	cmd.Flags().StringVar(&indexDir, "index", "", "Local index directory (overrides INDEX_PATH)")

	return needsCredentials(cmd)
}
