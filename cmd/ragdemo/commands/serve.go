package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragdemo-go/internal/logging"
	"github.com/54b3r/ragdemo-go/internal/server"
	"github.com/54b3r/ragdemo-go/internal/tracing"
)

// NewServeCmd constructs the `ragdemo serve` command, which exposes the
// question-answering pipeline over HTTP.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Routes:
  GET  /            welcome message
  POST /ask         {"query": "..."} -> answer and source previews
  GET  /api/health  liveness
  GET  /api/ready   readiness of the index, embedder and Qdrant
  GET  /metrics     Prometheus metrics

If the index cannot be loaded the server still starts and /ask answers 503
until the index is built and the server restarted.

Set RAGDEMO_API_KEY to require "Authorization: Bearer <key>" on /ask.
RATE_LIMIT and RATE_BURST set the per-client /ask rate (default 10/s, burst 20).

Examples:
  ragdemo serve
  ragdemo serve --host 0.0.0.0 --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			s, err := settingsFrom(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if !cmd.Flags().Changed("host") {
				host = s.runtime.ServerHost
			}
			if !cmd.Flags().Changed("port") {
				port = s.runtime.ServerPort
			}

			flush := tracing.Setup(log)
			defer flush()

			var (
				asker   server.Asker
				pingers []server.Pinger
			)
			a, err := newApp(ctx, s, prometheus.DefaultRegisterer, log)
			if err != nil {
				// Keep serving so clients get a 503 instead of a refused connection.
				log.Error("serve: pipeline unavailable", slog.Any("error", err))
			} else {
				defer a.Close()
				asker = a.pipeline
				pingers = append(pingers, server.NewIndexPinger(a.pipeline))
				if hc, ok := a.embedder.(server.HealthChecker); ok {
					pingers = append(pingers, server.NewHealthCheckPinger("embedder", hc))
				}
				if a.qdrant != nil {
					pingers = append(pingers, server.NewQdrantPinger(a.qdrant.Client()))
				}
				if !a.pipeline.Ready() {
					log.Warn("serve: /ask will answer 503 until the index is built",
						slog.String("hint", "run 'ragdemo build' and restart"))
				}
			}

			srv, err := server.New(asker, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				APIKey:    s.runtime.APIKey,
				RateLimit: s.runtime.RateLimit,
				RateBurst: s.runtime.RateBurst,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides RAGDEMO_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (overrides RAGDEMO_PORT)")

	return needsCredentials(cmd)
}
