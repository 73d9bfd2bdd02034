// Package server exposes the question-answering pipeline over HTTP.
// The server is started by the `ragdemo serve` CLI command.
//
// Routes:
//
//	GET  /            welcome message
//	POST /ask         answer a question (auth + per-IP rate limit)
//	GET  /api/health  liveness
//	GET  /api/ready   readiness (dependency probes)
//	GET  /metrics     Prometheus metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/ragdemo-go/internal/logging"
	"github.com/54b3r/ragdemo-go/internal/pipeline"
	"github.com/54b3r/ragdemo-go/internal/rag"
)

const (
	// welcomeMessage is returned by GET /.
	welcomeMessage = "Welcome to the RAG Demo API. Use the /ask endpoint to submit queries."

	// unavailableDetail is returned with 503 when no index is loaded.
	unavailableDetail = "RAG Pipeline is not available. Service might be initializing or encountered an error."

	// previewRunes is the length of content_preview in characters.
	previewRunes = 200

	// maxRequestBytes caps the /ask request body.
	maxRequestBytes = 1 << 20
)

// New constructs a Server. asker may be nil; /ask then answers 503 while
// the health, readiness and metrics endpoints keep working.
func New(asker Asker, cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("server: invalid port %d", cfg.Port)
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		asker:   asker,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}
	s.throttle = newAskThrottle(cfg.RateLimit, cfg.RateBurst, func() {
		s.metrics.observeAsk(outcomeRateLimited, 0)
	})

	if cfg.APIKey == "" {
		s.log.Warn("server: RAGDEMO_API_KEY not set, /ask is unauthenticated")
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(func(next http.Handler) http.Handler { return requestLogger(s.log, next) })
	r.Use(s.metrics.middleware)
	r.Use(chimw.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return authMiddleware(cfg.APIKey, next) })
		r.Use(s.throttle.middleware)
		r.Post("/ask", s.handleAsk)
	})

	s.handler = r
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown. Idle rate-limit
// buckets are swept for as long as Start runs.
func (s *Server) Start(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.throttle.run(sweepCtx, s.log)

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleRoot handles GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: welcomeMessage})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAsk handles POST /ask. It answers the question with the pipeline
// and returns the answer with a preview of every source chunk.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	if s.asker == nil {
		s.metrics.observeAsk(outcomeUnavailable, 0)
		writeError(ctx, w, http.StatusServiceUnavailable, unavailableDetail)
		return
	}

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.metrics.observeAsk(outcomeBadRequest, 0)
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.metrics.observeAsk(outcomeBadRequest, 0)
		writeError(ctx, w, http.StatusBadRequest, "query is required")
		return
	}

	s.metrics.askInFlight.Inc()
	start := time.Now()
	ans, err := s.asker.Ask(ctx, req.Query)
	elapsed := time.Since(start)
	s.metrics.askInFlight.Dec()

	switch {
	case errors.Is(err, rag.ErrIndexUnavailable):
		s.metrics.observeAsk(outcomeUnavailable, elapsed)
		writeError(ctx, w, http.StatusServiceUnavailable, unavailableDetail)
		return
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		s.metrics.observeAsk(outcomeBadRequest, elapsed)
		writeError(ctx, w, http.StatusBadRequest, "query is required")
		return
	case err != nil:
		s.metrics.observeAsk(outcomeError, elapsed)
		log.Error("ask failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusInternalServerError,
			"An error occurred while processing your request: "+err.Error())
		return
	}

	s.metrics.observeAsk(outcomeOK, elapsed)
	s.metrics.askSources.Observe(float64(len(ans.Sources)))
	writeJSON(ctx, w, http.StatusOK, newAskResponse(ans))
}

// newAskResponse converts a pipeline answer into the /ask JSON shape.
func newAskResponse(ans *pipeline.Answer) askResponse {
	resp := askResponse{
		Answer:          ans.Text,
		SourceDocuments: make([]sourceDocument, 0, len(ans.Sources)),
	}
	for _, h := range ans.Sources {
		resp.SourceDocuments = append(resp.SourceDocuments, sourceDocument{
			ContentPreview: preview(h.Chunk.Content, previewRunes),
			Metadata: sourceMetadata{
				Source:     h.Chunk.Metadata.Source,
				Page:       h.Chunk.Metadata.Page,
				StartIndex: h.Chunk.StartIndex,
			},
		})
	}
	return resp
}

// preview returns the first n characters of s, followed by "..." when s
// was truncated.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// writeJSON encodes v with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes a {"detail": ...} body.
func writeError(ctx context.Context, w http.ResponseWriter, status int, detail string) {
	writeJSON(ctx, w, status, errorResponse{Detail: detail})
}
