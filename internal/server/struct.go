package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragdemo-go/internal/pipeline"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It
	// bounds the whole /ask round trip including the model call.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained /ask rate per client in questions per
	// second (RATE_LIMIT). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the number of back-to-back questions a client may send
	// (RATE_BURST). Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /ask. If empty, authentication
	// is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus collectors. Defaults
	// to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is exposed on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Asker answers a question. *pipeline.Pipeline satisfies it; tests inject a
// fake. A nil Asker means the pipeline failed to start and /ask reports 503.
type Asker interface {
	Ask(ctx context.Context, question string) (*pipeline.Answer, error)
}

// Server is the HTTP server in front of the question-answering pipeline.
type Server struct {
	// asker answers /ask requests. Nil when the pipeline is unavailable.
	asker Asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// handler is the fully wired chi router.
	handler http.Handler
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
	// throttle enforces the per-client /ask rate limit.
	throttle *askThrottle
}

// askRequest is the JSON body for POST /ask.
type askRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
}

// askResponse is the JSON body returned by POST /ask.
type askResponse struct {
	Answer          string           `json:"answer"`
	SourceDocuments []sourceDocument `json:"source_documents"`
}

// sourceDocument is one retrieved chunk as reported to API clients.
type sourceDocument struct {
	// ContentPreview is the first previewRunes characters of the chunk.
	ContentPreview string         `json:"content_preview"`
	Metadata       sourceMetadata `json:"metadata"`
}

// sourceMetadata identifies where a source chunk came from.
type sourceMetadata struct {
	Source     string `json:"source"`
	Page       int    `json:"page,omitempty"`
	StartIndex int    `json:"start_index"`
}

// errorResponse is the JSON body for every error status.
type errorResponse struct {
	Detail string `json:"detail"`
}

// messageResponse is the JSON body for GET /.
type messageResponse struct {
	Message string `json:"message"`
}
