package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// HealthChecker is implemented by backends that expose a zero-cost
// reachability check (the embedders list models instead of embedding).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckPinger adapts a HealthChecker to the Pinger interface.
type HealthCheckPinger struct {
	// hc is the backend to probe.
	hc HealthChecker
	// name identifies the backend in readiness responses (e.g. "embedder").
	name string
}

// NewHealthCheckPinger constructs a HealthCheckPinger for hc.
func NewHealthCheckPinger(name string, hc HealthChecker) *HealthCheckPinger {
	return &HealthCheckPinger{hc: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *HealthCheckPinger) Name() string { return p.name }

// Ping runs the backend health check.
func (p *HealthCheckPinger) Ping(ctx context.Context) error {
	if err := p.hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// errIndexNotLoaded is reported by IndexPinger when no index is loaded.
var errIndexNotLoaded = errors.New("index not loaded, run 'ragdemo build' first")

// IndexPinger reports whether the pipeline has a loaded index.
type IndexPinger struct {
	// ready reports the pipeline state; *pipeline.Pipeline satisfies it.
	ready interface{ Ready() bool }
}

// NewIndexPinger constructs an IndexPinger.
func NewIndexPinger(ready interface{ Ready() bool }) *IndexPinger {
	return &IndexPinger{ready: ready}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping fails while the index is unavailable.
func (p *IndexPinger) Ping(context.Context) error {
	if p.ready == nil || !p.ready.Ready() {
		return errIndexNotLoaded
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
