// Package api implements the HTTP service around the facility optimiser.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/semaphore"

	"taptimise/internal/auth"
	"taptimise/internal/config"
	"taptimise/internal/store"
	"taptimise/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Broker EventBroker
	Pub    *webhooks.Publisher
	Cfg    config.Config
	Log    *slog.Logger
	// Auth guards operator endpoints; nil leaves them open.
	Auth *auth.Verifier

	// background runs share one context, cancelled by Shutdown
	ctx     context.Context
	cancel  context.CancelFunc
	workers *semaphore.Weighted
	wg      sync.WaitGroup
	limits  *limiter
}

// NewServer wires a Server. A nil broker selects the in-memory Broker and a
// nil publisher disables callbacks.
func NewServer(cfg config.Config, st store.Store, broker EventBroker, pub *webhooks.Publisher, log *slog.Logger) *Server {
	if broker == nil {
		broker = NewBroker()
	}
	if log == nil {
		log = slog.Default()
	}
	workers := cfg.Server.Workers
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Store:   st,
		Broker:  broker,
		Pub:     pub,
		Cfg:     cfg,
		Log:     log,
		ctx:     ctx,
		cancel:  cancel,
		workers: semaphore.NewWeighted(int64(workers)),
		limits:  newLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst),
	}
}

// Routes returns the service mux wrapped in logging, metrics and rate
// limiting.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/optimize", s.OptimizeHandler)
	mux.HandleFunc("GET /v1/optimizer/config", s.OptimizerConfigHandler)

	mux.HandleFunc("GET /v1/runs", s.RunsHandler)
	mux.HandleFunc("GET /v1/runs/ws", s.RunWSHandler)
	mux.HandleFunc("GET /v1/runs/{id}", s.RunHandler)
	mux.HandleFunc("GET /v1/runs/{id}/geojson", s.RunGeoJSONHandler)
	mux.HandleFunc("GET /v1/runs/{id}/report", s.RunReportHandler)
	mux.HandleFunc("GET /v1/runs/{id}/csv", s.RunCSVHandler)
	mux.HandleFunc("GET /v1/runs/{id}/events/stream", s.RunEventsHandler)

	mux.Handle("GET /v1/admin/run-metrics", s.requireAdmin(http.HandlerFunc(s.RunMetricsHandler)))

	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /debug/info", s.requireAdmin(http.HandlerFunc(s.DebugJSON)))
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)
	mux.Handle("GET /metrics", metricsHandler())

	return s.logMiddleware(s.rateLimit(mux))
}

// Shutdown stops accepting background work and waits for running
// optimisations to end or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
