// Package observability exposes Prometheus metrics and the HTTP endpoint
// serving them.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the indexer's counters. One instance is shared across
// components.
type Metrics struct {
	registry *prometheus.Registry

	Operations          *prometheus.CounterVec
	SwapsIndexed        prometheus.Counter
	TokensLaunched      prometheus.Counter
	MigrationsCompleted prometheus.Counter
	StreamReconnects    prometheus.Counter
	DeadLetters         prometheus.Counter
}

// Operation outcome labels.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	auto := promauto.With(registry)
	return &Metrics{
		registry: registry,
		Operations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pump",
			Name:      "operations_total",
			Help:      "Operations consumed from the filled-block stream, by outcome.",
		}, []string{"outcome"}),
		SwapsIndexed: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "pump",
			Name:      "swaps_indexed_total",
			Help:      "Swaps written to the database.",
		}),
		TokensLaunched: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "pump",
			Name:      "tokens_launched_total",
			Help:      "Tokens whose deploy operation finalized successfully.",
		}),
		MigrationsCompleted: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "pump",
			Name:      "migrations_completed_total",
			Help:      "Launch pools migrated to Dusa.",
		}),
		StreamReconnects: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "pump",
			Name:      "stream_reconnects_total",
			Help:      "Reconnections to the node's filled-block stream.",
		}),
		DeadLetters: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "pump",
			Name:      "dead_letters_total",
			Help:      "Operations written to the dead-letter log table.",
		}),
	}
}

// Server serves /metrics and /healthz.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

func NewServer(addr string, metrics *Metrics, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start serves in the background until Stop is called.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Metrics server shutdown failed")
	}
}
