package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ItemsCollected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xwatch_items_collected_total",
		Help: "Unique items accepted into the run, by source",
	}, []string{"source"})
	ItemsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xwatch_items_dropped_total",
		Help: "Raw items rejected during normalization",
	})
	RateLimitHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xwatch_rate_limit_hits_total",
		Help: "Structured queries answered with a rate-limit signal",
	})
	Retries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xwatch_retries_total",
		Help: "Retried queries and login attempts",
	})
	FallbackItems = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xwatch_fallback_items_total",
		Help: "Items gathered by page automation",
	})
	BackoffSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xwatch_backoff_seconds",
		Help: "Most recent backoff delay",
	})
	StateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xwatch_state_transitions_total",
		Help: "Monitoring loop state transitions",
	}, []string{"from", "to"})
	Replies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xwatch_replies_total",
		Help: "Reply attempts by outcome",
	}, []string{"outcome"})
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xwatch_request_duration_seconds",
		Help:    "Structured query latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// MustRegister registers all collectors with registerer
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ItemsCollected,
		ItemsDropped,
		RateLimitHits,
		Retries,
		FallbackItems,
		BackoffSeconds,
		StateTransitions,
		Replies,
		RequestDuration,
	)
}

// StartServer serves /metrics on addr until ctx is cancelled
func StartServer(ctx context.Context, logger zerolog.Logger, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		timeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(timeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}
