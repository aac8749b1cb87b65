// Package metrics holds the prometheus instrumentation for the orchestrator
// core, grouped by subsystem into separate var blocks (pool, mapper,
// health, migration).
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pool Manager metrics
var (
	PoolCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "pool",
		Name:      "count",
		Help:      "Current number of pools known to the orchestrator",
	})

	BotCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "pool",
		Name:      "bot_count",
		Help:      "Current number of bots mapped to a pool",
	})

	AllocationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "pool",
		Name:      "allocation_latency_seconds",
		Help:      "Latency of PoolManager.Allocate",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	PoolCreationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "pool",
		Name:      "creation_errors_total",
		Help:      "Total number of pool container creation errors",
	})

	SupervisorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "pool",
		Name:      "supervisor_errors_total",
		Help:      "Total number of supervisor exec failures",
	})
)

// Health Monitor metrics
var (
	HealthCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "health",
		Name:      "check_duration_seconds",
		Help:      "Duration of one HealthMonitor reconciliation pass",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30},
	})

	RecoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "health",
		Name:      "recovery_attempts_total",
		Help:      "Total number of recovery attempts, by subject kind and outcome",
	}, []string{"subject", "outcome"})

	UnhealthySubjects = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "health",
		Name:      "unhealthy_subjects",
		Help:      "Number of pools/bots classified unhealthy in the last pass",
	})
)

// Migration Engine metrics
var (
	MigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "migration",
		Name:      "total",
		Help:      "Total number of migration attempts, by outcome",
	}, []string{"outcome"})

	MigrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "migration",
		Name:      "duration_seconds",
		Help:      "Duration of one bot migration",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
	})
)

// Mapper metrics
var (
	ConnectionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "mapper",
		Name:      "connection_cache_hits_total",
		Help:      "Total number of connection resolutions served from cache",
	})

	ConnectionCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pool_orchestrator",
		Subsystem: "mapper",
		Name:      "connection_cache_misses_total",
		Help:      "Total number of connection resolutions that missed the cache",
	})
)

// StartMetricsServer serves /metrics and /healthz until ctx is cancelled,
// then shuts down gracefully.
func StartMetricsServer(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("starting metrics server", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
