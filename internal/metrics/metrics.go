// Package metrics exposes Prometheus counters and gauges for the
// orchestration core. Collection is always active; exposing it over
// HTTP is opt-in via Serve.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orchestrator"

var (
	// PhasesCompleted counts phase transitions by domain phase and outcome.
	PhasesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "phase",
			Name:      "completed_total",
			Help:      "Total number of domain phase executions, by phase and status.",
		},
		[]string{"phase", "status"},
	)

	// BatchesRun counts scheduler batches executed.
	BatchesRun = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "batches_run_total",
			Help:      "Total number of dependency-respecting batches executed.",
		},
	)

	// DomainDeployDuration observes wall-clock time per domain run.
	DomainDeployDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "domain",
			Name:      "deploy_duration_seconds",
			Help:      "Duration of a single domain's full state-machine run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"domain", "status"},
	)

	// RollbackActionsExecuted counts rollback actions by type and outcome.
	RollbackActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollback",
			Name:      "actions_executed_total",
			Help:      "Total number of rollback actions executed, by action type and outcome.",
		},
		[]string{"action_type", "outcome"},
	)

	// ActiveDeployments tracks the number of domains currently mid-deployment.
	ActiveDeployments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "domain",
			Name:      "active_deployments",
			Help:      "Number of domains currently executing their phase state machine.",
		},
	)
)

// Serve starts an HTTP server exposing the default registry's metrics at
// /metrics on addr. It runs until ctx is cancelled, then shuts down.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
