package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"swapflow/logger"
)

// Prometheus metrics for the strategy execution engine. Counters are labeled
// by wallet and strategy so dashboards can break down outcomes per run.

var (
	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swapflow",
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Total number of orders created by strategies",
		},
		[]string{"wallet", "strategy"},
	)

	OrdersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swapflow",
			Subsystem: "orders",
			Name:      "submitted_total",
			Help:      "Total number of submission attempts, including retries",
		},
		[]string{"wallet", "strategy"},
	)

	OrdersFilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swapflow",
			Subsystem: "orders",
			Name:      "filled_total",
			Help:      "Total number of filled orders",
		},
		[]string{"wallet", "strategy"},
	)

	OrdersFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swapflow",
			Subsystem: "orders",
			Name:      "failed_total",
			Help:      "Total number of terminally failed orders",
		},
		[]string{"wallet", "strategy"},
	)

	SubmissionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "swapflow",
			Subsystem: "orders",
			Name:      "submission_latency_ms",
			Help:      "Time from first submission attempt to terminal outcome in milliseconds",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
		},
		[]string{"wallet", "strategy"},
	)

	ConnectionHealth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swapflow",
			Subsystem: "connector",
			Name:      "health_state",
			Help:      "Connector health: 0=healthy, 1=degraded, 2=down",
		},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swapflow",
			Subsystem: "engine",
			Name:      "active_runs",
			Help:      "Number of wallet-strategy runs currently executing",
		},
	)
)

// HealthValue maps a monitor state string to the gauge encoding.
func HealthValue(state string) float64 {
	switch state {
	case "degraded":
		return 1
	case "down":
		return 2
	default:
		return 0
	}
}

// Serve exposes /metrics on the given address until ctx is cancelled.
func Serve(ctx context.Context, listen string) {
	log := logger.GetLogger().WithComponent("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logger.Fields{"listen": listen}).Info("serving prometheus metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("metrics server stopped")
	}
}
