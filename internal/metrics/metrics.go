package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StakesPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parimut_stakes_placed_total",
		Help: "stakes accepted and committed",
	})
	StakesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parimut_stakes_rejected_total",
		Help: "stakes rejected, by reason",
	}, []string{"reason"})
	Settlements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parimut_settlements_total",
		Help: "events settled",
	})
	StakeAmount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parimut_stake_amount",
		Help:    "distribution of accepted stake amounts",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

type HealthFunc func(ctx context.Context) error

// StartServer runs a lightweight HTTP server for /metrics and /healthz on
// its own port, off the public API.
func StartServer(port string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("unhealthy: %v", err)))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
