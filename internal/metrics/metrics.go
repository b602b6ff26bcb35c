// Package metrics exposes prometheus instrumentation for the sync loops,
// the anomaly detector and the insight scheduler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const metricPrefix = "wattscope_"

var (
	PollSuccess = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "poll_success_total",
		Help: "Successful gateway polls per sync loop",
	}, []string{"loop"})

	PollFailure = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "poll_failure_total",
		Help: "Failed gateway polls per sync loop and failure class",
	}, []string{"loop", "class"})

	LoopDegraded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: metricPrefix + "loop_degraded",
		Help: "1 when a sync loop has exceeded its consecutive-failure threshold",
	}, []string{"loop"})

	AnomalyFlag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: metricPrefix + "anomaly_flag",
		Help: "1 while the anomaly detector flags the live stream",
	})

	GeneratorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "generator_calls_total",
		Help: "Insight generator dispatches per feature and outcome",
	}, []string{"feature", "outcome"})
)

// Serve runs a plain HTTP listener for /metrics. Blocks; run it in its own
// goroutine.
func Serve(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server exit")
	}
}
