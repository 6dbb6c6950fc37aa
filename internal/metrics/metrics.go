package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/journey/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Advance/scheduler metrics

	AdvanceLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "journey",
		Name:      "advance_latency_seconds",
		Help:      "Time from kick to advance transaction completing.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	ComputationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "journey",
		Name:      "computation_duration_seconds",
		Help:      "Duration of a node's computation invocation.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"node_type", "state"})

	ComputationsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "journey",
		Name:      "computations_in_flight",
		Help:      "Number of computations currently being executed by workers.",
	})

	ComputationsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "journey",
		Name:      "computations_completed_total",
		Help:      "Total computations finished, by outcome.",
	}, []string{"outcome"})

	// Sweep metrics

	SweepRescuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "journey",
		Name:      "sweep_rescued_total",
		Help:      "Total executions a sweep handled, by sweep type.",
	}, []string{"sweep_type"})

	SweepCycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "journey",
		Name:      "sweep_cycle_duration_seconds",
		Help:      "Time taken for one sweep cycle.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sweep_type"})

	// Kick metrics

	KicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "journey",
		Name:      "kicks_total",
		Help:      "Total kicks issued, by outcome (coalesced, queued, overflow_sync).",
	}, []string{"outcome"})

	// Engine lifecycle

	EngineStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "journey",
		Name:      "engine_start_time_seconds",
		Help:      "Unix timestamp when the engine process started.",
	})

	EngineShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "journey",
		Name:      "engine_shutdowns_total",
		Help:      "Number of times the engine process has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "journey",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "journey",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		AdvanceLatency,
		ComputationDuration,
		ComputationsInFlight,
		ComputationsCompletedTotal,
		SweepRescuedTotal,
		SweepCycleDuration,
		KicksTotal,
		EngineStartTime,
		EngineShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer exposes /metrics plus the liveness/readiness endpoints
// checker drives, all from one auxiliary listener.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		if result.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeHealth(w, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
