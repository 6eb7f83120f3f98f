package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels operations that completed cleanly.
	OutcomeSuccess = "success"
	// OutcomeError labels operations that failed.
	OutcomeError = "error"
)

var (
	investigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "investigations_total",
			Help:      "Total number of investigations run, partitioned by terminal status.",
		},
		[]string{"status"},
	)

	investigationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scout",
			Name:      "investigation_seconds",
			Help:      "End-to-end investigation latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	phaseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scout",
			Name:      "phase_seconds",
			Help:      "Per-phase agent latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"phase"},
	)

	degradedPhasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "degraded_phases_total",
			Help:      "Phases that failed and were absorbed as degraded findings.",
		},
		[]string{"phase"},
	)

	telemetryQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "telemetry_queries_total",
			Help:      "Telemetry store queries issued by agents, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches scout collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		investigationsTotal,
		investigationDurationSeconds,
		phaseDurationSeconds,
		degradedPhasesTotal,
		telemetryQueriesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveInvestigation records a finished investigation.
func ObserveInvestigation(duration time.Duration, status string) {
	investigationsTotal.WithLabelValues(status).Inc()
	if duration < 0 {
		duration = 0
	}
	investigationDurationSeconds.Observe(duration.Seconds())
}

// ObservePhase records one phase execution.
func ObservePhase(phase string, duration time.Duration, degraded bool) {
	if duration < 0 {
		duration = 0
	}
	phaseDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
	if degraded {
		degradedPhasesTotal.WithLabelValues(phase).Inc()
	}
}

// ObserveTelemetryQuery records a telemetry store query outcome.
func ObserveTelemetryQuery(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	telemetryQueriesTotal.WithLabelValues(outcome).Inc()
}
