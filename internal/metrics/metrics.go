package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels operations that returned a result.
	OutcomeSuccess = "success"
	// OutcomeError labels operations that failed.
	OutcomeError = "error"

	namespace = "sla_forecast"
)

var (
	observationsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_recorded_total",
			Help:      "Observations accepted by the time-series store, by metric.",
		},
		[]string{"metric"},
	)

	observationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_rejected_total",
			Help:      "Observations rejected by the time-series store, by reason.",
		},
		[]string{"reason"},
	)

	forecastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecasts_total",
			Help:      "Forecast and outlook evaluations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	forecastDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_seconds",
			Help:      "Forecast and outlook evaluation latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	assessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Risk assessments produced, by tier.",
		},
		[]string{"tier"},
	)

	anomaliesFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_flagged_total",
			Help:      "Samples flagged as anomalous.",
		},
	)

	recommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendations emitted, by urgency.",
		},
		[]string{"urgency"},
	)

	ingestRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Scheduled ingestion runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches the forecast engine collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		observationsRecorded,
		observationsRejected,
		forecastsTotal,
		forecastDurationSeconds,
		assessmentsTotal,
		anomaliesFlagged,
		recommendationsTotal,
		ingestRunsTotal,
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

// ObserveRecorded counts an accepted observation.
func ObserveRecorded(metric string) {
	observationsRecorded.WithLabelValues(metric).Inc()
}

// ObserveRejected counts a rejected observation; reason is e.g. "out_of_order" or "invalid".
func ObserveRejected(reason string) {
	observationsRejected.WithLabelValues(reason).Inc()
}

// ObserveForecast records an evaluation duration and outcome label.
func ObserveForecast(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	forecastsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	forecastDurationSeconds.Observe(duration.Seconds())
}

// ObserveAssessment counts an assessment in its tier.
func ObserveAssessment(tier string) {
	assessmentsTotal.WithLabelValues(tier).Inc()
}

// ObserveAnomalies adds n flagged samples.
func ObserveAnomalies(n int) {
	if n > 0 {
		anomaliesFlagged.Add(float64(n))
	}
}

// ObserveRecommendations adds n recommendations of one urgency.
func ObserveRecommendations(urgency string, n int) {
	if n > 0 {
		recommendationsTotal.WithLabelValues(urgency).Add(float64(n))
	}
}

// ObserveIngestRun counts a scheduled ingestion run.
func ObserveIngestRun(outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	ingestRunsTotal.WithLabelValues(label).Inc()
}
