// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ModelRetrainer/internal/domain"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrainer_runs_total",
		Help: "Pipeline runs by outcome",
	}, []string{"outcome"})

	trainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "retrainer_training_duration_seconds",
		Help:    "Time spent fitting and evaluating a candidate",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
	})

	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "retrainer_pending_records",
		Help: "Records accumulated since the last promotion",
	})

	productionVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "retrainer_production_version",
		Help: "Version of the current production model",
	})

	r2Score = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "retrainer_r2_score",
		Help: "Latest r2 score by role (candidate, production)",
	}, []string{"role"})

	notifyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrainer_notify_errors_total",
		Help: "Outcome publications that failed",
	})
)

// ObserveOutcome records a finished run.
func ObserveOutcome(outcome domain.PipelineOutcome) {
	runsTotal.WithLabelValues(string(outcome.Kind)).Inc()

	switch outcome.Kind {
	case domain.OutcomePromoted:
		pendingRecords.Set(0)
		productionVersion.Set(float64(outcome.Version))
		r2Score.WithLabelValues("candidate").Set(outcome.Candidate.R2)
		r2Score.WithLabelValues("production").Set(outcome.Candidate.R2)
	case domain.OutcomeRejected:
		pendingRecords.Set(float64(outcome.Pending))
		productionVersion.Set(float64(outcome.IncumbentVersion))
		r2Score.WithLabelValues("candidate").Set(outcome.Candidate.R2)
		r2Score.WithLabelValues("production").Set(outcome.Incumbent.R2)
	case domain.OutcomeNotEnoughData:
		pendingRecords.Set(float64(outcome.Pending))
	}
}

// ObserveTraining records how long a training attempt took.
func ObserveTraining(seconds float64) {
	trainingDuration.Observe(seconds)
}

// SetPending publishes the pending record count outside of runs.
func SetPending(n int) {
	pendingRecords.Set(float64(n))
}

// NotifyFailed counts a failed publication.
func NotifyFailed() {
	notifyErrors.Inc()
}
