// Package metrics holds the Prometheus collectors for mail-labeler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mail_labeler"

// Outcome and result label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"

	PredictionCached   = "cached"
	PredictionComputed = "computed"

	IngestCommitted = "committed"
	IngestSkipped   = "skipped"
	IngestRequeued  = "requeued"
)

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, partitioned by source.",
		},
		[]string{"source"},
	)

	correctionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "User corrections applied.",
		},
	)

	rebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_rebuilds_total",
			Help:      "Full model rebuilds performed.",
		},
	)

	rebuildDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_rebuild_seconds",
			Help:      "Model rebuild latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	samplesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_samples",
			Help:      "Samples in the active model.",
		},
	)

	vocabularyGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_vocabulary_size",
			Help:      "Distinct tokens in the active model.",
		},
	)

	ingestItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_items_total",
			Help:      "Ingestion queue items, partitioned by result.",
		},
		[]string{"result"},
	)

	ingestRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	ingestPendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_pending",
			Help:      "Identifiers waiting in the ingestion queue.",
		},
	)

	persistWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_writes_total",
			Help:      "Persistence writes, partitioned by writer and outcome.",
		},
		[]string{"writer", "outcome"},
	)
)

// Register attaches the collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		predictionsTotal,
		correctionsTotal,
		rebuildsTotal,
		rebuildDurationSeconds,
		samplesGauge,
		vocabularyGauge,
		ingestItemsTotal,
		ingestRunsTotal,
		ingestPendingGauge,
		persistWritesTotal,
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

// RecordPrediction counts a served prediction.
func RecordPrediction(source string) {
	predictionsTotal.WithLabelValues(source).Inc()
}

// RecordCorrection counts a user correction.
func RecordCorrection() {
	correctionsTotal.Inc()
}

// ObserveRebuild records a rebuild and the size of the resulting model.
func ObserveRebuild(duration time.Duration, samples, vocabulary int) {
	rebuildsTotal.Inc()
	if duration < 0 {
		duration = 0
	}
	rebuildDurationSeconds.Observe(duration.Seconds())
	samplesGauge.Set(float64(samples))
	vocabularyGauge.Set(float64(vocabulary))
}

// RecordIngestItem counts one processed queue item.
func RecordIngestItem(result string) {
	ingestItemsTotal.WithLabelValues(result).Inc()
}

// RecordIngestRun counts a finished ingestion run.
func RecordIngestRun(outcome string, pending int) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	ingestRunsTotal.WithLabelValues(label).Inc()
	ingestPendingGauge.Set(float64(pending))
}

// SetIngestPending reports the queue length outside of a run.
func SetIngestPending(pending int) {
	ingestPendingGauge.Set(float64(pending))
}

// RecordPersistWrite counts a persistence write attempt sequence.
func RecordPersistWrite(writer, outcome string) {
	persistWritesTotal.WithLabelValues(writer, outcome).Inc()
}
