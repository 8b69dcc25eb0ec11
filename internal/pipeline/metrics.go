package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratecon_documents_total",
			Help: "Total number of processed documents",
		},
		[]string{"outcome"}, // delivered, failed
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratecon_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 25, 60, 120},
		},
		[]string{"stage"}, // download, acquire, extract, render
	)

	textMethodTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratecon_text_acquisition_total",
			Help: "Text acquisitions by method",
		},
		[]string{"method"}, // pdf-text, pdf-ocr, pdf-text-degraded
	)

	extractLayerTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratecon_extract_layer_total",
			Help: "Extraction layer runs by outcome",
		},
		[]string{"layer", "outcome"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ratecon_active_user_workers",
			Help: "Number of live per-user queue workers",
		},
	)
)

// ObserveLayer matches extract.LayerObserver.
func ObserveLayer(layer, outcome string, _ int64) {
	extractLayerTotal.WithLabelValues(layer, outcome).Inc()
}

// SetActiveWorkers matches the async registry observer.
func SetActiveWorkers(n int) {
	activeWorkers.Set(float64(n))
}
