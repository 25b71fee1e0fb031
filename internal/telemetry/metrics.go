// Package telemetry provides Prometheus metrics and OpenTelemetry tracing setup.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Batches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "closing",
		Subsystem: "executor",
		Name:      "batches_total",
		Help:      "Batches that reached execution, labelled by result (completed, partial, failed).",
	}, []string{"result"})

	BatchRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "closing",
		Subsystem: "executor",
		Name:      "batch_rejections_total",
		Help:      "Batches rejected before any invocation, labelled by reason.",
	}, []string{"reason"})

	Invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "closing",
		Subsystem: "executor",
		Name:      "invocations_total",
		Help:      "Per-process outcomes, labelled by category and status.",
	}, []string{"category", "status"})

	InvocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "closing",
		Subsystem: "executor",
		Name:      "invocation_duration_seconds",
		Help:      "Closing procedure call time in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"category"})
)
