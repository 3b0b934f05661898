// Package metrics provides Prometheus metrics for the ingestion
// pipeline: publish volume, processing outcomes and storage latencies.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "xray"
)

// Rejection reasons used as label values on MessagesRejectedTotal.
const (
	ReasonDecode     = "decode"
	ReasonValidation = "validation"
	ReasonDuplicate  = "duplicate"
	ReasonStorage    = "storage"
)

// Producer metrics track the publish side of the pipeline.
var (
	// MessagesPublishedTotal counts envelopes published to the queue.
	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total number of telemetry envelopes published to the queue",
		},
		[]string{"kind"}, // kind: sample, random
	)

	// PublishFailuresTotal counts envelopes that could not be published.
	PublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Total number of publish attempts rejected by the transport",
		},
	)

	// QueuePublishLatency measures time to publish a message to the queue.
	QueuePublishLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_publish_latency_seconds",
			Help:      "Time to publish a message to the queue in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)
)

// Consumer metrics track the processing side of the pipeline.
var (
	// MessagesConsumedTotal counts messages delivered to the processor.
	MessagesConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total number of messages delivered to the processor",
		},
	)

	// MessagesRejectedTotal counts rejected messages by failure reason.
	MessagesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Total number of messages rejected without requeue",
		},
		[]string{"reason"}, // reason: decode, validation, duplicate, storage
	)

	// SignalsPersistedTotal counts signals durably committed to storage.
	SignalsPersistedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_persisted_total",
			Help:      "Total number of signals committed to storage",
		},
	)

	// MessageProcessingLatency measures decode-to-commit time per message.
	MessageProcessingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_processing_latency_seconds",
			Help:      "Time to process a single delivered message in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Storage metrics track database and state store operations.
var (
	// StorageOperationLatency measures latency of storage operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of storage operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"store", "operation"}, // store: postgres, redis
	)

	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"store", "operation", "status"}, // status: success, failure
	)
)

// ObserveStorage records the latency and outcome of one storage
// operation that started at start.
func ObserveStorage(store, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	StorageOperationLatency.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
	StorageOperationsTotal.WithLabelValues(store, operation, status).Inc()
}
