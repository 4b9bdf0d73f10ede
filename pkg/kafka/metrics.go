package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Consumer message outcomes.
const (
	outcomeReceived     = "received"
	outcomeProcessed    = "processed"
	outcomeFailed       = "failed"
	outcomeDeadLettered = "dead_lettered"
)

// Producer publish results.
const (
	resultOK    = "ok"
	resultError = "error"
)

const (
	metricsNamespace = "gamelog"
	metricsSubsystem = "kafka"
)

var (
	consumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "consumer_messages_total",
			Help:      "Messages seen by a consumer, by outcome (received, processed, failed, dead_lettered).",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	consumerDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "consumer_duplicates_total",
			Help:      "Redelivered events skipped because their ID was already processed.",
		},
		[]string{"event_type"},
	)

	consumerHandleSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "consumer_handle_seconds",
			Help:      "Time spent in the handler per message, retries included.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"topic", "consumer_group"},
	)

	producerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "producer_messages_total",
			Help:      "Publish attempts, by result.",
		},
		[]string{"topic", "result"},
	)

	producerPublishSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "producer_publish_seconds",
			Help:      "Latency of a synchronous publish.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

func countConsumed(topic, group, outcome string) {
	consumerMessages.WithLabelValues(topic, group, outcome).Inc()
}
