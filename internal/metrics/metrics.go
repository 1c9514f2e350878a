package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total messages persisted",
		},
		[]string{"author"}, // "human" or "assistant"
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Open websocket connections on this node",
		},
	)

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_dropped_total",
			Help: "Clients dropped because their send buffer was full",
		},
	)

	// Assistant metrics
	AssistantTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_assistant_tasks_total",
			Help: "Assistant tasks by outcome",
		},
		[]string{"outcome"}, // "succeeded", "retried", "dead_lettered", "requeued"
	)

	AssistantGeneration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_assistant_generation_seconds",
			Help:    "Language generation latency",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)

// Assistant task outcomes.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeRequeued     = "requeued"
)

// AuthorLabel returns the author label for MessagesSent.
func AuthorLabel(assistant bool) string {
	if assistant {
		return "assistant"
	}
	return "human"
}
