package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Store metrics
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_store_operations_total",
			Help: "Total conversation store operations",
		},
		[]string{"backend", "op", "result"}, // result: "ok", "error" or "degraded"
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_store_operation_duration_seconds",
			Help:    "Conversation store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"backend", "op"},
	)

	DegradedReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_history_degraded_reads_total",
			Help: "History reads that swallowed a storage failure",
		},
		[]string{"backend"},
	)

	// Conversation lifecycle
	ConversationsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbot_conversations_started_total",
			Help: "Total conversations started",
		},
	)

	ConversationsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbot_conversations_closed_total",
			Help: "Total conversations closed",
		},
	)

	BotMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbot_bot_messages_dropped_total",
			Help: "Bot messages dropped for lack of a current conversation",
		},
	)
)
