package services

import "github.com/prometheus/client_golang/prometheus"

// Domain-level Prometheus counters. HTTP-level metrics (request totals,
// latencies) live in the middleware layer; these count business events.
var (
	messagesSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_saved_total",
			Help: "Total chat messages persisted, by sender role.",
		},
		[]string{"sender"},
	)

	changeFeedPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_change_feed_polls_total",
			Help: "Total change-feed poll requests served.",
		},
	)

	webhookRelays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_webhook_relays_total",
			Help: "Outbound webhook relay attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	retentionDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_retention_sessions_deleted_total",
			Help: "Sessions removed by the retention cleanup job.",
		},
	)
)

func init() {
	prometheus.MustRegister(messagesSaved, changeFeedPolls, webhookRelays, retentionDeleted)
}
