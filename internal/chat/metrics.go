package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securechat_messages_sent_total",
		Help: "Messages encrypted and stored.",
	})
	messagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securechat_messages_rejected_total",
		Help: "Sends rejected before reaching the store, by reason.",
	}, []string{"reason"})
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securechat_deliveries_total",
		Help: "Rows offered to sessions, by outcome (visible or suppressed).",
	}, []string{"outcome"})
	feedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securechat_feed_dropped_total",
		Help: "Feed inserts dropped because the row was expired or deleted.",
	})
	feedResubscribes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securechat_feed_resubscribes_total",
		Help: "Times the hub had to re-establish its feed subscription.",
	})
	feedPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securechat_feed_publish_failures_total",
		Help: "Store writes that could not be announced on the feed.",
	})
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "securechat_active_connections",
		Help: "Connections currently registered with this hub.",
	})
)
