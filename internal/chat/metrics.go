package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "chat",
			Name:      "sessions_created_total",
			Help:      "Chat sessions created.",
		},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Messages appended to conversations, by role.",
		},
		[]string{"role"},
	)

	revealsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "chat",
			Name:      "reveals_total",
			Help:      "Streaming reveals that ended, by outcome.",
		},
		[]string{"outcome"},
	)

	revealChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "chat",
			Name:      "reveal_chunks_total",
			Help:      "Chunks written by streaming reveals.",
		},
	)

	sendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "chat",
			Name:      "send_failures_total",
			Help:      "Chat turns that failed at the memory service.",
		},
	)
)
