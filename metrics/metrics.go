// Package metrics exposes prometheus counters shared by the transports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived counts inbound messages accepted for processing.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weighbot_messages_received_total",
		Help: "Inbound chat messages accepted for engine processing.",
	}, []string{"transport"})

	// ProcessErrors counts engine failures while handling a message.
	ProcessErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weighbot_process_errors_total",
		Help: "Messages whose engine processing returned an error.",
	}, []string{"transport"})

	// RepliesSent counts direct replies queued for delivery.
	RepliesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weighbot_replies_sent_total",
		Help: "Direct replies queued for outbound delivery.",
	}, []string{"transport"})

	// BroadcastsSent counts group broadcasts queued after report commits.
	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weighbot_broadcasts_sent_total",
		Help: "Group broadcasts queued after committed weighing reports.",
	})

	// WebhooksIgnored counts webhook notifications dropped before processing.
	WebhooksIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weighbot_webhooks_ignored_total",
		Help: "Webhook notifications ignored (non-message types, group traffic).",
	})
)
