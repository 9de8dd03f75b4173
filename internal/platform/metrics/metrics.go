package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime core instrumentation, scraped at GET /metrics.
var (
	Connections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshup_realtime_connections",
			Help: "Live realtime connections by room kind",
		},
		[]string{"kind"},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshup_realtime_broadcasts_total",
			Help: "Frames fanned out to a room",
		},
		[]string{"kind"},
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshup_realtime_delivery_failures_total",
			Help: "Handles that could not take a frame and were pruned",
		},
		[]string{"kind"},
	)

	BrokerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshup_realtime_broker_errors_total",
			Help: "Broker publish or subscribe failures",
		},
		[]string{"op"}, // "publish", "subscribe", "decode"
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshup_realtime_inbound_events_total",
			Help: "Inbound frames by room kind and tag",
		},
		[]string{"kind", "tag"},
	)

	Refused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshup_realtime_refused_total",
			Help: "Connections refused before joining a room",
		},
		[]string{"kind", "reason"},
	)

	CallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshup_calls_transitions_total",
			Help: "Call status transitions by target status",
		},
		[]string{"to"},
	)
)
