package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label names
const (
	LabelChannel = "channel"
	LabelEvent   = "event"
	LabelOutcome = "outcome"
)

// Handshake outcomes
const (
	OutcomeForwarded = "forwarded"
	OutcomeAssigned  = "assigned"
	OutcomeConfirmed = "confirmed"
	OutcomeNotFound  = "not_found"
	OutcomeNotOnline = "not_online"
	OutcomeRejected  = "rejected"
)

var (
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tipjar_connections_active",
			Help: "Open websocket connections per channel.",
		},
		[]string{LabelChannel},
	)

	StreamersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tipjar_streamers_online",
			Help: "Streamer identities with a live connection binding.",
		},
	)

	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipjar_events_dispatched_total",
			Help: "Inbound events handled by the dispatcher.",
		},
		[]string{LabelChannel, LabelEvent},
	)

	DeliveriesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipjar_deliveries_dropped_total",
			Help: "Outbound events that had no live recipient or a full send buffer.",
		},
		[]string{LabelEvent},
	)

	Handshakes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipjar_handshakes_total",
			Help: "Subaddress handshake steps by outcome.",
		},
		[]string{LabelOutcome},
	)

	WSWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipjar_ws_write_failures_total",
			Help: "Websocket writes or pings that failed and closed the connection.",
		},
		[]string{LabelChannel},
	)

	WSSlowConsumers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipjar_ws_slow_consumers_total",
			Help: "Frames refused because a connection's send buffer was full.",
		},
		[]string{LabelChannel},
	)

	HandshakesPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tipjar_handshakes_pending",
			Help: "Handshake requests awaiting a streamer response or payment.",
		},
	)
)
