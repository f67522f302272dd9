// Package metrics declares the Prometheus collectors exported by the echo chamber.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results used as the "result" label of DeliveriesTotal.
const (
	ResultDelivered = "delivered"
	ResultEvicted   = "evicted"
)

// Hub metrics
var (
	// ConnectedClients tracks the number of handles currently in the registry.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "echochamber_connected_clients",
			Help: "Number of clients currently registered with the hub",
		},
	)

	// BroadcastsTotal counts broadcast calls, regardless of recipient count.
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echochamber_broadcasts_total",
			Help: "Total broadcast calls handled by the hub",
		},
	)

	// DeliveriesTotal counts per-recipient delivery attempts by result.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echochamber_deliveries_total",
			Help: "Per-recipient delivery attempts by result (delivered/evicted)",
		},
		[]string{"result"},
	)
)

// Session metrics
var (
	// SessionsClosed counts terminated sessions by close reason.
	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echochamber_sessions_closed_total",
			Help: "Terminated sessions by close reason",
		},
		[]string{"reason"},
	)

	// RateLimited counts inbound messages discarded by the per-connection limiter.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echochamber_rate_limited_total",
			Help: "Inbound messages discarded because the sender exceeded its rate limit",
		},
	)

	// UpgradeFailures counts rejected or failed WebSocket upgrades.
	UpgradeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echochamber_upgrade_failures_total",
			Help: "WebSocket upgrade requests that failed the handshake",
		},
	)
)
