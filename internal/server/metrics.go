package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics with bounded cardinality; no per-player or per-connection labels.
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent in one game tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.02, 0.05},
	})

	snapshotBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_snapshot_bytes",
		Help:    "Serialized snapshot size before diffing",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	})

	snapshotDiffBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_snapshot_diff_bytes",
		Help:    "Snapshot diff size on the wire",
		Buckets: prometheus.ExponentialBuckets(16, 4, 8),
	})

	readyClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_ready_clients",
		Help: "Connections with at least one joined player",
	})

	queuedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_queued_clients",
		Help: "Connections waiting for a free slot",
	})

	playerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_player_count",
		Help: "Joined players across all connections",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_connection_rejected_total",
		Help: "Connections rejected before the handshake",
	}, []string{"reason"}) // bounded: "rate_limit", "ip_limit", "banned"

	votesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_votes_started_total",
		Help: "Votes started",
	})

	votesPassed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_votes_passed_total",
		Help: "Votes that passed",
	})

	inputsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_inputs_dropped_total",
		Help: "Input chains dropped for a missing diff baseline",
	})
)

func recordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}
