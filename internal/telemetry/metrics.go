package telemetry

import "github.com/prometheus/client_golang/prometheus"

var JobsEnqueuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Total number of jobs enqueued.",
	},
)

var JobsClaimedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "jobs",
		Name:      "claimed_total",
		Help:      "Total number of job claims, by host id.",
	},
	[]string{"host_id"},
)

var JobsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "jobs",
		Name:      "completed_total",
		Help:      "Total number of completed job reports, by outcome.",
	},
	[]string{"outcome"},
)

var JobsRequeuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "jobs",
		Name:      "requeued_total",
		Help:      "Total number of jobs requeued after lease expiry.",
	},
)

var HostsRegisteredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "hosts",
		Name:      "registered_total",
		Help:      "Total number of host registrations (including re-registrations).",
	},
)

var ServicesDeployedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "services",
		Name:      "deployed_total",
		Help:      "Total number of services deployed.",
	},
)

var QuorumAcksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "replication",
		Name:      "acks_total",
		Help:      "Total number of peer acknowledgements observed during quorum fanout, by result.",
	},
	[]string{"result"},
)

var QuorumFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "replication",
		Name:      "quorum_failures_total",
		Help:      "Total number of mutations rolled back for failing to reach quorum.",
	},
)

var ReplicationFanoutDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "skyclaw",
		Subsystem: "replication",
		Name:      "fanout_duration_seconds",
		Help:      "Time spent fanning a snapshot out to peers during a quorum write.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
)

var GossipPeersKnown = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "skyclaw",
		Subsystem: "gossip",
		Name:      "peers_known",
		Help:      "Current number of known peers in this node's peer set.",
	},
)

var IdempotencyHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "idempotency",
		Name:      "hits_total",
		Help:      "Total number of idempotency key lookups, by outcome (miss/replay/conflict).",
	},
	[]string{"outcome"},
)

var IdempotencyRecordsGCedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "skyclaw",
		Subsystem: "idempotency",
		Name:      "records_gced_total",
		Help:      "Total number of expired idempotency records removed by the GC sweep.",
	},
)

var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "skyclaw",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request processing duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"route", "method", "status"},
)

// All returns every skyclaw-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		JobsEnqueuedTotal,
		JobsClaimedTotal,
		JobsCompletedTotal,
		JobsRequeuedTotal,
		HostsRegisteredTotal,
		ServicesDeployedTotal,
		QuorumAcksTotal,
		QuorumFailuresTotal,
		ReplicationFanoutDuration,
		GossipPeersKnown,
		IdempotencyHitsTotal,
		IdempotencyRecordsGCedTotal,
		RequestDuration,
	}
}
