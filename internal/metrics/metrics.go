// internal/metrics/metrics.go

// Package metrics exposes Prometheus collectors for the zone engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClusteringRunsTotal counts completed clustering recomputes.
	ClusteringRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geowhisper_clustering_runs_total",
		Help: "Number of completed zone clustering recomputes.",
	})

	// ClusteringFailuresTotal counts clustering refreshes that failed and
	// left the previous snapshot serving.
	ClusteringFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geowhisper_clustering_failures_total",
		Help: "Number of zone clustering refreshes that failed.",
	})

	// ZonesCurrent is the size of the current zone snapshot.
	ZonesCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geowhisper_zones_current",
		Help: "Number of zones in the current snapshot.",
	})

	// MessagesAppendedTotal counts messages appended across all zones.
	MessagesAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geowhisper_chat_messages_appended_total",
		Help: "Number of chat messages appended.",
	})

	// SubscribersCurrent is the number of live in-process chat subscribers.
	SubscribersCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geowhisper_chat_subscribers_current",
		Help: "Number of live chat subscriptions.",
	})

	// DroppedDeliveriesTotal counts fan-out deliveries dropped because a
	// subscriber could not keep up.
	DroppedDeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geowhisper_chat_dropped_deliveries_total",
		Help: "Number of fan-out deliveries dropped on slow subscribers.",
	})

	// PreCheckDegradedTotal counts pre-checks that fell back to local
	// heuristics because the classifier was unavailable.
	PreCheckDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geowhisper_moderation_precheck_degraded_total",
		Help: "Number of moderation pre-checks degraded to allow.",
	})

	// ModerationActionsTotal counts applied moderator actions by action.
	ModerationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geowhisper_moderation_actions_total",
		Help: "Number of applied moderator actions.",
	}, []string{"action"})
)
