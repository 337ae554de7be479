// Package metrics exposes this node's Prometheus counters and gauges. They
// register against the default registry, which servers and proxies serve
// from their ops HTTP surface; the client has no such surface (spec §5's
// "no task blocks the router thread" extends naturally to metrics: nothing
// here touches the wire-protocol router).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// MessagesHandled counts frames dispatched by the wire router, labeled by
	// message type and outcome (ok/nack/no_handler/panic).
	MessagesHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shoplist_messages_handled_total",
		Help: "Total wire protocol messages handled, by type and outcome.",
	}, []string{"type", "outcome"})

	// GossipRounds counts completed gossip ticks.
	GossipRounds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shoplist_gossip_rounds_total",
		Help: "Total gossip ticks completed by this node.",
	})

	// HintedHandoffsSent counts successful hinted handoff deliveries.
	HintedHandoffsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shoplist_hinted_handoffs_sent_total",
		Help: "Total hinted handoff batches successfully delivered.",
	})

	// KnownServers reports this node's current server-set size.
	KnownServers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shoplist_known_servers",
		Help: "Number of servers in this node's membership view.",
	})

	// MembershipVersion reports this node's current gossip version.
	MembershipVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shoplist_membership_version",
		Help: "This node's current membership protocol version.",
	})
)

func init() {
	prometheus.MustRegister(MessagesHandled, GossipRounds, HintedHandoffsSent, KnownServers, MembershipVersion)
}
