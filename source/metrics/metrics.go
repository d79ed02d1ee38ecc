// Package metrics exposes the prometheus surface described in
// SPEC_FULL.md §4.10. It is deliberately small: one gauge per live
// resource, one counter vector for flush decisions, one counter vector for
// dropped ingress.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResendInflight is the current size of a connection's resend map,
	// labeled by the connection's ConnID string (local and peer GUIDs).
	ResendInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "raknet",
		Name:      "resend_inflight",
		Help:      "Reliable frame-sets currently awaiting ACK.",
	}, []string{"conn"})

	// FlushTotal counts how many times each of {ack,nack,pack} was the
	// thing actually flushed in a drain cycle.
	FlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raknet",
		Name:      "flush_total",
		Help:      "Flush decisions made by the outgoing guard, by kind.",
	}, []string{"kind"})

	// IncomingDroppedTotal counts queued ACK/NACK packets displaced by
	// SharedLink's force-push ingress queues because they were already full.
	IncomingDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raknet",
		Name:      "incoming_dropped_total",
		Help:      "Incoming ACK/NACK packets dropped due to queue overflow, by kind.",
	}, []string{"kind"})

	// RouterPeers is the number of peers currently demultiplexed by a
	// dispatcher's router.
	RouterPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "raknet",
		Name:      "router_peers",
		Help:      "Peers currently tracked by the incoming router.",
	})
)
