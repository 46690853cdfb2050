// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strom_event_broadcast_drop_total",
		Help: "Total number of in-memory event broadcaster drops (backpressure)",
	}, []string{"flow_id"})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strom_event_broadcast_dropped_total",
		Help: "Total number of in-memory event broadcaster drops by flow and reason",
	}, []string{"flow_id", "reason"})
)

// IncBusDrop records a dropped bus message for the given flow.
func IncBusDrop(flowID string) {
	IncBusDropReason(flowID, "full")
}

// IncBusDropReason records a dropped bus message with a concrete reason.
func IncBusDropReason(flowID, reason string) {
	if flowID == "" {
		flowID = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDropsTotal.WithLabelValues(flowID).Inc()
	BusDroppedTotal.WithLabelValues(flowID, reason).Inc()
}
