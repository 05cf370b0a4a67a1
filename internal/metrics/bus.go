// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capsync_bus_published_total",
		Help: "Total number of frames handed to the subscriber bus",
	})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsync_bus_dropped_total",
		Help: "Total number of frames dropped by the subscriber bus by reason",
	}, []string{"reason"}) // reason=full|no_subscriber|closed
)

// IncBusPublished records one frame handed to a subscriber queue.
func IncBusPublished() {
	BusPublishedTotal.Inc()
}

// IncBusDrop records a dropped frame with a concrete reason.
func IncBusDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(reason).Inc()
}
