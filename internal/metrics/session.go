// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreatedTotal counts sessions created for newly discovered devices.
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capsync_sessions_created_total",
		Help: "Total number of sessions created for newly discovered devices",
	})

	SessionsDemotedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capsync_sessions_demoted_total",
		Help: "Total number of sessions force-stopped because their device vanished",
	})

	SessionsCollectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capsync_sessions_collected_total",
		Help: "Total number of settled sessions removed from tracking",
	})

	// SessionsByStage is a snapshot of tracked sessions per lifecycle stage, refreshed every cycle.
	SessionsByStage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "capsync_sessions",
		Help: "Tracked sessions by lifecycle stage (last cycle)",
	}, []string{"stage"})

	SessionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsync_session_failures_total",
		Help: "Total number of session failures by kind",
	}, []string{"kind"}) // kind=acquire|pull|other

	FramesDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capsync_frames_delivered_total",
		Help: "Total number of frames pulled and pushed to subscribers",
	})

	InventoryScanFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capsync_inventory_scan_failures_total",
		Help: "Total number of inventory scans that failed and were treated as empty",
	})

	InventoryDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capsync_inventory_devices",
		Help: "Number of unique devices seen by the last inventory scan",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capsync_cycle_duration_seconds",
		Help:    "Time taken by one reconcile and advance cycle",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

func IncSessionsCreated(n int)   { SessionsCreatedTotal.Add(float64(n)) }
func IncSessionsDemoted(n int)   { SessionsDemotedTotal.Add(float64(n)) }
func IncSessionsCollected(n int) { SessionsCollectedTotal.Add(float64(n)) }

// IncSessionFailure records a failure routed to STOP.
func IncSessionFailure(kind string) {
	if kind == "" {
		kind = "other"
	}
	SessionFailuresTotal.WithLabelValues(kind).Inc()
}

func IncFramesDelivered() { FramesDeliveredTotal.Inc() }

func IncInventoryScanFailure() { InventoryScanFailuresTotal.Inc() }

func SetInventoryDevices(n int) { InventoryDevices.Set(float64(n)) }

// SetSessionsByStage replaces the per-stage gauge. Stages missing from counts are reset to zero.
func SetSessionsByStage(stages []string, counts map[string]int) {
	for _, st := range stages {
		SessionsByStage.WithLabelValues(st).Set(float64(counts[st]))
	}
}

// ObserveCycleDuration records the duration of one cycle.
func ObserveCycleDuration(d time.Duration) {
	CycleDuration.Observe(d.Seconds())
}
