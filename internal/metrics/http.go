// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsync_http_requests_total",
		Help: "Total number of status API requests by route and status class",
	}, []string{"route", "code"})

	SnapshotWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capsync_snapshot_write_errors_total",
		Help: "Total number of failed status snapshot writes",
	})

	HistoryWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capsync_history_write_errors_total",
		Help: "Total number of failed retirement history writes",
	})
)

// IncHTTPRequest records a served request. code is the status class, e.g. "2xx".
func IncHTTPRequest(route, code string) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(route, code).Inc()
}

func IncSnapshotWriteError() { SnapshotWriteErrorsTotal.Inc() }

func IncHistoryWriteError() { HistoryWriteErrorsTotal.Inc() }
