// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsync_proc_terminate_total",
		Help: "Signals sent to capture helper process groups by result",
	}, []string{"signal", "result"}) // result=sent|esrch|error

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsync_proc_wait_total",
		Help: "Capture helper process exits observed during termination",
	}, []string{"outcome"})
)

// IncProcTerminate records a signal sent to a helper process group.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated helper process exited.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}
