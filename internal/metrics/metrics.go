// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the prometheus collectors of the feeder.
// Nothing is served over the network; the registry is exported as a
// textfile-collector file on exit when a metrics file is configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the private registry every collector of this package registers with.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// EntriesSubmitted counts playlist segments appended to the chain.
	EntriesSubmitted = factory.NewCounter(prometheus.CounterOpts{
		Name: "ffplaylist_entries_submitted_total",
		Help: "Total number of media entries appended to the playlist chain",
	})

	// EntriesRetired counts queue entries retired by the progress monitor.
	EntriesRetired = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ffplaylist_entries_retired_total",
		Help: "Total number of queue entries retired, by inference reason",
	}, []string{"reason"})

	// QueueDepth is the number of live (not yet retired) entries.
	QueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "ffplaylist_queue_depth",
		Help: "Number of submitted entries not yet retired",
	})

	// BackpressureWait observes how long producers blocked on a full queue.
	BackpressureWait = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "ffplaylist_backpressure_wait_seconds",
		Help:    "Time a submission spent waiting for room in the queue",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4.4m
	})

	// ProgressRatio is the last observed read fraction of the active entry.
	ProgressRatio = factory.NewGauge(prometheus.GaugeOpts{
		Name: "ffplaylist_progress_ratio",
		Help: "Read offset divided by file size of the active entry",
	})

	// InspectErrors counts failed process introspections by kind.
	InspectErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ffplaylist_inspect_errors_total",
		Help: "Total number of failed open-file inspections of the consumer",
	}, []string{"kind"})

	procTerminate = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ffplaylist_proc_terminate_total",
		Help: "Signals sent to the consumer process group",
	}, []string{"signal", "result"})

	procWait = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ffplaylist_proc_wait_total",
		Help: "Consumer process exit outcomes observed during termination",
	}, []string{"result"})
)

// IncProcTerminate records a termination signal delivery attempt.
func IncProcTerminate(signal, result string) {
	procTerminate.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process finished.
func IncProcWait(result string) {
	procWait.WithLabelValues(result).Inc()
}
