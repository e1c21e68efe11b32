// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts individual approver decisions by outcome.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdlc_approvals_decisions_total",
		Help: "Individual approver decisions recorded, by outcome.",
	}, []string{"outcome"})

	// RoundsCompletedTotal counts completed approval rounds by outcome.
	RoundsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdlc_approvals_rounds_completed_total",
		Help: "Approval rounds driven to completion, by aggregate outcome.",
	}, []string{"outcome"})

	// StatusRequestsTotal counts status change requests by disposition:
	// gated (approver set exists) or immediate (no gate configured).
	StatusRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdlc_approvals_status_requests_total",
		Help: "Project status change requests, by disposition.",
	}, []string{"disposition"})

	// DecideDuration observes the latency of the decide critical section.
	DecideDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sdlc_approvals_decide_duration_seconds",
		Help:    "Latency of decision recording including resolver evaluation.",
		Buckets: prometheus.DefBuckets,
	})
)
