package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	adminRequestsTotal       *prometheus.CounterVec
	adminLatencySeconds      *prometheus.HistogramVec
	adminErrorsTotal         *prometheus.CounterVec
	accessDecisionsTotal     *prometheus.CounterVec
	workflowTransitionsTotal *prometheus.CounterVec
	ledgerAdjustmentsTotal   *prometheus.CounterVec
	eventsPublishedTotal     *prometheus.CounterVec
	progressCacheTotal       *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the portal.
func RegisterMetrics() {
	registerOnce.Do(func() {
		adminRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_requests_total",
			Help: "Total number of admin API requests served.",
		}, []string{"method", "route", "status"})

		adminLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admin_latency_seconds",
			Help:    "Latency distribution for admin API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		adminErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_errors_total",
			Help: "Total number of error responses returned by admin endpoints.",
		}, []string{"method", "route", "status"})

		accessDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Artifact visibility decisions by outcome reason.",
		}, []string{"reason"})

		workflowTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Accrual record workflow transitions attempted.",
		}, []string{"action", "outcome"})

		ledgerAdjustmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_adjustments_total",
			Help: "Ledger balance adjustments applied.",
		}, []string{"direction"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events emitted to downstream consumers.",
		}, []string{"type"})

		progressCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_cache_total",
			Help: "CPD progress cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			adminRequestsTotal,
			adminLatencySeconds,
			adminErrorsTotal,
			accessDecisionsTotal,
			workflowTransitionsTotal,
			ledgerAdjustmentsTotal,
			eventsPublishedTotal,
			progressCacheTotal,
		)
	})
}

// AdminRequests exposes the counter for admin requests.
func AdminRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return adminRequestsTotal
}

// AdminLatency exposes the latency histogram for admin requests.
func AdminLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return adminLatencySeconds
}

// AdminErrors exposes the counter for admin error responses.
func AdminErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return adminErrorsTotal
}

// AccessDecisions counts gate outcomes, labelled "allowed" or the denial reason.
func AccessDecisions() *prometheus.CounterVec {
	RegisterMetrics()
	return accessDecisionsTotal
}

// WorkflowTransitions counts record transitions by action and outcome.
func WorkflowTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return workflowTransitionsTotal
}

// LedgerAdjustments counts balance changes by direction.
func LedgerAdjustments() *prometheus.CounterVec {
	RegisterMetrics()
	return ledgerAdjustmentsTotal
}

// EventsPublished counts emitted domain events by type.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}

// ProgressCache counts progress cache hits and misses.
func ProgressCache() *prometheus.CounterVec {
	RegisterMetrics()
	return progressCacheTotal
}
