// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasknotes",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tasknotes",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	AuthEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasknotes",
		Name:      "auth_events_total",
		Help:      "Registration, login and logout attempts by outcome.",
	}, []string{"event", "result"})

	LedgerMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasknotes",
		Name:      "ledger_mutations_total",
		Help:      "Task and note mutations by entity, operation and outcome.",
	}, []string{"entity", "op", "result"})

	SummarizeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasknotes",
		Name:      "summarize_requests_total",
		Help:      "Summarization requests by outcome (ok, cached, error, rate_limited).",
	}, []string{"result"})

	SummarizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tasknotes",
		Name:      "summarize_upstream_duration_seconds",
		Help:      "Latency of calls to the completion API.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})

	MailJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasknotes",
		Name:      "mail_jobs_total",
		Help:      "Mail queue events (queued, sent, retry, dlq).",
	}, []string{"result"})

	RateLimitDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tasknotes",
		Name:      "ratelimit_denied_total",
		Help:      "Requests rejected by the rate limiter.",
	})
)
