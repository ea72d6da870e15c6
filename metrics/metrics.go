// Package metrics exposes the Prometheus counters and histograms scraped
// from GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "executor_http_requests_total",
		Help: "Total HTTP requests handled, by route and status class.",
	}, []string{"route", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "executor_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds, by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "executor_builds_total",
		Help: "Total runtime build attempts, by outcome.",
	}, []string{"outcome"})

	InvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "executor_invocations_total",
		Help: "Total runtime invocations, by outcome.",
	}, []string{"outcome"})

	InvocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "executor_invocation_duration_seconds",
		Help:    "Invocation duration in seconds, including cold-start waits.",
		Buckets: prometheus.DefBuckets,
	})

	ReaperCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "executor_reaper_cycles_total",
		Help: "Total reaper cycles, by outcome (acquired, renewed, skipped).",
	}, []string{"outcome"})

	ReapedRuntimes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "executor_reaped_runtimes_total",
		Help: "Total runtimes scaled to zero by the reaper.",
	})
)
