// Package metrics exposes the engagement agent's Prometheus counters and
// histograms: crawl outcomes, pipeline stage latency, posting-queue depth,
// and rate-limiter waits, registered against the default registry and
// served over a /metrics handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CrawlJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crawl_jobs_total", Help: "Crawl jobs triggered by config and outcome"},
		[]string{"config", "outcome"},
	)
	CrawlPostsDiscovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crawl_posts_discovered_total", Help: "Posts discovered per crawl batch by config"},
		[]string{"config", "bucket"}, // bucket: new|duplicate|queued|error
	)
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Analysis pipeline stage latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)
	PostingQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "posting_queue_depth", Help: "Posting queue items by state"},
		[]string{"state"}, // state: queued|processing
	)
	PostingResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "posting_results_total", Help: "Posting attempts by platform and outcome"},
		[]string{"platform", "outcome"},
	)
	RateLimiterWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_limiter_wait_seconds",
			Help:    "Time a crawl adapter spent waiting on its rate limiter",
			Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"platform"},
	)
	EligibilityChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "eligibility_checks_total", Help: "Eligibility check outcomes by suggested action"},
		[]string{"suggested_action"},
	)
)

// Register adds every collector to the default registry. Safe to call
// once at process startup.
func Register() {
	prometheus.MustRegister(
		CrawlJobsTotal, CrawlPostsDiscovered, PipelineStageDuration,
		PostingQueueDepth, PostingResultsTotal, RateLimiterWaitSeconds,
		EligibilityChecksTotal,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStage records one pipeline node's wall-clock duration.
func ObserveStage(stage string, d time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
