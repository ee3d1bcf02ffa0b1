package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests counts incoming webhooks, labeled by outcome.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_webhook_requests_total",
		Help: "The total number of received webhook requests",
	}, []string{"status"}) // status: accepted, ignored, invalid, unauthorized

	// ReviewsTotal counts completed review jobs, labeled by result.
	ReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_reviews_total",
		Help: "The total number of processed review jobs",
	}, []string{"result"}) // result: success, failed

	// ReviewDuration measures end-to-end review processing time.
	ReviewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_review_duration_seconds",
		Help:    "Time taken to process a review job",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"result"})

	// ToolRuns counts static-analyzer invocations by tool and outcome.
	ToolRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_tool_runs_total",
		Help: "The total number of static tool invocations",
	}, []string{"tool", "status"}) // status: success, failed

	// IssuesFound counts issues surviving aggregation, by category.
	IssuesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_issues_found_total",
		Help: "The total number of issues found across reviews",
	}, []string{"category"})
)
