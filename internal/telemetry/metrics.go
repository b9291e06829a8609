package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	DocumentsCreated  = prometheus.NewCounter(prometheus.CounterOpts{Name: "billing_documents_created_total", Help: "Documents created"})
	BatchesSubmitted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "billing_batches_submitted_total", Help: "Batch review jobs dispatched"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "billing_rate_limit_rejects_total", Help: "Requests rejected by the rate limiter"})
	ReviewsApproved   = prometheus.NewCounter(prometheus.CounterOpts{Name: "billing_reviews_approved_total", Help: "Documents approved by the review worker"})
	ReviewsRejected   = prometheus.NewCounter(prometheus.CounterOpts{Name: "billing_reviews_rejected_total", Help: "Documents rejected by the review worker"})
	JobsCompleted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "billing_jobs_completed_total", Help: "Batch jobs finalized as completed"})
	JobsFailed        = prometheus.NewCounter(prometheus.CounterOpts{Name: "billing_jobs_failed_total", Help: "Batch jobs finalized as failed"})
	QueueDepthGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "billing_review_queue_depth", Help: "Jobs waiting on the review queue"})
	JobsInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "billing_jobs_inflight", Help: "Batch jobs currently leased by a worker"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			DocumentsCreated,
			BatchesSubmitted,
			RateLimitRejects,
			ReviewsApproved,
			ReviewsRejected,
			JobsCompleted,
			JobsFailed,
			QueueDepthGauge,
			JobsInFlightGauge,
		)
	})
	return promhttp.Handler()
}
