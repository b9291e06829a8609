package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"billing-review-service/internal/config"
	"billing-review-service/internal/models"
	"billing-review-service/internal/store"
	"billing-review-service/internal/telemetry"
)

// DocumentStore is the slice of persistence the review loop needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (models.Document, error)
	SaveDocument(ctx context.Context, doc models.Document) error
}

// JobStore fetches and persists batch jobs.
type JobStore interface {
	GetJob(ctx context.Context, id string) (models.BatchJob, error)
	SaveJob(ctx context.Context, job models.BatchJob) error
}

// Queue is the consumption side of the review queue.
type Queue interface {
	DequeueWithLease(ctx context.Context) (string, error)
	Ack(ctx context.Context, jobID string) error
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	Depth(ctx context.Context) (int64, error)
}

// ReportWriter archives a finalized job's review report.
type ReportWriter interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Outcome is a review decision for a single pending document.
type Outcome int

const (
	OutcomeApprove Outcome = iota
	OutcomeReject
)

// DecisionFunc decides approve vs reject for one pending document. The
// default is a placeholder policy; deployments plug in their own.
type DecisionFunc func(doc models.Document) Outcome

// RandomDecision approves with the given probability, rejecting otherwise.
func RandomDecision(approveRatio float64) DecisionFunc {
	return func(models.Document) Outcome {
		if rand.Float64() < approveRatio {
			return OutcomeApprove
		}
		return OutcomeReject
	}
}

// Processor drives the review worker loop: one leased job at a time, every
// exit path finalizing the job as completed or failed.
type Processor struct {
	queue        Queue
	documents    DocumentStore
	jobs         JobStore
	decide       DecisionFunc
	reports      ReportWriter
	reviewDelay  time.Duration
	pollInterval time.Duration
}

// NewProcessor builds a processor with the default random decision policy.
func NewProcessor(cfg config.Config, q Queue, documents DocumentStore, jobs JobStore) *Processor {
	return &Processor{
		queue:        q,
		documents:    documents,
		jobs:         jobs,
		decide:       RandomDecision(cfg.ApproveRatio),
		reviewDelay:  cfg.ReviewDelay,
		pollInterval: cfg.WorkerPollInterval,
	}
}

// SetDecision replaces the review decision policy.
func (p *Processor) SetDecision(fn DecisionFunc) {
	if fn != nil {
		p.decide = fn
	}
}

// SetReportWriter enables review-report archiving after job finalization.
func (p *Processor) SetReportWriter(w ReportWriter) {
	p.reports = w
}

// Run consumes the review queue until context cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if reclaimed, err := p.queue.RequeueExpired(ctx, time.Now(), 100); err == nil && len(reclaimed) > 0 {
			log.Printf("worker: reclaimed %d expired leases", len(reclaimed))
		}
		if depth, err := p.queue.Depth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		jobID, err := p.queue.DequeueWithLease(ctx)
		if err != nil || jobID == "" {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.pollInterval):
			}
			continue
		}

		telemetry.JobsInFlightGauge.Inc()
		if err := p.ProcessJob(ctx, jobID); err != nil {
			// Store unreachable before the job could be finalized; keep the
			// lease so the reclaim path re-delivers the id.
			log.Printf("worker: job %s: %v", jobID, err)
			telemetry.JobsInFlightGauge.Dec()
			continue
		}
		_ = p.queue.Ack(ctx, jobID)
		telemetry.JobsInFlightGauge.Dec()
	}
}

// ProcessJob runs one review pass over a batch job. A missing job is a
// no-op; a job already in a terminal state is a no-op (duplicate delivery).
// Otherwise the job always leaves in completed or failed: review errors and
// panics are recorded on the job rather than propagated.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) error {
	job, err := p.jobs.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch job: %w", err)
	}
	if job.Status.Terminal() {
		return nil
	}

	job.StartProcessing()
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("persist processing state: %w", err)
	}

	outcomes, reviewErr := p.reviewDocuments(ctx, job)
	if reviewErr != nil {
		job.MarkFailed(reviewErr.Error())
	} else {
		job.MarkCompleted()
	}
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}

	if reviewErr != nil {
		telemetry.JobsFailed.Inc()
	} else {
		telemetry.JobsCompleted.Inc()
	}
	p.archiveReport(ctx, job, outcomes)
	return nil
}

// reviewDocuments walks the job's document list in order, deciding and
// persisting each document. Documents already processed before a failure
// keep their new state. A panicking decision function becomes an error so
// the caller can still finalize the job.
func (p *Processor) reviewDocuments(ctx context.Context, job models.BatchJob) (outcomes map[string]models.DocumentStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("review panicked: %v", r)
		}
	}()

	// Pacing delay simulating real review latency; holds no lock.
	if p.reviewDelay > 0 {
		select {
		case <-ctx.Done():
			return outcomes, ctx.Err()
		case <-time.After(p.reviewDelay):
		}
	}

	outcomes = make(map[string]models.DocumentStatus, len(job.DocumentIDs))
	for _, id := range job.DocumentIDs {
		doc, err := p.documents.GetDocument(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			// A single vanished document does not fail the whole run.
			continue
		}
		if err != nil {
			return outcomes, fmt.Errorf("fetch document %s: %w", id, err)
		}
		if doc.Status != models.StatusPending {
			// A redelivered job may have decided some documents before the
			// previous run died. Keep their state and finish the rest.
			outcomes[id] = doc.Status
			continue
		}

		switch p.decide(doc) {
		case OutcomeApprove:
			if err := doc.Approve(); err != nil {
				return outcomes, err
			}
			telemetry.ReviewsApproved.Inc()
		default:
			if err := doc.Reject(); err != nil {
				return outcomes, err
			}
			telemetry.ReviewsRejected.Inc()
		}

		if err := p.documents.SaveDocument(ctx, doc); err != nil {
			return outcomes, fmt.Errorf("persist document %s: %w", id, err)
		}
		outcomes[id] = doc.Status
	}
	return outcomes, nil
}
