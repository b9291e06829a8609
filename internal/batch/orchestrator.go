package batch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"billing-review-service/internal/models"
	"billing-review-service/internal/store"
	"billing-review-service/internal/telemetry"
)

// DocumentStore is the slice of the persistence layer the orchestrator needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (models.Document, error)
	SaveDocument(ctx context.Context, doc models.Document) error
}

// JobStore persists batch jobs.
type JobStore interface {
	SaveJob(ctx context.Context, job models.BatchJob) error
}

// Dispatcher schedules exactly one asynchronous review run per job id.
type Dispatcher interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Orchestrator validates a batch submission, moves every document into
// pending, persists the job, and hands off to the review worker.
type Orchestrator struct {
	documents  DocumentStore
	jobs       JobStore
	dispatcher Dispatcher
}

// New constructs an orchestrator over the given collaborators.
func New(documents DocumentStore, jobs JobStore, dispatcher Dispatcher) *Orchestrator {
	return &Orchestrator{
		documents:  documents,
		jobs:       jobs,
		dispatcher: dispatcher,
	}
}

// CreateBatchProcess resolves every document id, transitions all of them
// draft -> pending, persists documents then the job, and finally enqueues
// the review run. All-or-nothing on validation: an unknown id or a non-draft
// document aborts the batch before anything is persisted.
func (o *Orchestrator) CreateBatchProcess(ctx context.Context, documentIDs []string) (models.BatchJob, error) {
	if len(documentIDs) == 0 {
		return models.BatchJob{}, models.NewValidationError("document_ids must not be empty")
	}

	// Resolve everything up front so a bad id cannot leave a partial batch.
	docs := make([]models.Document, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, err := o.documents.GetDocument(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return models.BatchJob{}, models.NewValidationError("document %s not found", id)
			}
			return models.BatchJob{}, fmt.Errorf("resolve document %s: %w", id, err)
		}
		docs = append(docs, doc)
	}

	for i := range docs {
		if err := docs[i].SubmitForReview(); err != nil {
			// The caller gets told which document aborted the batch.
			return models.BatchJob{}, fmt.Errorf("document %s: %w", docs[i].ID, err)
		}
	}

	for i := range docs {
		if err := o.documents.SaveDocument(ctx, docs[i]); err != nil {
			return models.BatchJob{}, fmt.Errorf("persist document %s: %w", docs[i].ID, err)
		}
	}

	job := models.NewBatchJob(documentIDs)
	if err := o.jobs.SaveJob(ctx, job); err != nil {
		return models.BatchJob{}, fmt.Errorf("persist job: %w", err)
	}

	// Dispatch only after the job row is durable. If the enqueue fails the
	// job stays pending — discoverable and retryable by an operator — which
	// beats a dispatched worker with no job record.
	if err := o.dispatcher.Enqueue(ctx, job.ID); err != nil {
		log.Printf("batch: job %s persisted but dispatch failed: %v", job.ID, err)
		return job, nil
	}

	telemetry.BatchesSubmitted.Inc()
	return job, nil
}
