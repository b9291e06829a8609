package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the batch job lifecycle state.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// BatchJob tracks one asynchronous review run over a fixed set of documents.
// DocumentIDs is fixed at creation. CompletedAt is set exactly once, by the
// same call that moves the job to its terminal status; ErrorMessage is
// non-nil iff the job failed.
type BatchJob struct {
	ID           string     `json:"id"`
	DocumentIDs  []string   `json:"document_ids"`
	Status       JobStatus  `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ErrorMessage *string    `json:"error_message"`
}

// NewBatchJob builds a pending job over the given document ids.
func NewBatchJob(documentIDs []string) BatchJob {
	ids := make([]string, len(documentIDs))
	copy(ids, documentIDs)
	return BatchJob{
		ID:          uuid.New().String(),
		DocumentIDs: ids,
		Status:      JobPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// StartProcessing marks the job as picked up by the worker. Source state is
// not checked: the worker is the single caller and invokes this once per run.
func (j *BatchJob) StartProcessing() {
	j.Status = JobProcessing
}

// MarkCompleted finalizes the job successfully.
func (j *BatchJob) MarkCompleted() {
	now := time.Now().UTC()
	j.Status = JobCompleted
	j.CompletedAt = &now
	j.ErrorMessage = nil
}

// MarkFailed finalizes the job with the failure reason recorded.
func (j *BatchJob) MarkFailed(reason string) {
	now := time.Now().UTC()
	j.Status = JobFailed
	j.CompletedAt = &now
	j.ErrorMessage = &reason
}
