package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"billing-review-service/internal/models"
)

type reviewReport struct {
	JobID       string                           `json:"job_id"`
	Status      models.JobStatus                 `json:"status"`
	CompletedAt *time.Time                       `json:"completed_at"`
	Error       *string                          `json:"error,omitempty"`
	Outcomes    map[string]models.DocumentStatus `json:"outcomes"`
}

// archiveReport writes a JSON record of the finalized run to the object
// store. Best effort: archiving failures are logged, never surfaced — the
// job row remains the durable record of the outcome.
func (p *Processor) archiveReport(ctx context.Context, job models.BatchJob, outcomes map[string]models.DocumentStatus) {
	if p.reports == nil {
		return
	}
	report := reviewReport{
		JobID:       job.ID,
		Status:      job.Status,
		CompletedAt: job.CompletedAt,
		Error:       job.ErrorMessage,
		Outcomes:    outcomes,
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("worker: marshal report for job %s: %v", job.ID, err)
		return
	}
	key := fmt.Sprintf("reports/%s.json", job.ID)
	if _, err := p.reports.Upload(ctx, key, body, "application/json"); err != nil {
		log.Printf("worker: archive report for job %s: %v", job.ID, err)
	}
}
