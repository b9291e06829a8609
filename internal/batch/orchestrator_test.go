package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"billing-review-service/internal/models"
	"billing-review-service/internal/store"
)

type fakeDocumentStore struct {
	docs map[string]models.Document
}

func newFakeDocumentStore(docs ...models.Document) *fakeDocumentStore {
	f := &fakeDocumentStore{docs: map[string]models.Document{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeDocumentStore) GetDocument(_ context.Context, id string) (models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return models.Document{}, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	return doc, nil
}

func (f *fakeDocumentStore) SaveDocument(_ context.Context, doc models.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

type fakeJobStore struct {
	jobs map[string]models.BatchJob
}

func (f *fakeJobStore) SaveJob(_ context.Context, job models.BatchJob) error {
	if f.jobs == nil {
		f.jobs = map[string]models.BatchJob{}
	}
	f.jobs[job.ID] = job
	return nil
}

type fakeDispatcher struct {
	enqueued []string
	err      error
}

func (f *fakeDispatcher) Enqueue(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

func draftDoc(t *testing.T) models.Document {
	t.Helper()
	doc, err := models.NewDocument(models.TypeInvoice, 100, nil)
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	return doc
}

func TestCreateBatchProcessHappyPath(t *testing.T) {
	ctx := context.Background()
	d1, d2 := draftDoc(t), draftDoc(t)
	docs := newFakeDocumentStore(d1, d2)
	jobs := &fakeJobStore{}
	dispatcher := &fakeDispatcher{}

	job, err := New(docs, jobs, dispatcher).CreateBatchProcess(ctx, []string{d1.ID, d2.ID})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	if job.Status != models.JobPending {
		t.Fatalf("new job must be pending, got %s", job.Status)
	}
	if len(job.DocumentIDs) != 2 || job.DocumentIDs[0] != d1.ID || job.DocumentIDs[1] != d2.ID {
		t.Fatalf("job must reference the submitted ids in order: %v", job.DocumentIDs)
	}
	for _, id := range []string{d1.ID, d2.ID} {
		got, _ := docs.GetDocument(ctx, id)
		if got.Status != models.StatusPending {
			t.Fatalf("document %s should be pending, got %s", id, got.Status)
		}
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("exactly one job must be persisted, got %d", len(jobs.jobs))
	}
	if len(dispatcher.enqueued) != 1 || dispatcher.enqueued[0] != job.ID {
		t.Fatalf("exactly one dispatch per batch, got %v", dispatcher.enqueued)
	}
}

func TestCreateBatchProcessUnknownIDIsAtomic(t *testing.T) {
	ctx := context.Background()
	d1 := draftDoc(t)
	docs := newFakeDocumentStore(d1)
	jobs := &fakeJobStore{}
	dispatcher := &fakeDispatcher{}

	_, err := New(docs, jobs, dispatcher).CreateBatchProcess(ctx, []string{d1.ID, "missing-id"})
	var validation *models.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// No partial effect: the valid document is still draft, nothing persisted.
	got, _ := docs.GetDocument(ctx, d1.ID)
	if got.Status != models.StatusDraft {
		t.Fatalf("valid document must stay draft, got %s", got.Status)
	}
	if len(jobs.jobs) != 0 {
		t.Fatalf("no job must be created")
	}
	if len(dispatcher.enqueued) != 0 {
		t.Fatalf("nothing must be dispatched")
	}
}

func TestCreateBatchProcessNonDraftAborts(t *testing.T) {
	ctx := context.Background()
	d1, d2 := draftDoc(t), draftDoc(t)
	if err := d2.SubmitForReview(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	docs := newFakeDocumentStore(d1, d2)
	jobs := &fakeJobStore{}
	dispatcher := &fakeDispatcher{}

	_, err := New(docs, jobs, dispatcher).CreateBatchProcess(ctx, []string{d1.ID, d2.ID})
	var transition *models.InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
	if !strings.Contains(err.Error(), d2.ID) {
		t.Fatalf("error must name the offending document, got: %v", err)
	}

	got, _ := docs.GetDocument(ctx, d1.ID)
	if got.Status != models.StatusDraft {
		t.Fatalf("no document in the batch may be transitioned, got %s", got.Status)
	}
	if len(jobs.jobs) != 0 || len(dispatcher.enqueued) != 0 {
		t.Fatalf("failed batch must not persist or dispatch a job")
	}
}

func TestCreateBatchProcessEmptyList(t *testing.T) {
	_, err := New(newFakeDocumentStore(), &fakeJobStore{}, &fakeDispatcher{}).CreateBatchProcess(context.Background(), nil)
	var validation *models.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("empty id list must be rejected, got %v", err)
	}
}

func TestCreateBatchProcessDispatchFailureKeepsJob(t *testing.T) {
	ctx := context.Background()
	d1 := draftDoc(t)
	docs := newFakeDocumentStore(d1)
	jobs := &fakeJobStore{}
	dispatcher := &fakeDispatcher{err: errors.New("queue down")}

	job, err := New(docs, jobs, dispatcher).CreateBatchProcess(ctx, []string{d1.ID})
	if err != nil {
		t.Fatalf("dispatch failure must not fail the request: %v", err)
	}
	// Job persisted in pending: discoverable and retryable by an operator.
	if _, ok := jobs.jobs[job.ID]; !ok {
		t.Fatalf("job must be persisted before dispatch is attempted")
	}
	if jobs.jobs[job.ID].Status != models.JobPending {
		t.Fatalf("undispatched job must remain pending")
	}
}
