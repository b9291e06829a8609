package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, lease time.Duration) *ReviewQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewReviewQueue(client, lease)
}

func TestEnqueueDequeueAck(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	if err := q.Enqueue(ctx, "job-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if depth, _ := q.Depth(ctx); depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}

	jobID, err := q.DequeueWithLease(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if jobID != "job-1" {
		t.Fatalf("expected job-1, got %q", jobID)
	}
	if depth, _ := q.Depth(ctx); depth != 0 {
		t.Fatalf("dequeued job must leave the ready list")
	}

	// A live lease must not be redelivered.
	if reclaimed, _ := q.RequeueExpired(ctx, time.Now(), 10); len(reclaimed) != 0 {
		t.Fatalf("unexpired lease was reclaimed: %v", reclaimed)
	}

	if err := q.Ack(ctx, jobID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if reclaimed, _ := q.RequeueExpired(ctx, time.Now().Add(time.Hour), 10); len(reclaimed) != 0 {
		t.Fatalf("acked job must not be reclaimable: %v", reclaimed)
	}
}

func TestDequeueEmptyQueue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	jobID, err := q.DequeueWithLease(ctx)
	if err != nil {
		t.Fatalf("dequeue on empty queue: %v", err)
	}
	if jobID != "" {
		t.Fatalf("expected empty job id, got %q", jobID)
	}
}

func TestRequeueExpiredLease(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, 10*time.Millisecond)

	if err := q.Enqueue(ctx, "job-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	reclaimed, err := q.RequeueExpired(ctx, time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != "job-1" {
		t.Fatalf("expected job-1 reclaimed, got %v", reclaimed)
	}

	jobID, err := q.DequeueWithLease(ctx)
	if err != nil || jobID != "job-1" {
		t.Fatalf("reclaimed job must be deliverable again, got %q err=%v", jobID, err)
	}
}
