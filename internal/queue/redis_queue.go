package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReviewQueue hands batch job ids from the API to the review worker through
// Redis: a ready list plus an in-flight sorted set scored by lease deadline.
// A job id is enqueued exactly once per batch submission; the lease reclaim
// path only re-delivers ids whose worker died mid-run, and the worker treats
// a finished job as a no-op, so duplicate delivery cannot double-process.
type ReviewQueue struct {
	client      *redis.Client
	readyKey    string
	inflightKey string
	leaseTTL    time.Duration
}

// NewReviewQueue builds a queue client over an existing Redis connection.
func NewReviewQueue(client *redis.Client, leaseTTL time.Duration) *ReviewQueue {
	if leaseTTL == 0 {
		leaseTTL = 30 * time.Second
	}
	return &ReviewQueue{
		client:      client,
		readyKey:    "review:ready",
		inflightKey: "review:inflight",
		leaseTTL:    leaseTTL,
	}
}

// Enqueue schedules one asynchronous review run for the given job id.
// Non-blocking from the caller's perspective beyond the single Redis write.
func (q *ReviewQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.RPush(ctx, q.readyKey, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// DequeueWithLease pops the next job id and places it into the in-flight set
// with a lease deadline. Returns "" when the queue is empty.
func (q *ReviewQueue) DequeueWithLease(ctx context.Context) (string, error) {
	deadline := time.Now().Add(q.leaseTTL).UnixMilli()
	res, err := dequeueScript.Run(ctx, q.client, []string{q.readyKey, q.inflightKey}, deadline).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	jobID, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	return jobID, nil
}

// Ack removes a job id from in-flight tracking once its run has finalized.
func (q *ReviewQueue) Ack(ctx context.Context, jobID string) error {
	return q.client.ZRem(ctx, q.inflightKey, jobID).Err()
}

// RequeueExpired reclaims leases whose deadline passed, pushing the job ids
// back onto the ready list. Returns the reclaimed ids.
func (q *ReviewQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.inflightKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// Depth returns the number of jobs waiting on the ready list.
func (q *ReviewQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.readyKey).Result()
}

var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return nil
`)
