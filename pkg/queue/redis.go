package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyvo/modelpack/pkg/builder"
)

const (
	pendingList = "queue:builds"
	recordTTL   = 24 * time.Hour
	pollTimeout = 5 * time.Second
)

// ErrNotFound is returned for build ids the queue has no record of.
var ErrNotFound = errors.New("queued build not found")

// Record is the queue's view of one build request.
type Record struct {
	Build       builder.Build `json:"build"`
	WorkerID    string        `json:"worker_id,omitempty"`
	EnqueuedAt  int64         `json:"enqueued_at"`
	StartedAt   int64         `json:"started_at,omitempty"`
	CompletedAt int64         `json:"completed_at,omitempty"`
}

// Queue hands build requests from the builder API to build workers.
type Queue struct {
	redis *redis.Client
}

func NewQueue(redisURL string) (*Queue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{redis: client}, nil
}

// Enqueue stores the build record and appends its id to the pending list.
func (q *Queue) Enqueue(ctx context.Context, b builder.Build) error {
	b.Status = builder.StatusQueued
	rec := Record{Build: b, EnqueuedAt: time.Now().Unix()}
	if err := q.save(ctx, &rec); err != nil {
		return err
	}
	return q.redis.RPush(ctx, pendingList, b.ID).Err()
}

// Dequeue blocks briefly for the next pending build and marks it running
// under workerID. It returns nil, nil when nothing is pending.
func (q *Queue) Dequeue(ctx context.Context, workerID string) (*Record, error) {
	result, err := q.redis.BLPop(ctx, pollTimeout, pendingList).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec, err := q.Get(ctx, result[1])
	if err != nil {
		return nil, err
	}
	rec.WorkerID = workerID
	rec.StartedAt = time.Now().Unix()
	rec.Build.Status = builder.StatusRunning
	if err := q.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Complete records a successful build.
func (q *Queue) Complete(ctx context.Context, id string) error {
	return q.finish(ctx, id, builder.StatusSucceeded, "")
}

// Fail records a failed build and its error message.
func (q *Queue) Fail(ctx context.Context, id, errMsg string) error {
	return q.finish(ctx, id, builder.StatusFailed, errMsg)
}

// Get returns the stored record for id.
func (q *Queue) Get(ctx context.Context, id string) (*Record, error) {
	data, err := q.redis.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode build record %s: %w", id, err)
	}
	return &rec, nil
}

// Pending reports how many builds wait for a worker.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, pendingList).Result()
}

func (q *Queue) Close() error {
	return q.redis.Close()
}

func (q *Queue) finish(ctx context.Context, id string, status builder.Status, errMsg string) error {
	rec, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.CompletedAt = now.Unix()
	rec.Build.Status = status
	rec.Build.Error = errMsg
	rec.Build.UpdatedAt = now
	rec.Build.FinishedAt = now
	return q.save(ctx, rec)
}

func (q *Queue) save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return q.redis.Set(ctx, recordKey(rec.Build.ID), data, recordTTL).Err()
}

func recordKey(id string) string {
	return "build:" + id
}
