// Package queue implements the durable work queue carrying ingestion and
// campaign/delivery tasks between the API layer and the worker binary.
//
// The queue is a Redis list. Producers LPUSH; consumers claim with BLMOVE
// into a per-queue processing list and LREM on acknowledgment, which gives
// at-least-once delivery: a consumer crash leaves the claimed task in the
// processing list where RequeueStale can return it to the main list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list all task types share.
const DefaultKey = "crm:tasks"

// TaskType names the operation a task carries.
type TaskType string

const (
	TaskIngestCustomer       TaskType = "ingest-customer"
	TaskBatchIngestCustomers TaskType = "batch-ingest-customers"
	TaskIngestOrder          TaskType = "ingest-order"
	TaskProcessCampaign      TaskType = "process-campaign"
	TaskUpdateDeliveryStatus TaskType = "update-delivery-status"
)

// Task is the wire envelope stored in Redis.
type Task struct {
	ID         string          `json:"id"`
	Type       TaskType        `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v interface{}) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type, err)
	}
	return nil
}

// Claimed pairs a decoded task with the raw list entry needed to ack it.
type Claimed struct {
	Task Task
	raw  string
}

// Queue is a Redis-list task queue. Safe for concurrent use.
type Queue struct {
	rdb        *redis.Client
	key        string
	processing string
}

// New creates a queue over the given Redis client. An empty key uses DefaultKey.
func New(rdb *redis.Client, key string) *Queue {
	if key == "" {
		key = DefaultKey
	}
	return &Queue{rdb: rdb, key: key, processing: key + ":processing"}
}

// Enqueue marshals the payload and pushes a task. Returns the task id.
func (q *Queue) Enqueue(ctx context.Context, typ TaskType, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	t := Task{
		ID:         uuid.New().String(),
		Type:       typ,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, raw).Err(); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", typ, err)
	}
	return t.ID, nil
}

// Claim blocks up to the given duration for the next task, moving it to the
// processing list. Returns nil when the wait times out.
func (q *Queue) Claim(ctx context.Context, block time.Duration) (*Claimed, error) {
	raw, err := q.rdb.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", block).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		// Poison entry: drop it from processing so it can't wedge the queue.
		q.rdb.LRem(ctx, q.processing, 1, raw)
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &Claimed{Task: t, raw: raw}, nil
}

// Ack removes a claimed task from the processing list.
func (q *Queue) Ack(ctx context.Context, c *Claimed) error {
	if err := q.rdb.LRem(ctx, q.processing, 1, c.raw).Err(); err != nil {
		return fmt.Errorf("ack task %s: %w", c.Task.ID, err)
	}
	return nil
}

// Requeue returns a claimed task to the front of the main list for retry.
func (q *Queue) Requeue(ctx context.Context, c *Claimed) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processing, 1, c.raw)
	pipe.RPush(ctx, q.key, c.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue task %s: %w", c.Task.ID, err)
	}
	return nil
}

// RequeueStale moves every entry from the processing list back to the main
// list. Called on worker startup to recover tasks orphaned by a crash.
func (q *Queue) RequeueStale(ctx context.Context) (int, error) {
	n := 0
	for {
		_, err := q.rdb.LMove(ctx, q.processing, q.key, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("requeue stale: %w", err)
		}
		n++
	}
}

// Depth returns the number of tasks waiting in the main list.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
