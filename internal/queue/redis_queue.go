// Package queue implements the namespaced, priority-routed job queue over
// Redis lists: six logical queues (machinist/archivist x instant/standard,
// plus archivist:jobgroup) with left-push producers and right-pop
// consumers, giving FIFO order per queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"archivehub/internal/config"
	"archivehub/internal/errs"
)

// Bit-exact queue key set from spec section 4.1.
const (
	KeyMachinistInstant  = "jobs:machinist:instant"
	KeyMachinistStandard = "jobs:machinist:standard"
	KeyArchivistInstant  = "jobs:archivist:instant"
	KeyArchivistStandard = "jobs:archivist:standard"
	KeyArchivistJobgroup = "jobs:archivist:jobgroup"
	KeyDLQMachinist      = "dlq:machinist"
	KeyDLQArchivist      = "dlq:archivist"
)

// Legacy shared keys recognized only by the one-shot migration utility.
const (
	LegacyInstant  = "jobs:instant"
	LegacyStandard = "jobs:standard"
	LegacyJobgroup = "jobs:jobgroup"
)

// KeyFor maps (worker, priority) to its namespaced queue key.
func KeyFor(worker, priority string) (string, bool) {
	switch worker {
	case "machinist":
		switch priority {
		case "instant":
			return KeyMachinistInstant, true
		case "standard":
			return KeyMachinistStandard, true
		}
	case "archivist":
		switch priority {
		case "instant":
			return KeyArchivistInstant, true
		case "standard":
			return KeyArchivistStandard, true
		case "jobgroup":
			return KeyArchivistJobgroup, true
		}
	}
	return "", false
}

// DLQKeyFor returns the dead-letter queue key for a worker.
func DLQKeyFor(worker string) string {
	if worker == "archivist" {
		return KeyDLQArchivist
	}
	return KeyDLQMachinist
}

// AllQueueKeys lists every namespaced job queue, in a stable order, for
// control-plane overview reporting.
func AllQueueKeys() []string {
	return []string{
		KeyMachinistInstant, KeyMachinistStandard,
		KeyArchivistInstant, KeyArchivistStandard, KeyArchivistJobgroup,
	}
}

// AllDLQKeys lists every dead-letter queue key.
func AllDLQKeys() []string {
	return []string{KeyDLQMachinist, KeyDLQArchivist}
}

// Queue wraps a Redis client with the push/pop/requeue primitives the
// worker loop and control plane use.
type Queue struct {
	client *redis.Client
}

// New builds a queue client from config.
func New(cfg config.Config) *Queue {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	return &Queue{client: redis.NewClient(opts)}
}

// NewFromClient wraps an existing client, used by tests against miniredis.
func NewFromClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Client exposes the underlying Redis client for the distributed lock,
// which shares the same connection pool.
func (q *Queue) Client() *redis.Client { return q.client }

// Push serializes job as a self-describing JSON document and left-pushes
// it onto key.
func (q *Queue) Push(ctx context.Context, key string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return &errs.SerializationError{Message: "failed to encode job for queue " + key, Cause: err}
	}
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		return &errs.StoreError{Transient: true, Message: "lpush failed for " + key, Cause: err}
	}
	return nil
}

// Requeue is identical to Push but is a distinct call site so callers can
// log it at warn level, per spec.
func (q *Queue) Requeue(ctx context.Context, key string, job any) error {
	return q.Push(ctx, key, job)
}

// RequeueRaw re-pushes an already-serialized element, used when moving
// entries between queues without re-decoding them (DLQ requeue).
func (q *Queue) RequeueRaw(ctx context.Context, key string, raw string) error {
	if err := q.client.LPush(ctx, key, raw).Err(); err != nil {
		return &errs.StoreError{Transient: true, Message: "requeue lpush failed for " + key, Cause: err}
	}
	return nil
}

// PopRaw right-pops the oldest element from key. It returns ("", nil) if
// the queue was empty.
func (q *Queue) PopRaw(ctx context.Context, key string) (string, error) {
	raw, err := q.client.RPop(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", &errs.StoreError{Transient: true, Message: "rpop failed for " + key, Cause: err}
	}
	return raw, nil
}

// BlockingPop blocks for up to timeout across keys, in argument order,
// returning the first non-empty queue's element (strict priority). It
// returns ("", "", nil) on timeout.
func (q *Queue) BlockingPop(ctx context.Context, keys []string, timeout time.Duration) (string, string, error) {
	res, err := q.client.BRPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return "", "", nil
	}
	if err != nil {
		return "", "", &errs.StoreError{Transient: true, Message: "brpop failed", Cause: err}
	}
	if len(res) != 2 {
		return "", "", &errs.StoreError{Transient: false, Message: fmt.Sprintf("unexpected brpop result shape: %v", res)}
	}
	return res[0], res[1], nil
}

// Length returns the number of elements on key.
func (q *Queue) Length(ctx context.Context, key string) (int64, error) {
	n, err := q.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, &errs.StoreError{Transient: true, Message: "llen failed for " + key, Cause: err}
	}
	return n, nil
}

// Range returns raw elements from key between offset and offset+limit-1.
func (q *Queue) Range(ctx context.Context, key string, offset, limit int64) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := q.client.LRange(ctx, key, offset, offset+limit-1).Result()
	if err != nil {
		return nil, &errs.StoreError{Transient: true, Message: "lrange failed for " + key, Cause: err}
	}
	return items, nil
}

// PopChunk right-pops up to count elements, used by the DLQ requeue/purge
// control-plane endpoints.
func (q *Queue) PopChunk(ctx context.Context, key string, count int64) ([]string, error) {
	out := make([]string, 0, count)
	for i := int64(0); i < count; i++ {
		raw, err := q.PopRaw(ctx, key)
		if err != nil {
			return out, err
		}
		if raw == "" {
			break
		}
		out = append(out, raw)
	}
	return out, nil
}
