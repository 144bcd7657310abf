package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistributedLock implements the atomic set-if-absent-with-TTL lock the
// jobgroup poller uses to serialize polling across processes. It is not
// an optimization: spec section 9 calls it an essential invariant.
type DistributedLock struct {
	client *redis.Client
	key    string
	token  string
}

// NewDistributedLock builds a lock bound to key. Each instance carries a
// random token so Release only clears a lock it actually holds.
func NewDistributedLock(client *redis.Client, key string) *DistributedLock {
	return &DistributedLock{client: client, key: key, token: uuid.NewString()}
}

// Acquire attempts SET NX EX=ttl. It returns (true, nil) if the lock was
// acquired, (false, nil) if another holder has it, and (false, err) if the
// store itself errored -- callers should fail open on the latter per spec.
func (l *DistributedLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Refresh extends the TTL of a held lock, used between result-processing
// chunks on long jobgroup polls.
func (l *DistributedLock) Refresh(ctx context.Context, ttl time.Duration) error {
	held, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if held != l.token {
		return nil
	}
	return l.client.Expire(ctx, l.key, ttl).Err()
}

// Release clears the lock if this instance still holds it.
func (l *DistributedLock) Release(ctx context.Context) error {
	held, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if held != l.token {
		return nil
	}
	return l.client.Del(ctx, l.key).Err()
}
