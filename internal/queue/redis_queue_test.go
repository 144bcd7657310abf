package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client), mr
}

func TestPushPopRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := map[string]any{"tenant_id": "t1", "asset_id": "a1"}
	require.NoError(t, q.Push(ctx, KeyMachinistStandard, job))

	raw, err := q.PopRaw(ctx, KeyMachinistStandard)
	require.NoError(t, err)
	require.Contains(t, raw, `"tenant_id":"t1"`)
}

func TestBlockingPopStrictPriority(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Push(ctx, KeyMachinistStandard, map[string]any{"n": i}))
	}
	require.NoError(t, q.Push(ctx, KeyMachinistInstant, map[string]any{"n": "instant"}))

	key, raw, err := q.BlockingPop(ctx, []string{KeyMachinistInstant, KeyMachinistStandard}, time.Second)
	require.NoError(t, err)
	require.Equal(t, KeyMachinistInstant, key)
	require.Contains(t, raw, `"instant"`)
}

func TestBlockingPopTimeout(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	key, raw, err := q.BlockingPop(ctx, []string{KeyMachinistInstant, KeyMachinistStandard}, 50*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, key)
	require.Empty(t, raw)
}

func TestMigrateLegacyQueuesClassifies(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.RequeueRaw(ctx, LegacyInstant, `{"job_type":"archivist","processing_type":"instant","tenant_id":"t1"}`))
	require.NoError(t, q.RequeueRaw(ctx, LegacyStandard, `{"job_type":"machinist","tenant_id":"t1"}`))
	require.NoError(t, q.RequeueRaw(ctx, LegacyJobgroup, `not json`))

	migrated, skipped, err := q.MigrateLegacyQueues(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, migrated)
	require.Equal(t, 1, skipped)

	n, err := q.Length(ctx, KeyArchivistInstant)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = q.Length(ctx, KeyMachinistStandard)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestDistributedLockMutualExclusion(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	l1 := NewDistributedLock(q.Client(), "jobgroup_poller_lock")
	l2 := NewDistributedLock(q.Client(), "jobgroup_poller_lock")

	ok1, err := l1.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := l2.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, ok2)

	require.NoError(t, l1.Release(ctx))

	ok2, err = l2.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok2)
}
