package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDatabaseQueue(t *testing.T, clock *manualClock) *DatabaseQueue {
	t.Helper()
	return NewDatabaseQueue(testutil.NewTestDB(t), DatabaseOptions{
		PollInterval:  10 * time.Millisecond,
		LeaseDuration: time.Minute,
		MaxAttempts:   2,
		Now:           clock.Now,
	}, testutil.DiscardLogger())
}

func TestDatabaseQueue_ClaimIsExclusiveUntilLeaseExpires(t *testing.T) {
	t.Parallel()
	clock := &manualClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	q := newTestDatabaseQueue(t, clock)
	ctx := t.Context()

	require.NoError(t, q.Publish(ctx, "jobs", []byte("first")))
	require.NoError(t, q.Publish(ctx, "jobs", []byte("second")))
	require.NoError(t, q.Publish(ctx, "other", []byte("elsewhere")))

	item, err := q.claim(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "first", string(item.Body))
	assert.Equal(t, 1, item.Attempts)

	next, err := q.claim(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "second", string(next.Body), "leased item is skipped")

	none, err := q.claim(ctx, "jobs")
	require.NoError(t, err)
	assert.Nil(t, none)

	clock.Advance(2 * time.Minute)
	again, err := q.claim(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, item.ID, again.ID, "expired lease makes the item claimable")
	assert.Equal(t, 2, again.Attempts)
}

func TestDatabaseQueue_ConsumeAcksOnSuccess(t *testing.T) {
	t.Parallel()
	clock := &manualClock{now: time.Now().UTC()}
	q := newTestDatabaseQueue(t, clock)
	require.NoError(t, q.Publish(t.Context(), "jobs", []byte(`{"dispatch_id":7}`)))

	got := make(chan Message, 1)
	stop := consumeInBackground(t, q, "jobs", func(_ context.Context, msg Message) error {
		got <- msg
		return nil
	})
	msg := testutil.ReceiveWithTimeout(t, got, testutil.DefaultTestTimeout, "message not delivered")
	stop()

	assert.Equal(t, `{"dispatch_id":7}`, string(msg.Body))
	assert.Equal(t, 1, msg.Attempt)
	pending, err := q.Pending(t.Context(), "jobs")
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestDatabaseQueue_FailedMessageDiscardedAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	clock := &manualClock{now: time.Now().UTC()}
	q := newTestDatabaseQueue(t, clock)
	ctx := t.Context()
	require.NoError(t, q.Publish(ctx, "jobs", []byte("x")))

	failing := func(context.Context, Message) error { return errors.NewStd("boom") }

	item, err := q.claim(ctx, "jobs")
	require.NoError(t, err)
	q.deliver(ctx, item, failing)

	pending, err := q.Pending(ctx, "jobs")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending, "first failure leaves the item for redelivery")

	clock.Advance(2 * time.Minute)
	item, err = q.claim(ctx, "jobs")
	require.NoError(t, err)
	require.NotNil(t, item)
	q.deliver(ctx, item, failing)

	pending, err = q.Pending(ctx, "jobs")
	require.NoError(t, err)
	assert.Zero(t, pending, "item discarded at MaxAttempts")
}
