package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

// consumeInBackground runs Consume until the returned stop func is called.
func consumeInBackground(t *testing.T, q Queue, name string, handler Handler) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	var wg sync.WaitGroup
	wg.Go(func() {
		assert.NoError(t, q.Consume(ctx, name, handler))
	})
	return func() {
		cancel()
		wg.Wait()
	}
}

func TestMemoryQueue_PublishConsume(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(8, testutil.DiscardLogger())

	require.NoError(t, q.Publish(t.Context(), "automation_sales_open", []byte(`{"dispatch_id":1}`)))
	assert.Equal(t, 1, q.Len("automation_sales_open"))
	assert.Equal(t, 0, q.Len("automation_reminder_24h"))

	got := make(chan Message, 1)
	stop := consumeInBackground(t, q, "automation_sales_open", func(_ context.Context, msg Message) error {
		got <- msg
		return nil
	})
	defer stop()

	msg := testutil.ReceiveWithTimeout(t, got, testutil.DefaultTestTimeout, "message not delivered")
	assert.JSONEq(t, `{"dispatch_id":1}`, string(msg.Body))
	assert.Equal(t, "automation_sales_open", msg.Queue)
	assert.Equal(t, 1, msg.Attempt)
	assert.Len(t, msg.ID, 36)
}

func TestMemoryQueue_RetriesUntilMaxAttempts(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(8, testutil.DiscardLogger())
	require.NoError(t, q.Publish(t.Context(), "jobs", []byte("x")))

	var calls atomic.Int32
	done := make(chan struct{})
	stop := consumeInBackground(t, q, "jobs", func(_ context.Context, msg Message) error {
		if calls.Add(1) == MemoryMaxAttempts {
			close(done)
		}
		return errors.NewStd("boom")
	})
	testutil.WaitForChannel(t, done, testutil.DefaultTestTimeout, "message not retried")
	stop()

	assert.Equal(t, int32(MemoryMaxAttempts), calls.Load())
	assert.Equal(t, 0, q.Len("jobs"), "message dropped after the last attempt")
}

func TestMemoryQueue_DrainAndClose(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(0, testutil.DiscardLogger())
	ctx := t.Context()

	require.NoError(t, q.Publish(ctx, "jobs", []byte("a")))
	require.NoError(t, q.Publish(ctx, "jobs", []byte("b")))

	msgs := q.Drain("jobs")
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Body))
	assert.Equal(t, "b", string(msgs[1].Body))

	require.NoError(t, q.Close())
	require.ErrorIs(t, q.Publish(ctx, "jobs", []byte("c")), ErrQueueClosed)
}

func TestMemoryQueue_PublishHonorsContextWhenFull(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(1, testutil.DiscardLogger())
	require.NoError(t, q.Publish(t.Context(), "jobs", []byte("a")))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := q.Publish(ctx, "jobs", []byte("b"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryQueue))
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "automation_reminder_24h", sanitizeName("automation_reminder_24h"))
	assert.Equal(t, "a_b_c", sanitizeName("a.b c"))
}
