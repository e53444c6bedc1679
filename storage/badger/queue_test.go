package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/docflow/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	q, err := NewQueue(backend, WithQueuePollInterval(5*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() {
		q.Close()
		backend.Close()
	})
	return q
}

func TestQueueFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		job := queue.NewJob("embed", queue.NewPayload().Set("n", i))
		require.NoError(t, q.Enqueue(ctx, job))
	}
	n, err := q.QueueLength(ctx, "embed")
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	for i := 0; i < 20; i++ {
		job, err := q.Dequeue(ctx, "embed", 0)
		require.NoError(t, err)
		require.NotNil(t, job)
		got, ok := job.Payload.GetInt("n")
		require.True(t, ok)
		assert.Equal(t, int64(i), got)
		assert.Equal(t, 1, job.Attempts)

		acked, err := q.Acknowledge(ctx, job)
		require.NoError(t, err)
		assert.True(t, acked)
	}

	job, err := q.Dequeue(ctx, "embed", 0)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueueDuplicateJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queue.NewJob("ocr", queue.NewPayload(), queue.WithJobID("j1"))))
	err := q.Enqueue(ctx, queue.NewJob("ocr", queue.NewPayload(), queue.WithJobID("j1")))
	assert.ErrorIs(t, err, queue.ErrDuplicateJob)
}

func TestQueueBlockingDequeueWakesOnEnqueue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(ctx, queue.NewJob("ocr", queue.NewPayload().Set("doc", "d1")))
	}()

	job, err := q.Dequeue(ctx, "ocr", 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	doc, _ := job.Payload.GetString("doc")
	assert.Equal(t, "d1", doc)
}

func TestQueueDequeueTimeoutAndCancel(t *testing.T) {
	q := newTestQueue(t)

	start := time.Now()
	job, err := q.Dequeue(context.Background(), "empty", 30*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Dequeue(ctx, "empty", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueLateAckIsIgnored(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queue.NewJob("embed", queue.NewPayload(),
		queue.WithVisibilityTimeout(10*time.Millisecond))))

	first, err := q.Dequeue(ctx, "embed", 0)
	require.NoError(t, err)
	require.NotNil(t, first)

	time.Sleep(20 * time.Millisecond)
	second, err := q.Dequeue(ctx, "embed", 0)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempts)

	acked, err := q.Acknowledge(ctx, first)
	require.NoError(t, err)
	assert.False(t, acked)

	acked, err = q.Acknowledge(ctx, second)
	require.NoError(t, err)
	assert.True(t, acked)

	n, err := q.QueueLength(ctx, "embed")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueDeadLetters(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queue.NewJob("profiling", queue.NewPayload(),
		queue.WithMaxAttempts(2), queue.WithVisibilityTimeout(5*time.Millisecond))))

	for i := 0; i < 2; i++ {
		job, err := q.Dequeue(ctx, "profiling", 0)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d", i+1)
		time.Sleep(10 * time.Millisecond)
	}

	job, err := q.Dequeue(ctx, "profiling", 0)
	require.NoError(t, err)
	assert.Nil(t, job)

	dead, err := q.DeadLetters(ctx, "profiling", 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 2, dead[0].Attempts)

	n, err := q.QueueLength(ctx, "profiling")
	require.NoError(t, err)
	assert.Zero(t, n)

	stats, err := queue.Inspect(ctx, q, "profiling")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].DeadLetters)
}

func TestQueuePeekDoesNotLease(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, queue.NewJob("ocr", queue.NewPayload(), queue.WithJobID(fmt.Sprintf("j%d", i)))))
	}
	peeked, err := q.Peek(ctx, "ocr", 2)
	require.NoError(t, err)
	require.Len(t, peeked, 2)
	assert.Equal(t, "j0", peeked[0].ID)
	assert.Zero(t, peeked[0].Attempts)

	job, err := q.Dequeue(ctx, "ocr", 0)
	require.NoError(t, err)
	assert.Equal(t, "j0", job.ID)
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	q, err := NewQueue(backend)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, queue.NewJob("ocr", queue.NewPayload().Set("doc", "persisted"))))
	require.NoError(t, q.Close())
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()
	q, err = NewQueue(backend)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(ctx, queue.NewJob("ocr", queue.NewPayload().Set("doc", "second"))))

	job, err := q.Dequeue(ctx, "ocr", 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	doc, _ := job.Payload.GetString("doc")
	assert.Equal(t, "persisted", doc)
}
