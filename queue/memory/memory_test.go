package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docflow/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBackend_FIFODrain(t *testing.T) {
	ctx := context.Background()
	b := New()
	defer b.Close()

	for _, n := range []int{1, 7, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			name := fmt.Sprintf("fifo-%d", n)
			var ids []string
			for i := 0; i < n; i++ {
				job := queue.NewJob(name, queue.NewPayload().Set("i", i))
				require.NoError(t, b.Enqueue(ctx, job))
				ids = append(ids, job.ID)
			}

			length, err := b.QueueLength(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, n, length)

			var drained []string
			for {
				job, err := b.Dequeue(ctx, name, 0)
				require.NoError(t, err)
				if job == nil {
					break
				}
				assert.Equal(t, 1, job.Attempts)
				ok, err := b.Acknowledge(ctx, job)
				require.NoError(t, err)
				require.True(t, ok)
				drained = append(drained, job.ID)
			}

			assert.Equal(t, ids, drained)
			length, err = b.QueueLength(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, 0, length)
		})
	}
}

func TestBackend_DequeueEmptyNonBlocking(t *testing.T) {
	b := New()
	defer b.Close()

	start := time.Now()
	job, err := b.Dequeue(context.Background(), "empty", 0)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestBackend_DequeueBlocksUntilTimeout(t *testing.T) {
	b := New()
	defer b.Close()

	start := time.Now()
	job, err := b.Dequeue(context.Background(), "empty", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestBackend_DequeueWakesOnEnqueue(t *testing.T) {
	ctx := context.Background()
	b := New()
	defer b.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.Enqueue(ctx, queue.NewJob("wake", nil))
	}()

	job, err := b.Dequeue(ctx, "wake", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "wake", job.QueueName)
}

func TestBackend_DequeueHonorsContext(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Dequeue(ctx, "empty", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackend_VisibilityTimeoutRedelivers(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := New(WithClock(clock.Now))
	defer b.Close()

	job := queue.NewJob("vis", nil, queue.WithVisibilityTimeout(time.Minute))
	require.NoError(t, b.Enqueue(ctx, job))

	first, err := b.Dequeue(ctx, "vis", 0)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Leased job is invisible but still counted
	again, err := b.Dequeue(ctx, "vis", 0)
	require.NoError(t, err)
	assert.Nil(t, again)
	length, _ := b.QueueLength(ctx, "vis")
	assert.Equal(t, 1, length)

	clock.Advance(time.Minute + time.Second)

	second, err := b.Dequeue(ctx, "vis", 0)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempts)
	assert.NotEqual(t, first.DeliveryID, second.DeliveryID)
}

func TestBackend_LateAcknowledgeIsNoop(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := New(WithClock(clock.Now))
	defer b.Close()

	require.NoError(t, b.Enqueue(ctx, queue.NewJob("late", nil, queue.WithVisibilityTimeout(time.Second))))

	first, err := b.Dequeue(ctx, "late", 0)
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	second, err := b.Dequeue(ctx, "late", 0)
	require.NoError(t, err)

	ok, err := b.Acknowledge(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok, "stale delivery must not remove the job")

	ok, err = b.Acknowledge(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acknowledge(ctx, second)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate acknowledgment")
}

func TestBackend_DeadLettersAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := New(WithClock(clock.Now))
	defer b.Close()

	job := queue.NewJob("dlq", nil, queue.WithMaxAttempts(2), queue.WithVisibilityTimeout(time.Second))
	require.NoError(t, b.Enqueue(ctx, job))

	for attempt := 1; attempt <= 2; attempt++ {
		got, err := b.Dequeue(ctx, "dlq", 0)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, attempt, got.Attempts)
		clock.Advance(2 * time.Second)
	}

	got, err := b.Dequeue(ctx, "dlq", 0)
	require.NoError(t, err)
	assert.Nil(t, got)

	length, _ := b.QueueLength(ctx, "dlq")
	assert.Equal(t, 0, length)

	dead, err := b.DeadLetters(ctx, "dlq", 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].ID)
}

func TestBackend_PeekDoesNotAffectDelivery(t *testing.T) {
	ctx := context.Background()
	b := New()
	defer b.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Enqueue(ctx, queue.NewJob("peek", queue.NewPayload().Set("i", i))))
	}

	peeked, err := b.Peek(ctx, "peek", 2)
	require.NoError(t, err)
	require.Len(t, peeked, 2)
	assert.Equal(t, 0, peeked[0].Attempts)

	job, err := b.Dequeue(ctx, "peek", 0)
	require.NoError(t, err)
	assert.Equal(t, peeked[0].ID, job.ID)

	// Leased jobs are still visible to Peek
	peeked, err = b.Peek(ctx, "peek", 10)
	require.NoError(t, err)
	assert.Len(t, peeked, 3)
}

func TestBackend_EnqueueCopiesJob(t *testing.T) {
	ctx := context.Background()
	b := New()
	defer b.Close()

	payload := queue.NewPayload().Set("k", "original")
	job := queue.NewJob("copy", payload)
	require.NoError(t, b.Enqueue(ctx, job))
	payload.Set("k", "mutated")

	got, err := b.Dequeue(ctx, "copy", 0)
	require.NoError(t, err)
	v, _ := got.Payload.GetString("k")
	assert.Equal(t, "original", v)
}

func TestBackend_Errors(t *testing.T) {
	ctx := context.Background()
	b := New()

	assert.ErrorIs(t, b.Enqueue(ctx, &queue.Job{}), queue.ErrInvalidJob)

	job := queue.NewJob("dup", nil)
	require.NoError(t, b.Enqueue(ctx, job))
	assert.ErrorIs(t, b.Enqueue(ctx, job), queue.ErrDuplicateJob)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Enqueue(ctx, queue.NewJob("q", nil)), queue.ErrClosed)
	_, err := b.Dequeue(ctx, "q", 0)
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestBackend_ConcurrentConsumers(t *testing.T) {
	ctx := context.Background()
	b := New()
	defer b.Close()

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, b.Enqueue(ctx, queue.NewJob("concurrent", nil)))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := b.Dequeue(ctx, "concurrent", 0)
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
				_, _ = b.Acknowledge(ctx, job)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "job %s delivered more than once", id)
	}
}
