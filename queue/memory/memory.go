// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package memory provides an in-process queue.Backend.
//
// Jobs are available to Dequeue as soon as Enqueue returns, and delivery order
// within a queue is FIFO by enqueue time. Leased jobs that are not acknowledged
// before their visibility timeout become visible again at their original
// position. Jobs that exhaust MaxAttempts are moved to a dead letter list.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/docflow/queue"
)

// Option configures a Backend.
type Option func(*Backend)

// WithClock replaces the time source used for visibility deadlines.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

type entry struct {
	job            *queue.Job
	invisibleUntil time.Time
}

type jobList struct {
	entries []*entry
	dead    []*queue.Job
}

// Backend is an in-memory queue.Backend.
type Backend struct {
	mu     sync.Mutex
	queues map[string]*jobList
	notify chan struct{}
	closed bool
	now    func() time.Time
	logger *slog.Logger
}

var (
	_ queue.Backend      = (*Backend)(nil)
	_ queue.DeadLetterer = (*Backend)(nil)
)

// New creates an empty in-memory backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		queues: make(map[string]*jobList),
		notify: make(chan struct{}),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "memory-queue")
	return b
}

func (b *Backend) list(name string) *jobList {
	l, ok := b.queues[name]
	if !ok {
		l = &jobList{}
		b.queues[name] = l
	}
	return l
}

// broadcast wakes every blocked Dequeue. Caller must hold mu.
func (b *Backend) broadcast() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// Enqueue stores a copy of job and makes it visible immediately.
func (b *Backend) Enqueue(ctx context.Context, job *queue.Job) error {
	if err := queue.Prepare(job, b.now()); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return queue.ErrClosed
	}

	l := b.list(job.QueueName)
	for _, e := range l.entries {
		if e.job.ID == job.ID {
			return fmt.Errorf("%w: %s", queue.ErrDuplicateJob, job.ID)
		}
	}
	l.entries = append(l.entries, &entry{job: job.Clone()})
	b.broadcast()
	return nil
}

// Dequeue leases the oldest visible job in queueName.
func (b *Backend) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, queue.ErrClosed
		}
		job, nextVisible := b.take(queueName)
		wait := b.notify
		b.mu.Unlock()

		if job != nil {
			return job, nil
		}
		if timeout <= 0 {
			return nil, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if !nextVisible.IsZero() {
			if untilVisible := nextVisible.Sub(b.now()); untilVisible < remaining {
				remaining = max(untilVisible, time.Millisecond)
			}
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wait:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// take leases the first visible entry. When none is visible it returns the
// earliest time a leased entry becomes visible again. Caller must hold mu.
func (b *Backend) take(queueName string) (*queue.Job, time.Time) {
	l, ok := b.queues[queueName]
	if !ok {
		return nil, time.Time{}
	}

	now := b.now()
	var nextVisible time.Time
	for i := 0; i < len(l.entries); i++ {
		e := l.entries[i]
		if e.invisibleUntil.After(now) {
			if nextVisible.IsZero() || e.invisibleUntil.Before(nextVisible) {
				nextVisible = e.invisibleUntil
			}
			continue
		}
		if e.job.Exhausted() {
			b.logger.Warn("job exhausted attempts, moving to dead letters",
				"queue", queueName, "job_id", e.job.ID, "attempts", e.job.Attempts)
			l.dead = append(l.dead, e.job)
			l.entries = slices.Delete(l.entries, i, i+1)
			i--
			continue
		}

		e.job.Attempts++
		e.job.DeliveryID = queue.NewDeliveryID()
		e.invisibleUntil = now.Add(e.job.VisibilityTimeout)
		return e.job.Clone(), time.Time{}
	}
	return nil, nextVisible
}

// Acknowledge removes the job if job.DeliveryID matches its current lease.
func (b *Backend) Acknowledge(ctx context.Context, job *queue.Job) (bool, error) {
	if job == nil {
		return false, fmt.Errorf("%w: job is nil", queue.ErrInvalidJob)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, queue.ErrClosed
	}

	l, ok := b.queues[job.QueueName]
	if !ok {
		return false, nil
	}
	idx := slices.IndexFunc(l.entries, func(e *entry) bool { return e.job.ID == job.ID })
	if idx < 0 {
		return false, nil
	}
	if l.entries[idx].job.DeliveryID != job.DeliveryID {
		b.logger.Debug("ignoring acknowledgment from stale delivery", "queue", job.QueueName, "job_id", job.ID)
		return false, nil
	}
	l.entries = slices.Delete(l.entries, idx, idx+1)
	return true, nil
}

// Peek returns copies of up to limit jobs in delivery order.
func (b *Backend) Peek(ctx context.Context, queueName string, limit int) ([]*queue.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, queue.ErrClosed
	}

	l, ok := b.queues[queueName]
	if !ok || limit <= 0 {
		return nil, nil
	}
	n := min(limit, len(l.entries))
	jobs := make([]*queue.Job, 0, n)
	for _, e := range l.entries[:n] {
		jobs = append(jobs, e.job.Clone())
	}
	return jobs, nil
}

// QueueLength returns the number of unacknowledged jobs in queueName.
func (b *Backend) QueueLength(ctx context.Context, queueName string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, queue.ErrClosed
	}
	if l, ok := b.queues[queueName]; ok {
		return len(l.entries), nil
	}
	return 0, nil
}

// DeadLetters returns copies of up to limit dead-lettered jobs, oldest first.
func (b *Backend) DeadLetters(ctx context.Context, queueName string, limit int) ([]*queue.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.queues[queueName]
	if !ok || limit <= 0 {
		return nil, nil
	}
	n := min(limit, len(l.dead))
	jobs := make([]*queue.Job, 0, n)
	for _, j := range l.dead[:n] {
		jobs = append(jobs, j.Clone())
	}
	return jobs, nil
}

// Close wakes blocked consumers and rejects further calls.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.broadcast()
	}
	return nil
}
