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


package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/workload"
)

const (
	defaultPollTimeout = 2 * time.Second
	dequeueErrorDelay  = 500 * time.Millisecond
)

// Option configures a Worker.
type Option func(*Worker) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// WithConcurrency sets how many jobs run at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithConcurrency(n int) Option {
	return func(w *Worker) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be at least 1, got %d", n)
		}
		w.concurrency = n
		return nil
	}
}

// WithPollTimeout sets how long each Dequeue blocks waiting for work.
func WithPollTimeout(d time.Duration) Option {
	return func(w *Worker) error {
		if d <= 0 {
			return errors.New("poll timeout must be positive")
		}
		w.pollTimeout = d
		return nil
	}
}

// WithQueues restricts the worker to the named queues.
// Default is every queue of the router.
func WithQueues(names ...string) Option {
	return func(w *Worker) error {
		w.queues = slices.Clone(names)
		return nil
	}
}

// WithRouter sets the routing table used to map actions to kinds.
func WithRouter(router *workload.Router) Option {
	return func(w *Worker) error {
		if router == nil {
			return errors.New("router cannot be nil")
		}
		w.router = router
		return nil
	}
}

// WithHandler registers h for kind.
func WithHandler(kind workload.Kind, h Handler) Option {
	return func(w *Worker) error {
		if h == nil {
			return fmt.Errorf("handler for %s cannot be nil", kind)
		}
		w.handlers[kind] = h
		return nil
	}
}

// Worker dequeues jobs and dispatches them to handlers.
type Worker struct {
	backend     queue.Backend
	router      *workload.Router
	handlers    map[workload.Kind]Handler
	queues      []string
	concurrency int
	pollTimeout time.Duration
	pool        *ants.Pool
	logger      *slog.Logger
}

// New creates a Worker over backend. Release must be called when done.
func New(backend queue.Backend, opts ...Option) (*Worker, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	w := &Worker{
		backend:     backend,
		router:      workload.Default(),
		handlers:    make(map[workload.Kind]Handler),
		concurrency: max(runtime.NumCPU()/2, 1),
		pollTimeout: defaultPollTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "worker")
	if len(w.queues) == 0 {
		w.queues = w.router.Queues()
	}

	pool, err := ants.NewPool(w.concurrency, ants.WithPanicHandler(func(p any) {
		w.logger.Error("worker task panicked", "panic", p)
	}))
	if err != nil {
		return nil, err
	}
	w.pool = pool
	return w, nil
}

// Release stops the pool. Running tasks are allowed to finish.
func (w *Worker) Release() {
	w.pool.Release()
}

// Queues returns the queues this worker consumes.
func (w *Worker) Queues() []string {
	return slices.Clone(w.queues)
}

// Run consumes every queue until ctx is cancelled, then waits for in-flight
// jobs. Jobs interrupted by cancellation stay leased and are redelivered.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "queues", w.queues, "concurrency", w.concurrency)

	var inflight, loops sync.WaitGroup
	for _, name := range w.queues {
		loops.Add(1)
		go func() {
			defer loops.Done()
			w.consume(ctx, name, &inflight)
		}()
	}
	loops.Wait()
	inflight.Wait()

	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) consume(ctx context.Context, queueName string, inflight *sync.WaitGroup) {
	logger := w.logger.With("queue", queueName)
	for ctx.Err() == nil {
		job, err := w.backend.Dequeue(ctx, queueName, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorDelay):
			}
			continue
		}
		if job == nil {
			continue
		}

		inflight.Add(1)
		// Submit blocks while the pool is saturated, which throttles dequeue.
		if err := w.pool.Submit(func() {
			defer inflight.Done()
			w.execute(ctx, job)
		}); err != nil {
			inflight.Done()
			// Left leased; redelivered after the visibility timeout.
			logger.Error("failed to submit job", "job_id", job.ID, "err", err)
			return
		}
	}
}

// ProcessOne handles at most one job from queueName without waiting.
// Reports whether a job was dequeued; the error is the handler's.
func (w *Worker) ProcessOne(ctx context.Context, queueName string) (bool, error) {
	job, err := w.backend.Dequeue(ctx, queueName, 0)
	if err != nil || job == nil {
		return false, err
	}
	return true, w.execute(ctx, job)
}

// Drain processes jobs until every named queue is empty, following jobs that
// handlers enqueue. With no names it drains the worker's queues. Handler
// errors are collected rather than stopping the drain; failed jobs stay
// leased and so do not loop.
func (w *Worker) Drain(ctx context.Context, queues ...string) (int, error) {
	if len(queues) == 0 {
		queues = w.queues
	}
	var (
		processed int
		errs      []error
	)
	for {
		progressed := false
		for _, name := range queues {
			if err := ctx.Err(); err != nil {
				return processed, errors.Join(append(errs, err)...)
			}
			ok, err := w.ProcessOne(ctx, name)
			if ok {
				processed++
				progressed = true
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		if !progressed {
			return processed, errors.Join(errs...)
		}
	}
}

// execute dispatches job and acknowledges it unless it should be retried.
func (w *Worker) execute(ctx context.Context, job *queue.Job) (err error) {
	logger := w.logger.With("queue", job.QueueName, "job_id", job.ID, "attempt", job.Attempts)

	action, _ := job.Payload.GetString(workload.ActionKey)
	kind, ok := w.router.KindForAction(job.QueueName, action)
	if !ok {
		err = fmt.Errorf("%w: %q on queue %s", ErrUnknownAction, action, job.QueueName)
		logger.Error("dropping job", "err", err)
		w.ack(ctx, logger, job)
		return err
	}
	logger = logger.With("kind", kind)

	h, ok := w.handlers[kind]
	if !ok {
		// Another worker may serve this kind.
		logger.Warn("no handler for job kind")
		return fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}

	start := time.Now()
	res, err := w.invoke(ctx, h, job)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		logger.Debug("job finished", "outcome", res.Outcome, "reason", res.Reason, "elapsed", elapsed)
		w.ack(ctx, logger, job)
	case isFatal(err):
		logger.Error("job failed permanently", "err", err, "elapsed", elapsed)
		w.ack(ctx, logger, job)
	default:
		logger.Warn("job failed, leaving for redelivery", "err", err, "elapsed", elapsed,
			"exhausted", job.Exhausted())
	}
	return err
}

func (w *Worker) invoke(ctx context.Context, h Handler, job *queue.Job) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return h.Handle(ctx, job)
}

func (w *Worker) ack(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	// Acknowledge even when the handler's context was cancelled after it
	// finished, so completed work is not redone.
	ackCtx := context.WithoutCancel(ctx)
	removed, err := w.backend.Acknowledge(ackCtx, job)
	if err != nil {
		logger.Error("acknowledge failed", "err", err)
		return
	}
	if !removed {
		logger.Debug("acknowledgment was stale")
	}
}

// isFatal reports errors that no redelivery can fix.
func isFatal(err error) bool {
	return errors.Is(err, workload.ErrInvalidPayload) ||
		errors.Is(err, workload.ErrUnknownKind) ||
		errors.Is(err, ErrUnknownPlugin) ||
		errors.Is(err, ErrUnknownAction)
}
