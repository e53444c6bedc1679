package queue

import (
	"context"
	"time"
)

// Backend is the storage and transport contract for jobs.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Enqueue persists the job and makes it visible immediately.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue returns the oldest visible job in queueName and leases it for the
	// job's visibility timeout, incrementing Attempts and assigning a new
	// DeliveryID. With a positive timeout it blocks up to timeout waiting for a
	// job; with zero it returns immediately. Returns nil, nil when no job is
	// available.
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error)

	// Acknowledge permanently removes the job. Returns false when the job is
	// already gone or the acknowledgment belongs to an earlier delivery.
	Acknowledge(ctx context.Context, job *Job) (bool, error)

	// Peek returns up to limit visible or leased jobs without affecting delivery.
	Peek(ctx context.Context, queueName string, limit int) ([]*Job, error)

	// QueueLength returns the number of jobs not yet acknowledged, excluding
	// dead letters.
	QueueLength(ctx context.Context, queueName string) (int, error)

	// Close releases resources held by the backend.
	Close() error
}

// DeadLetterer is implemented by backends that retain jobs which exhausted
// their attempts.
type DeadLetterer interface {
	DeadLetters(ctx context.Context, queueName string, limit int) ([]*Job, error)
}

// Stats summarizes one queue for diagnostics.
type Stats struct {
	Queue       string
	Length      int
	DeadLetters int
}

// maxInspectDeadLetters bounds the dead letter count reported by Inspect.
const maxInspectDeadLetters = 10000

// Inspect reports Stats for each named queue.
func Inspect(ctx context.Context, backend Backend, queues ...string) ([]Stats, error) {
	stats := make([]Stats, 0, len(queues))
	dl, hasDead := backend.(DeadLetterer)
	for _, name := range queues {
		n, err := backend.QueueLength(ctx, name)
		if err != nil {
			return nil, err
		}
		s := Stats{Queue: name, Length: n}
		if hasDead {
			dead, err := dl.DeadLetters(ctx, name, maxInspectDeadLetters)
			if err != nil {
				return nil, err
			}
			s.DeadLetters = len(dead)
		}
		stats = append(stats, s)
	}
	return stats, nil
}
