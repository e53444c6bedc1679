package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/storage"
)

const (
	defaultQueuePollInterval = 50 * time.Millisecond
	queueTxAttempts          = 10
)

// QueueOption configures a Queue.
type QueueOption func(*Queue) error

// WithQueuePollInterval sets how often a blocking Dequeue re-checks storage.
func WithQueuePollInterval(d time.Duration) QueueOption {
	return func(q *Queue) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		q.pollInterval = d
		return nil
	}
}

// WithQueueLogger sets the logger.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		q.logger = logger
		return nil
	}
}

// Queue is a durable queue.Backend stored in BadgerDB. Jobs are keyed by a
// monotonically increasing sequence so iteration order is enqueue order.
type Queue struct {
	backend      *Backend
	seq          *badger.Sequence
	pollInterval time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	notify chan struct{}
}

var (
	_ queue.Backend      = (*Queue)(nil)
	_ queue.DeadLetterer = (*Queue)(nil)
)

// NewQueue creates a Queue over backend. The backend remains owned by the caller.
func NewQueue(backend *Backend, opts ...QueueOption) (*Queue, error) {
	seq, err := backend.GetSequence(jobSequence)
	if err != nil {
		return nil, err
	}
	q := &Queue{
		backend:      backend,
		seq:          seq,
		pollInterval: defaultQueuePollInterval,
		logger:       slog.Default(),
		notify:       make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			seq.Release()
			return nil, err
		}
	}
	q.logger = q.logger.With("component", "badger-queue")
	return q, nil
}

// leaseRecord is the stored form of a job plus its current lease deadline.
type leaseRecord struct {
	invisibleUntil time.Time
	job            *queue.Job
}

func marshalLease(rec *leaseRecord) ([]byte, error) {
	blob, err := queue.MarshalJob(rec.job)
	if err != nil {
		return nil, err
	}
	enc := core.NewEncoder(16 + len(blob))
	enc.Time(rec.invisibleUntil)
	enc.String(string(blob))
	return enc.Bytes(), nil
}

func unmarshalLease(data []byte) (*leaseRecord, error) {
	dec := core.NewDecoder(data)
	until := dec.Time()
	blob := dec.String()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: job lease: %w", storage.ErrSerializationFailed, err)
	}
	job, err := queue.UnmarshalJob([]byte(blob))
	if err != nil {
		return nil, err
	}
	return &leaseRecord{invisibleUntil: until, job: job}, nil
}

func (q *Queue) wake() {
	q.mu.Lock()
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()
}

func (q *Queue) waitChan() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.notify
}

// Enqueue stores the job under the next sequence number.
func (q *Queue) Enqueue(ctx context.Context, job *queue.Job) error {
	if err := queue.Prepare(job, time.Now()); err != nil {
		return err
	}
	seq, err := q.seq.Next()
	if err != nil {
		return err
	}
	value, err := marshalLease(&leaseRecord{job: job})
	if err != nil {
		return err
	}

	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)

	err = q.backend.WithRetryTx(func(tx *badger.Txn) error {
		idxKey := makeJobIndexKey(job.QueueName, job.ID)
		if _, err := tx.Get(idxKey); err == nil {
			return fmt.Errorf("%w: %s", queue.ErrDuplicateJob, job.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(makeJobKey(job.QueueName, seq), value); err != nil {
			return err
		}
		if err := tx.Set(idxKey, seqBytes); err != nil {
			return err
		}
		return tx.Commit()
	}, queueTxAttempts)
	if err != nil {
		return err
	}
	q.wake()
	return nil
}

// Dequeue leases the first visible job, dead-lettering exhausted jobs it passes.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		wait := q.waitChan()
		job, err := q.tryDequeue(queueName)
		if err != nil || job != nil {
			return job, err
		}
		remaining := time.Until(deadline)
		if timeout <= 0 || remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(min(remaining, q.pollInterval))
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

func (q *Queue) tryDequeue(queueName string) (*queue.Job, error) {
	var leased *queue.Job
	err := q.backend.WithRetryTx(func(tx *badger.Txn) error {
		leased = nil
		now := time.Now()

		// The iterator must be closed before Commit
		if err := func() error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefixKey(jobPrefix, queueName)
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Rewind(); iter.Valid(); iter.Next() {
				item := iter.Item()
				key := item.KeyCopy(nil)
				var rec *leaseRecord
				if err := item.Value(func(val []byte) error {
					var err error
					rec, err = unmarshalLease(val)
					return err
				}); err != nil {
					return err
				}
				if rec.invisibleUntil.After(now) {
					continue
				}

				if rec.job.Exhausted() {
					q.logger.Warn("job exhausted attempts, moving to dead letters",
						"queue", queueName, "job_id", rec.job.ID, "attempts", rec.job.Attempts)
					seq := binary.BigEndian.Uint64(key[len(key)-8:])
					value, err := marshalLease(&leaseRecord{job: rec.job})
					if err != nil {
						return err
					}
					if err := tx.Set(makeDeadLetterKey(queueName, seq), value); err != nil {
						return err
					}
					if err := tx.Delete(key); err != nil {
						return err
					}
					if err := tx.Delete(makeJobIndexKey(queueName, rec.job.ID)); err != nil {
						return err
					}
					continue
				}

				rec.job.Attempts++
				rec.job.DeliveryID = queue.NewDeliveryID()
				rec.invisibleUntil = now.Add(rec.job.VisibilityTimeout)
				value, err := marshalLease(rec)
				if err != nil {
					return err
				}
				if err := tx.Set(key, value); err != nil {
					return err
				}
				leased = rec.job
				break
			}
			return nil
		}(); err != nil {
			return err
		}
		return tx.Commit()
	}, queueTxAttempts)
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// Acknowledge removes the job if job.DeliveryID matches its current lease.
func (q *Queue) Acknowledge(ctx context.Context, job *queue.Job) (bool, error) {
	if job == nil {
		return false, fmt.Errorf("%w: job is nil", queue.ErrInvalidJob)
	}
	removed := false
	err := q.backend.WithRetryTx(func(tx *badger.Txn) error {
		removed = false
		idxKey := makeJobIndexKey(job.QueueName, job.ID)
		item, err := tx.Get(idxKey)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		seqBytes, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		key := makeJobKey(job.QueueName, binary.BigEndian.Uint64(seqBytes))
		rec, err := readRecord(tx, key, unmarshalLease)
		if err != nil {
			return err
		}
		if rec == nil || rec.job.DeliveryID != job.DeliveryID {
			return nil
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		if err := tx.Delete(idxKey); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		removed = true
		return nil
	}, queueTxAttempts)
	if err != nil {
		return false, err
	}
	if !removed {
		q.logger.Debug("acknowledgment ignored", "queue", job.QueueName, "job_id", job.ID)
	}
	return removed, nil
}

func (q *Queue) list(prefix []byte, limit int) ([]*queue.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	var jobs []*queue.Job
	err := q.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && len(jobs) < limit; iter.Next() {
			if err := iter.Item().Value(func(val []byte) error {
				rec, err := unmarshalLease(val)
				if err != nil {
					return err
				}
				jobs = append(jobs, rec.job)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}, false)
	return jobs, err
}

// Peek returns up to limit jobs in enqueue order.
func (q *Queue) Peek(ctx context.Context, queueName string, limit int) ([]*queue.Job, error) {
	return q.list(prefixKey(jobPrefix, queueName), limit)
}

// DeadLetters returns up to limit dead-lettered jobs, oldest first.
func (q *Queue) DeadLetters(ctx context.Context, queueName string, limit int) ([]*queue.Job, error) {
	return q.list(prefixKey(deadLetterPrefix, queueName), limit)
}

// QueueLength counts unacknowledged jobs in queueName.
func (q *Queue) QueueLength(ctx context.Context, queueName string) (int, error) {
	var n int
	err := q.backend.WithTx(func(tx *badger.Txn) error {
		n = countKeys(tx, prefixKey(jobPrefix, queueName))
		return nil
	}, false)
	return n, err
}

// Close releases the sequence lease and wakes blocked consumers.
func (q *Queue) Close() error {
	q.wake()
	return q.seq.Release()
}
