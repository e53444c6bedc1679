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


// Package redis provides a queue.Backend shared by multiple nodes through Redis.
//
// Each queue uses a set of keys under a common hash tag so all of a queue's
// keys land in one cluster slot:
//
//	<prefix>:{<queue>}:ready     list of visible job IDs, head is oldest
//	<prefix>:{<queue>}:inflight  sorted set of leased job IDs scored by lease deadline (ms)
//	<prefix>:{<queue>}:jobs      hash of job ID to encoded job
//	<prefix>:{<queue>}:attempts  hash of job ID to delivery count
//	<prefix>:{<queue>}:receipts  hash of job ID to current DeliveryID
//	<prefix>:{<queue>}:limits    hash of job ID to max attempts
//	<prefix>:{<queue>}:vis       hash of job ID to visibility timeout (ms)
//	<prefix>:{<queue>}:dead      list of dead-lettered job IDs
//
// Dequeue and Acknowledge run as Lua scripts so lease transitions are atomic.
// Blocking dequeue polls at a configurable interval.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/poiesic/docflow/queue"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix       = "docflow"
	defaultPollInterval = 100 * time.Millisecond
)

// enqueueScript stores the job body and makes it ready in one step. It
// returns 0 without writing anything when the id is already stored.
var enqueueScript = goredis.NewScript(`
local id = ARGV[1]
if redis.call('HSETNX', KEYS[3], id, ARGV[2]) == 0 then
  return 0
end
redis.call('HSET', KEYS[4], id, ARGV[3])
redis.call('HSET', KEYS[6], id, ARGV[4])
redis.call('HSET', KEYS[7], id, ARGV[5])
redis.call('RPUSH', KEYS[1], id)
return 1
`)

// dequeueScript requeues expired leases, dead-letters exhausted jobs, then
// leases the head of the ready list.
var dequeueScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now)
for i = #expired, 1, -1 do
  local id = expired[i]
  redis.call('ZREM', KEYS[2], id)
  local attempts = tonumber(redis.call('HGET', KEYS[4], id) or '0')
  local limit = tonumber(redis.call('HGET', KEYS[6], id) or '0')
  if limit > 0 and attempts >= limit then
    redis.call('RPUSH', KEYS[8], id)
    redis.call('HDEL', KEYS[5], id)
  else
    redis.call('LPUSH', KEYS[1], id)
  end
end
local id = redis.call('LPOP', KEYS[1])
if not id then
  return false
end
local attempts = redis.call('HINCRBY', KEYS[4], id, 1)
local vis = tonumber(redis.call('HGET', KEYS[7], id) or '0')
redis.call('ZADD', KEYS[2], now + vis, id)
redis.call('HSET', KEYS[5], id, ARGV[2])
local blob = redis.call('HGET', KEYS[3], id)
return {blob, attempts}
`)

// ackScript removes a job only when the receipt matches the current lease.
var ackScript = goredis.NewScript(`
local id = ARGV[1]
if redis.call('HEXISTS', KEYS[3], id) == 0 then
  return 0
end
local current = redis.call('HGET', KEYS[5], id)
if not current then
  current = ''
end
if current ~= ARGV[2] then
  return 0
end
local removed = redis.call('ZREM', KEYS[2], id) + redis.call('LREM', KEYS[1], 0, id)
if removed == 0 then
  return 0
end
redis.call('HDEL', KEYS[3], id)
redis.call('HDEL', KEYS[4], id)
redis.call('HDEL', KEYS[5], id)
redis.call('HDEL', KEYS[6], id)
redis.call('HDEL', KEYS[7], id)
return 1
`)

// Option configures a Backend.
type Option func(*Backend) error

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(b *Backend) error {
		if prefix == "" {
			return errors.New("prefix cannot be empty")
		}
		b.prefix = prefix
		return nil
	}
}

// WithPollInterval sets how often a blocking Dequeue re-checks the queue.
func WithPollInterval(d time.Duration) Option {
	return func(b *Backend) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		b.pollInterval = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		b.logger = logger
		return nil
	}
}

// Backend is a Redis queue.Backend.
type Backend struct {
	client       goredis.UniversalClient
	prefix       string
	pollInterval time.Duration
	logger       *slog.Logger
}

var (
	_ queue.Backend      = (*Backend)(nil)
	_ queue.DeadLetterer = (*Backend)(nil)
)

// New creates a Backend over client. The backend owns client and closes it on Close.
func New(client goredis.UniversalClient, opts ...Option) (*Backend, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	b := &Backend{
		client:       client,
		prefix:       defaultPrefix,
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "redis-queue")
	return b, nil
}

// Dial connects to a single Redis server and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Backend, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	b, err := New(client, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

type queueKeys struct {
	ready, inflight, jobs, attempts, receipts, limits, vis, dead string
}

func (b *Backend) keys(queueName string) queueKeys {
	base := fmt.Sprintf("%s:{%s}:", b.prefix, queueName)
	return queueKeys{
		ready:    base + "ready",
		inflight: base + "inflight",
		jobs:     base + "jobs",
		attempts: base + "attempts",
		receipts: base + "receipts",
		limits:   base + "limits",
		vis:      base + "vis",
		dead:     base + "dead",
	}
}

func (k queueKeys) all() []string {
	return []string{k.ready, k.inflight, k.jobs, k.attempts, k.receipts, k.limits, k.vis, k.dead}
}

// Enqueue stores the job and appends it to the ready list.
func (b *Backend) Enqueue(ctx context.Context, job *queue.Job) error {
	if err := queue.Prepare(job, time.Now()); err != nil {
		return err
	}
	blob, err := queue.MarshalJob(job)
	if err != nil {
		return err
	}

	k := b.keys(job.QueueName)
	added, err := enqueueScript.Run(ctx, b.client, k.all(),
		job.ID, blob, job.Attempts, job.MaxAttempts, job.VisibilityTimeout.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if added == 0 {
		return fmt.Errorf("%w: %s", queue.ErrDuplicateJob, job.ID)
	}
	return nil
}

// Dequeue leases the oldest visible job, polling until timeout when positive.
func (b *Backend) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := b.tryDequeue(ctx, queueName)
		if err != nil || job != nil {
			return job, err
		}
		remaining := time.Until(deadline)
		if timeout <= 0 || remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(min(remaining, b.pollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Backend) tryDequeue(ctx context.Context, queueName string) (*queue.Job, error) {
	k := b.keys(queueName)
	deliveryID := queue.NewDeliveryID()
	res, err := dequeueScript.Run(ctx, b.client, k.all(), time.Now().UnixMilli(), deliveryID).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fields, ok := res.([]any)
	if !ok || len(fields) != 2 {
		return nil, fmt.Errorf("unexpected dequeue reply %T", res)
	}
	blob, ok := fields[0].(string)
	if !ok {
		return nil, fmt.Errorf("job body missing from %s", k.jobs)
	}
	attempts, _ := fields[1].(int64)

	job, err := queue.UnmarshalJob([]byte(blob))
	if err != nil {
		return nil, err
	}
	job.Attempts = int(attempts)
	job.DeliveryID = deliveryID
	return job, nil
}

// Acknowledge removes the job when its DeliveryID matches the current lease.
func (b *Backend) Acknowledge(ctx context.Context, job *queue.Job) (bool, error) {
	if job == nil {
		return false, fmt.Errorf("%w: job is nil", queue.ErrInvalidJob)
	}
	k := b.keys(job.QueueName)
	n, err := ackScript.Run(ctx, b.client, k.all(), job.ID, job.DeliveryID).Int()
	if err != nil {
		return false, err
	}
	if n == 0 {
		b.logger.Debug("acknowledgment ignored", "queue", job.QueueName, "job_id", job.ID)
	}
	return n == 1, nil
}

// Peek returns up to limit ready jobs followed by leased jobs.
func (b *Backend) Peek(ctx context.Context, queueName string, limit int) ([]*queue.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	k := b.keys(queueName)
	ids, err := b.client.LRange(ctx, k.ready, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) < limit {
		leased, err := b.client.ZRange(ctx, k.inflight, 0, int64(limit-len(ids)-1)).Result()
		if err != nil {
			return nil, err
		}
		ids = append(ids, leased...)
	}
	return b.loadJobs(ctx, k, ids)
}

// QueueLength counts ready and leased jobs.
func (b *Backend) QueueLength(ctx context.Context, queueName string) (int, error) {
	k := b.keys(queueName)
	var ready, leased *goredis.IntCmd
	_, err := b.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		ready = pipe.LLen(ctx, k.ready)
		leased = pipe.ZCard(ctx, k.inflight)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(ready.Val() + leased.Val()), nil
}

// DeadLetters returns up to limit dead-lettered jobs, oldest first.
func (b *Backend) DeadLetters(ctx context.Context, queueName string, limit int) ([]*queue.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	k := b.keys(queueName)
	ids, err := b.client.LRange(ctx, k.dead, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	return b.loadJobs(ctx, k, ids)
}

func (b *Backend) loadJobs(ctx context.Context, k queueKeys, ids []string) ([]*queue.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	blobs, err := b.client.HMGet(ctx, k.jobs, ids...).Result()
	if err != nil {
		return nil, err
	}
	attempts, err := b.client.HMGet(ctx, k.attempts, ids...).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*queue.Job, 0, len(ids))
	for i, raw := range blobs {
		blob, ok := raw.(string)
		if !ok {
			continue
		}
		job, err := queue.UnmarshalJob([]byte(blob))
		if err != nil {
			return nil, err
		}
		if s, ok := attempts[i].(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				job.Attempts = n
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Purge deletes every key for queueName.
func (b *Backend) Purge(ctx context.Context, queueName string) error {
	return b.client.Del(ctx, b.keys(queueName).all()...).Err()
}

// Close closes the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}
