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


package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxAttempts       = 3
	DefaultVisibilityTimeout = 300 * time.Second
)

// Job is an opaque unit of work addressed to a named queue.
type Job struct {
	ID                string
	QueueName         string
	Payload           *Payload
	Attempts          int // Incremented by the backend on every dequeue
	MaxAttempts       int
	VisibilityTimeout time.Duration
	EnqueuedAt        time.Time
	DeliveryID        string // Lease token of the current delivery; empty until dequeued
}

// JobOption customizes a Job created by NewJob.
type JobOption func(*Job)

// WithMaxAttempts sets the number of deliveries before the job is dead-lettered.
func WithMaxAttempts(n int) JobOption {
	return func(j *Job) {
		if n > 0 {
			j.MaxAttempts = n
		}
	}
}

// WithVisibilityTimeout sets how long a dequeued job stays invisible.
func WithVisibilityTimeout(d time.Duration) JobOption {
	return func(j *Job) {
		if d > 0 {
			j.VisibilityTimeout = d
		}
	}
}

// WithJobID overrides the generated job ID.
func WithJobID(id string) JobOption {
	return func(j *Job) {
		if id != "" {
			j.ID = id
		}
	}
}

// NewJob creates a job for queueName with default policy values.
// A nil payload is replaced by an empty one.
func NewJob(queueName string, payload *Payload, opts ...JobOption) *Job {
	if payload == nil {
		payload = NewPayload()
	}
	job := &Job{
		ID:                uuid.NewString(),
		QueueName:         queueName,
		Payload:           payload,
		MaxAttempts:       DefaultMaxAttempts,
		VisibilityTimeout: DefaultVisibilityTimeout,
	}
	for _, opt := range opts {
		opt(job)
	}
	return job
}

// Exhausted reports whether the job has used all of its deliveries.
func (j *Job) Exhausted() bool {
	return j.MaxAttempts > 0 && j.Attempts >= j.MaxAttempts
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Payload = j.Payload.Clone()
	return &c
}

// Prepare validates a job before it is enqueued and fills in policy defaults.
// Backends call it from Enqueue.
func Prepare(job *Job, now time.Time) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	if job.QueueName == "" {
		return fmt.Errorf("%w: queue name is empty", ErrInvalidJob)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Payload == nil {
		job.Payload = NewPayload()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.VisibilityTimeout <= 0 {
		job.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now.UTC()
	}
	return nil
}

// NewDeliveryID returns a fresh lease token.
func NewDeliveryID() string {
	return uuid.NewString()
}
