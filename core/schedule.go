package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ExecutionStatus is the lifecycle state of a scheduled firing.
type ExecutionStatus string

const (
	ExecutionPending  ExecutionStatus = "PENDING"
	ExecutionRunning  ExecutionStatus = "RUNNING"
	ExecutionSuccess  ExecutionStatus = "SUCCESS"
	ExecutionFailed   ExecutionStatus = "FAILED"
	ExecutionTimedOut ExecutionStatus = "TIMED_OUT"
)

// IsActive reports whether the execution may still be picked up or is running.
func (s ExecutionStatus) IsActive() bool {
	return s == ExecutionPending || s == ExecutionRunning
}

// Trigger describes when a recurring descriptor fires.
// Cron takes precedence over Interval when both are set.
type Trigger struct {
	Interval time.Duration
	Cron     string // Standard 5-field cron expression
}

// Next returns the first firing time strictly after after.
func (t Trigger) Next(after time.Time) (time.Time, error) {
	if t.Cron != "" {
		sched, err := cron.ParseStandard(t.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
		}
		return sched.Next(after), nil
	}
	if t.Interval <= 0 {
		return time.Time{}, fmt.Errorf("%w: interval must be positive", ErrInvalidTrigger)
	}
	return after.Add(t.Interval), nil
}

// Validate checks that the trigger can produce a next firing time.
func (t Trigger) Validate() error {
	_, err := t.Next(time.Now())
	return err
}

// Feed is a connector feed executed by a plugin on a schedule.
type Feed struct {
	ID              string
	KnowledgeBaseID string
	PluginName      string
	Params          map[string]any
	Trigger         Trigger
	Enabled         bool
	NextRunAt       time.Time
	LastRunAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FeedExecution records one firing of a Feed.
type FeedExecution struct {
	ID          string
	FeedID      string
	Status      ExecutionStatus
	JobID       string
	ItemsSeen   int
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Experience is a scheduled per-user run.
type Experience struct {
	ID        string
	Name      string
	Trigger   Trigger
	Enabled   bool
	NextRunAt time.Time
	LastRunAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExperienceRun records one user's execution of an Experience firing.
type ExperienceRun struct {
	ID           string
	ExperienceID string
	UserID       string
	Status       ExecutionStatus
	JobID        string
	Error        string
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
}

// User is a fan-out target for experiences.
type User struct {
	ID        string
	Email     string
	Active    bool
	CreatedAt time.Time
}

// Identity links an external provider subject to a User.
type Identity struct {
	Provider  string
	Subject   string
	UserID    string
	CreatedAt time.Time
}

// Attachment is a short-lived uploaded blob referenced by a staging key.
type Attachment struct {
	ID         string
	StagingKey string
	Filename   string
	Size       int64
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsDue reports whether a descriptor with nextRunAt should fire at now.
func IsDue(enabled bool, nextRunAt, now time.Time) bool {
	return enabled && !nextRunAt.After(now)
}

// ErrInvalidTrigger indicates a trigger cannot compute its next firing.
var ErrInvalidTrigger = errors.New("invalid trigger")
