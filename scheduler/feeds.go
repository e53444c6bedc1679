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


package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/workload"
)

const staleMessage = "execution timed out"

// SourceOption configures the built-in sources.
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	router *workload.Router
	logger *slog.Logger
}

// WithSourceRouter sets the routing table used to build jobs.
func WithSourceRouter(router *workload.Router) SourceOption {
	return func(c *sourceConfig) {
		if router != nil {
			c.router = router
		}
	}
}

// WithSourceLogger sets a custom logger.
func WithSourceLogger(logger *slog.Logger) SourceOption {
	return func(c *sourceConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newSourceConfig(name string, opts []SourceOption) sourceConfig {
	c := sourceConfig{router: workload.Default(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	c.logger = c.logger.With("component", "scheduler", "source", name)
	return c
}

// staleBefore returns the cutoff for executions of kind: anything started
// before it has outlived the job's visibility timeout.
func staleBefore(router *workload.Router, kind workload.Kind, now time.Time) time.Time {
	timeout := queue.DefaultVisibilityTimeout
	if route, err := router.Route(kind); err == nil && route.Policy.VisibilityTimeout > 0 {
		timeout = route.Policy.VisibilityTimeout
	}
	return now.Add(-timeout)
}

func startedAt(created, started time.Time) time.Time {
	if started.IsZero() {
		return created
	}
	return started
}

// FeedSource enqueues one execution per due connector feed.
type FeedSource struct {
	feeds   storage.FeedRepository
	backend queue.Backend
	sourceConfig
}

var _ Source = (*FeedSource)(nil)

func NewFeedSource(feeds storage.FeedRepository, backend queue.Backend, opts ...SourceOption) *FeedSource {
	return &FeedSource{feeds: feeds, backend: backend, sourceConfig: newSourceConfig("feeds", opts)}
}

func (s *FeedSource) Name() string { return "feeds" }

func (s *FeedSource) CleanupStale(ctx context.Context, now time.Time) (int, error) {
	active, err := s.feeds.ListActiveFeedExecutions(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := staleBefore(s.router, workload.KindFeedExecution, now)
	cleaned := 0
	for _, exec := range active {
		if !startedAt(exec.CreatedAt, exec.StartedAt).Before(cutoff) {
			continue
		}
		exec.Status = core.ExecutionTimedOut
		exec.Error = staleMessage
		exec.CompletedAt = now
		if _, err := s.feeds.UpdateFeedExecution(ctx, exec); err != nil {
			return cleaned, fmt.Errorf("failed to time out execution %s: %w", exec.ID, err)
		}
		s.logger.Warn("feed execution timed out", "feed_id", exec.FeedID, "execution_id", exec.ID)
		cleaned++
	}
	return cleaned, nil
}

func (s *FeedSource) EnqueueDue(ctx context.Context, now time.Time, limit int) (SourceReport, error) {
	var report SourceReport
	due, err := s.feeds.ListDueFeeds(ctx, now, limit)
	if err != nil {
		return report, err
	}
	if len(due) == 0 {
		return report, nil
	}

	active, err := s.feeds.ListActiveFeedExecutions(ctx)
	if err != nil {
		return report, err
	}
	busy := make(map[string]bool, len(active))
	for _, exec := range active {
		busy[exec.FeedID] = true
	}

	for _, feed := range due {
		report.Due++
		logger := s.logger.With("feed_id", feed.ID, "plugin", feed.PluginName)

		if busy[feed.ID] {
			logger.Debug("feed has an execution in flight")
			report.Skipped++
		} else {
			if err := s.enqueue(ctx, feed); err != nil {
				logger.Error("failed to enqueue feed execution", "err", err)
				report.Errors++
				// Not advanced, so the next tick retries.
				continue
			}
			report.Enqueued++
		}

		if err := s.advance(ctx, feed, now); err != nil {
			logger.Error("failed to advance feed schedule", "err", err)
			report.Errors++
		}
	}
	return report, nil
}

func (s *FeedSource) enqueue(ctx context.Context, feed *core.Feed) error {
	exec, err := s.feeds.AddFeedExecution(ctx, &core.FeedExecution{FeedID: feed.ID})
	if err != nil {
		return err
	}
	job, err := s.router.NewJob(workload.KindFeedExecution, workload.FeedPayload{
		PluginName:      feed.PluginName,
		KnowledgeBaseID: feed.KnowledgeBaseID,
		Params:          feed.Params,
		ScheduleID:      feed.ID,
		ExecutionID:     exec.ID,
	}.Payload())
	if err == nil {
		exec.JobID = job.ID
		if _, err = s.feeds.UpdateFeedExecution(ctx, exec); err == nil {
			err = s.backend.Enqueue(ctx, job)
		}
	}
	if err != nil {
		exec.Status = core.ExecutionFailed
		exec.Error = err.Error()
		if _, uerr := s.feeds.UpdateFeedExecution(ctx, exec); uerr != nil {
			s.logger.Warn("failed to record execution failure", "execution_id", exec.ID, "err", uerr)
		}
		return err
	}
	return nil
}

// advance moves NextRunAt to the first firing after now, so missed cycles
// collapse into one.
func (s *FeedSource) advance(ctx context.Context, feed *core.Feed, now time.Time) error {
	next, err := feed.Trigger.Next(now)
	if err != nil {
		return err
	}
	feed.NextRunAt = next
	_, err = s.feeds.UpdateFeed(ctx, feed)
	return err
}
