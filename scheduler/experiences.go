package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/workload"
)

// ExperienceSource fans each due experience out to every active user.
type ExperienceSource struct {
	experiences storage.ExperienceRepository
	users       storage.UserRepository
	backend     queue.Backend
	sourceConfig
}

var _ Source = (*ExperienceSource)(nil)

func NewExperienceSource(experiences storage.ExperienceRepository, users storage.UserRepository, backend queue.Backend, opts ...SourceOption) *ExperienceSource {
	return &ExperienceSource{
		experiences:  experiences,
		users:        users,
		backend:      backend,
		sourceConfig: newSourceConfig("experiences", opts),
	}
}

func (s *ExperienceSource) Name() string { return "experiences" }

func (s *ExperienceSource) CleanupStale(ctx context.Context, now time.Time) (int, error) {
	active, err := s.experiences.ListActiveExperienceRuns(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := staleBefore(s.router, workload.KindExperienceExecution, now)
	cleaned := 0
	for _, run := range active {
		if !startedAt(run.CreatedAt, run.StartedAt).Before(cutoff) {
			continue
		}
		run.Status = core.ExecutionTimedOut
		run.Error = staleMessage
		run.CompletedAt = now
		if _, err := s.experiences.UpdateExperienceRun(ctx, run); err != nil {
			return cleaned, fmt.Errorf("failed to time out run %s: %w", run.ID, err)
		}
		cleaned++
	}
	if cleaned > 0 {
		s.logger.Warn("experience runs timed out", "count", cleaned)
	}
	return cleaned, nil
}

func (s *ExperienceSource) EnqueueDue(ctx context.Context, now time.Time, limit int) (SourceReport, error) {
	var report SourceReport
	due, err := s.experiences.ListDueExperiences(ctx, now, limit)
	if err != nil || len(due) == 0 {
		return report, err
	}

	users, err := s.users.ListActiveUsers(ctx)
	if err != nil {
		return report, err
	}
	active, err := s.experiences.ListActiveExperienceRuns(ctx)
	if err != nil {
		return report, err
	}
	busy := make(map[[2]string]bool, len(active))
	for _, run := range active {
		busy[[2]string{run.ExperienceID, run.UserID}] = true
	}

	for _, exp := range due {
		report.Due++
		logger := s.logger.With("experience_id", exp.ID)

		if len(users) == 0 {
			logger.Info("experience due with no active users")
			report.NoUsers++
		}
		failed := 0
		for _, user := range users {
			if busy[[2]string{exp.ID, user.ID}] {
				report.Skipped++
				continue
			}
			if err := s.enqueue(ctx, exp, user); err != nil {
				logger.Error("failed to enqueue experience run", "user_id", user.ID, "err", err)
				failed++
				continue
			}
			report.Enqueued++
		}
		report.Errors += failed

		// Advanced once per firing regardless of how many users were targeted.
		// Users that failed are picked up on the next natural firing.
		next, err := exp.Trigger.Next(now)
		if err == nil {
			exp.NextRunAt = next
			_, err = s.experiences.UpdateExperience(ctx, exp)
		}
		if err != nil {
			logger.Error("failed to advance experience schedule", "err", err)
			report.Errors++
		}
	}
	return report, nil
}

func (s *ExperienceSource) enqueue(ctx context.Context, exp *core.Experience, user *core.User) error {
	run, err := s.experiences.AddExperienceRun(ctx, &core.ExperienceRun{ExperienceID: exp.ID, UserID: user.ID})
	if err != nil {
		return err
	}
	job, err := s.router.NewJob(workload.KindExperienceExecution, workload.ExperiencePayload{
		ExperienceID: exp.ID,
		RunID:        run.ID,
		UserID:       user.ID,
	}.Payload())
	if err == nil {
		run.JobID = job.ID
		if _, err = s.experiences.UpdateExperienceRun(ctx, run); err == nil {
			err = s.backend.Enqueue(ctx, job)
		}
	}
	if err != nil {
		run.Status = core.ExecutionFailed
		run.Error = err.Error()
		if _, uerr := s.experiences.UpdateExperienceRun(ctx, run); uerr != nil {
			s.logger.Warn("failed to record run failure", "run_id", run.ID, "err", uerr)
		}
		return err
	}
	return nil
}
