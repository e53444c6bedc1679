package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/workload"
)

// ExperienceRunner performs one user's run of an experience.
type ExperienceRunner interface {
	RunExperience(ctx context.Context, exp *core.Experience, user *core.User, run *core.ExperienceRun) error
}

// ExperienceRunnerFunc adapts a function to ExperienceRunner.
type ExperienceRunnerFunc func(ctx context.Context, exp *core.Experience, user *core.User, run *core.ExperienceRun) error

func (f ExperienceRunnerFunc) RunExperience(ctx context.Context, exp *core.Experience, user *core.User, run *core.ExperienceRun) error {
	return f(ctx, exp, user, run)
}

// ExperienceHandler drives an ExperienceRun through its lifecycle.
type ExperienceHandler struct {
	experiences storage.ExperienceRepository
	users       storage.UserRepository
	runner      ExperienceRunner
	logger      *slog.Logger
	now         func() time.Time
}

var _ Handler = (*ExperienceHandler)(nil)

func NewExperienceHandler(experiences storage.ExperienceRepository, users storage.UserRepository, runner ExperienceRunner, logger *slog.Logger) *ExperienceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExperienceHandler{
		experiences: experiences,
		users:       users,
		runner:      runner,
		logger:      logger.With("component", "worker", "handler", "experience"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (h *ExperienceHandler) Handle(ctx context.Context, job *queue.Job) (Result, error) {
	p, err := workload.ParseExperience(job.Payload)
	if err != nil {
		return Result{}, err
	}
	logger := h.logger.With("job_id", job.ID, "experience_id", p.ExperienceID, "run_id", p.RunID)

	run, err := h.experiences.GetExperienceRun(ctx, p.RunID)
	if errors.Is(err, storage.ErrNotFound) {
		return Cancelled("run deleted"), nil
	}
	if err != nil {
		return Result{}, err
	}
	if !run.Status.IsActive() {
		return Cancelled("run already " + string(run.Status)), nil
	}

	exp, err := h.experiences.GetExperience(ctx, p.ExperienceID)
	if errors.Is(err, storage.ErrNotFound) {
		return h.finish(ctx, run, core.ExecutionFailed, "experience deleted")
	}
	if err != nil {
		return Result{}, err
	}

	user, err := h.users.GetUser(ctx, p.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return h.finish(ctx, run, core.ExecutionFailed, "user deleted")
	}
	if err != nil {
		return Result{}, err
	}
	if !user.Active {
		return h.finish(ctx, run, core.ExecutionFailed, "user inactive")
	}

	run.Status = core.ExecutionRunning
	run.JobID = job.ID
	run.StartedAt = h.now()
	if run, err = h.experiences.UpdateExperienceRun(ctx, run); err != nil {
		return Result{}, err
	}

	if err := h.runner.RunExperience(ctx, exp, user, run); err != nil {
		logger.Warn("experience run failed", "attempt", job.Attempts, "err", err)
		run.Error = err.Error()
		if job.Exhausted() {
			run.Status = core.ExecutionFailed
			run.CompletedAt = h.now()
		}
		if _, uerr := h.experiences.UpdateExperienceRun(ctx, run); uerr != nil {
			return Result{}, errors.Join(err, uerr)
		}
		return Result{}, err
	}

	run.Error = ""
	res, err := h.finish(ctx, run, core.ExecutionSuccess, "")
	if err != nil {
		return Result{}, err
	}
	logger.Info("experience run complete", "user_id", user.ID)
	return res, nil
}

func (h *ExperienceHandler) finish(ctx context.Context, run *core.ExperienceRun, status core.ExecutionStatus, msg string) (Result, error) {
	run.Status = status
	run.Error = msg
	run.CompletedAt = h.now()
	if _, err := h.experiences.UpdateExperienceRun(ctx, run); err != nil {
		return Result{}, err
	}
	if status == core.ExecutionFailed {
		return Cancelled(msg), nil
	}
	return Success(nil), nil
}
