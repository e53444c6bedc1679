package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/workload"
)

// ProfileHandler attaches a semantic profile to a processed document.
// Failures are returned for retry but never change the document's status.
type ProfileHandler struct {
	deps     Deps
	profiler ai.Profiler
	logger   *slog.Logger
}

var _ Handler = (*ProfileHandler)(nil)

func NewProfileHandler(deps Deps, profiler ai.Profiler) *ProfileHandler {
	return &ProfileHandler{deps: deps, profiler: profiler, logger: deps.logger("profiling")}
}

func (h *ProfileHandler) Handle(ctx context.Context, job *queue.Job) (Result, error) {
	p, err := workload.ParseProfiling(job.Payload)
	if err != nil {
		return Result{}, err
	}
	logger := h.logger.With("job_id", job.ID, "document_id", p.DocumentID)

	doc, err := h.deps.document(ctx, p.DocumentID)
	if err != nil {
		return Result{}, err
	}
	if doc == nil {
		return Cancelled(reasonDocumentDeleted), nil
	}
	kb, err := h.deps.knowledgeBase(ctx, doc.KnowledgeBaseID)
	if err != nil {
		return Result{}, err
	}
	if kb == nil {
		logger.Info("knowledge base deleted, discarding job")
		return Cancelled(reasonKnowledgeBaseDeleted), nil
	}
	if superseded(doc, p.ContentHash) {
		return Cancelled(reasonSuperseded), nil
	}
	if doc.Status != core.StatusProcessed {
		// Content changed since the job was queued; a new pipeline run will
		// request its own profile.
		return Cancelled("document not processed"), nil
	}

	profile, err := h.profiler.ProfileDocument(ctx, doc.Title, doc.Content)
	if err != nil {
		logger.Warn("profiling failed", "attempt", job.Attempts, "err", err)
		return Result{}, err
	}

	// Reload so a concurrent re-ingest is not overwritten.
	current, err := h.deps.document(ctx, doc.ID)
	if err != nil {
		return Result{}, err
	}
	if current == nil || current.Status != core.StatusProcessed || current.ContentHash != doc.ContentHash {
		return Cancelled("document changed during profiling"), nil
	}
	current.Profile = &core.Profile{
		Summary:    profile.Summary,
		Topics:     profile.Topics,
		Language:   profile.Language,
		ProfiledAt: time.Now().UTC(),
	}
	if _, err := h.deps.Documents.Save(ctx, current); err != nil {
		return Result{}, err
	}
	logger.Info("document profiled", "topics", len(profile.Topics))
	return Success(nil), nil
}
