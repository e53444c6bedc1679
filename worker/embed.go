package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/documents"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/workload"
)

// EmbedHandler chunks and embeds a document's text and, when enabled,
// chains to profiling.
type EmbedHandler struct {
	deps   Deps
	logger *slog.Logger
}

var _ Handler = (*EmbedHandler)(nil)

func NewEmbedHandler(deps Deps) *EmbedHandler {
	return &EmbedHandler{deps: deps, logger: deps.logger("embed")}
}

func (h *EmbedHandler) Handle(ctx context.Context, job *queue.Job) (Result, error) {
	p, err := workload.ParseEmbed(job.Payload)
	if err != nil {
		return Result{}, err
	}
	logger := h.logger.With("job_id", job.ID, "document_id", p.DocumentID)

	kb, err := h.deps.knowledgeBase(ctx, p.KnowledgeBaseID)
	if err != nil {
		return Result{}, err
	}
	if kb == nil {
		logger.Info("knowledge base deleted, discarding job", "knowledge_base_id", p.KnowledgeBaseID)
		return Cancelled(reasonKnowledgeBaseDeleted), nil
	}

	doc, err := h.deps.document(ctx, p.DocumentID)
	if err != nil {
		return Result{}, err
	}
	if doc == nil {
		logger.Info("document deleted, discarding job")
		return Cancelled(reasonDocumentDeleted), nil
	}
	if superseded(doc, p.ContentHash) {
		logger.Info("document re-ingested since job was queued, discarding job")
		return Cancelled(reasonSuperseded), nil
	}
	if doc.Status == core.StatusProcessed {
		logger.Debug("document already processed")
		return Success(nil), nil
	}

	processed, err := h.deps.Documents.ProcessAndUpdateChunks(ctx, doc)
	if errors.Is(err, documents.ErrSuperseded) {
		logger.Info("document changed during embedding, discarding result")
		return Cancelled(reasonSuperseded), nil
	}
	if err != nil {
		return Result{}, h.deps.fail(ctx, doc, err)
	}
	logger.Info("document embedded", "chunks", processed.ChunkCount)

	if !h.deps.Profiling || !kb.ProfilingEnabled {
		return Success(nil), nil
	}
	next, err := h.deps.router().EnqueueJob(ctx, h.deps.Backend, workload.KindProfiling, workload.ProfilingPayload{
		DocumentID:      processed.ID,
		KnowledgeBaseID: processed.KnowledgeBaseID,
		ContentHash:     processed.ContentHash,
	}.Payload())
	if err != nil {
		// The document is usable without a profile.
		logger.Warn("failed to enqueue profiling", "err", err)
		return Success(nil), nil
	}
	return Success(next), nil
}
