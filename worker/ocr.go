package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/extract"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/workload"
)

const stageOCR = "ocr"

// OCRHandler extracts text from staged bytes and chains to embedding.
type OCRHandler struct {
	deps      Deps
	extractor extract.TextExtractor
	logger    *slog.Logger
}

var _ Handler = (*OCRHandler)(nil)

func NewOCRHandler(deps Deps, extractor extract.TextExtractor) *OCRHandler {
	return &OCRHandler{deps: deps, extractor: extractor, logger: deps.logger(stageOCR)}
}

func (h *OCRHandler) Handle(ctx context.Context, job *queue.Job) (Result, error) {
	p, err := workload.ParseOCR(job.Payload)
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
		h.deps.discardStaged(ctx, logger, p.StagingKey)
		return Cancelled(reasonKnowledgeBaseDeleted), nil
	}

	doc, err := h.deps.document(ctx, p.DocumentID)
	if err != nil {
		return Result{}, err
	}
	if doc == nil {
		logger.Info("document deleted, discarding job")
		h.deps.discardStaged(ctx, logger, p.StagingKey)
		return Cancelled(reasonDocumentDeleted), nil
	}
	if superseded(doc, p.ContentHash) {
		logger.Info("document re-ingested since job was queued, discarding job")
		h.deps.discardStaged(ctx, logger, p.StagingKey)
		return Cancelled(reasonSuperseded), nil
	}

	switch {
	case doc.Status == core.StatusProcessed:
		logger.Debug("document already processed")
		h.deps.discardStaged(ctx, logger, p.StagingKey)
		return Success(nil), nil
	case doc.Status == core.StatusEmbedding && doc.Content != "":
		// Extracted by an earlier delivery that did not finish. The staged
		// bytes may already be gone, so do not touch them.
		logger.Debug("text already extracted, re-enqueueing embedding")
		next, err := h.chainEmbed(ctx, doc)
		if err != nil {
			return Result{}, h.deps.fail(ctx, doc, err)
		}
		return Success(next), nil
	}

	doc.Status = core.StatusOCR
	if doc, err = h.deps.Documents.Save(ctx, doc); err != nil {
		return Result{}, err
	}

	data, err := h.deps.Staging.RetrieveFile(ctx, p.StagingKey)
	if err != nil {
		return Result{}, h.deps.fail(ctx, doc, core.Transient(stageOCR, fmt.Errorf("failed to retrieve staged file: %w", err)))
	}

	text, err := h.extractor.Extract(ctx, data, p.Filename, p.MimeType)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, h.deps.fail(ctx, doc, core.Transient(stageOCR, err))
		}
		return Result{}, h.deps.fail(ctx, doc, core.Deterministic(stageOCR, err))
	}

	// The row may have been re-ingested while the extractor ran.
	current, err := h.deps.document(ctx, doc.ID)
	if err != nil {
		return Result{}, err
	}
	if current == nil || current.ContentHash != doc.ContentHash {
		logger.Info("document changed during extraction, discarding result")
		h.deps.discardStaged(ctx, logger, p.StagingKey)
		return Cancelled(reasonSuperseded), nil
	}

	doc.Content = text
	doc.Status = core.StatusEmbedding
	doc.ClearError()
	next, err := h.chainEmbed(ctx, doc)
	if err != nil {
		return Result{}, h.deps.fail(ctx, doc, err)
	}

	h.deps.discardStaged(ctx, logger, p.StagingKey)
	logger.Info("text extracted", "characters", len(text), "next_job_id", next.ID)
	return Success(next), nil
}

func (h *OCRHandler) chainEmbed(ctx context.Context, doc *core.Document) (*queue.Job, error) {
	return h.deps.chain(ctx, doc, workload.KindEmbed, workload.EmbedPayload{
		DocumentID:      doc.ID,
		KnowledgeBaseID: doc.KnowledgeBaseID,
		ContentHash:     doc.ContentHash,
	}.Payload())
}
