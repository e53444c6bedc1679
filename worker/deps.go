package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/documents"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/workload"
)

const (
	reasonKnowledgeBaseDeleted = "knowledge base deleted"
	reasonDocumentDeleted      = "document deleted"
	reasonSuperseded           = "superseded by a newer ingestion"
)

// superseded reports whether a job queued for hash belongs to an earlier
// ingestion of doc. Jobs that carry no hash match every generation.
func superseded(doc *core.Document, hash string) bool {
	return hash != "" && doc.ContentHash != hash
}

// Deps are the collaborators shared by the document stage handlers.
type Deps struct {
	KnowledgeBases storage.KnowledgeBaseRepository
	Documents      *documents.Service
	Staging        storage.StagingStore
	Backend        queue.Backend
	Router         *workload.Router // Defaults to workload.Default()
	Logger         *slog.Logger     // Defaults to slog.Default()

	// Profiling enables profiling jobs after embedding for knowledge bases
	// that opt in.
	Profiling bool
}

func (d Deps) router() *workload.Router {
	if d.Router == nil {
		return workload.Default()
	}
	return d.Router
}

func (d Deps) logger(handler string) *slog.Logger {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "worker", "handler", handler)
}

// knowledgeBase loads the owning knowledge base. A nil result with a nil
// error means it no longer exists.
func (d Deps) knowledgeBase(ctx context.Context, id string) (*core.KnowledgeBase, error) {
	kb, err := d.KnowledgeBases.GetKnowledgeBase(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return kb, err
}

func (d Deps) document(ctx context.Context, id string) (*core.Document, error) {
	doc, err := d.Documents.Repository().GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// discardStaged deletes a staged file, logging and ignoring failure. The
// blob's TTL removes it eventually either way.
func (d Deps) discardStaged(ctx context.Context, logger *slog.Logger, key string) {
	if key == "" || d.Staging == nil {
		return
	}
	if err := d.Staging.DeleteStagedFile(ctx, key); err != nil {
		logger.Warn("failed to delete staged file", "staging_key", key, "err", err)
	}
}

// fail commits cause on doc and returns it for the queue to retry.
func (d Deps) fail(ctx context.Context, doc *core.Document, cause error) error {
	if err := d.Documents.MarkFailed(ctx, doc, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// chain saves doc with the id of the next job, then enqueues it.
func (d Deps) chain(ctx context.Context, doc *core.Document, kind workload.Kind, payload *queue.Payload) (*queue.Job, error) {
	job, err := d.router().NewJob(kind, payload)
	if err != nil {
		return nil, err
	}
	doc.LastJobID = job.ID
	if _, err := d.Documents.Save(ctx, doc); err != nil {
		return nil, core.Transient(string(kind), fmt.Errorf("failed to update document: %w", err))
	}
	if err := d.Backend.Enqueue(ctx, job); err != nil {
		return nil, core.Transient(string(kind), fmt.Errorf("failed to enqueue %s job: %w", kind, err))
	}
	return job, nil
}
