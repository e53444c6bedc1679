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


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/workload"
)

// Option configures a Reembedder.
type Option func(*Reembedder) error

// WithBatchSize sets how many documents are processed between context checks.
func WithBatchSize(n int) Option {
	return func(r *Reembedder) error {
		if n <= 0 {
			return ErrInvalidBatchSize
		}
		r.batchSize = n
		return nil
	}
}

// WithProgress writes a status line to w every interval documents.
func WithProgress(w io.Writer, interval int) Option {
	return func(r *Reembedder) error {
		r.progress = w
		r.reportEvery = interval
		return nil
	}
}

// WithIncludeFailed also re-embeds documents in ERROR that already have text.
func WithIncludeFailed(include bool) Option {
	return func(r *Reembedder) error {
		r.includeFailed = include
		return nil
	}
}

// WithRouter sets the router used to build embed jobs.
func WithRouter(router *workload.Router) Option {
	return func(r *Reembedder) error {
		if router == nil {
			return errors.New("router cannot be nil")
		}
		r.router = router
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// Summary reports what a run did.
type Summary struct {
	Total   int
	Queued  int
	Skipped int
	Failed  int
}

// Reembedder sends the documents of a knowledge base back through the embed stage.
type Reembedder struct {
	docs          storage.DocumentRepository
	backend       queue.Backend
	router        *workload.Router
	logger        *slog.Logger
	batchSize     int
	progress      io.Writer
	reportEvery   int
	includeFailed bool
}

// New creates a Reembedder.
func New(docs storage.DocumentRepository, backend queue.Backend, opts ...Option) (*Reembedder, error) {
	if docs == nil {
		return nil, errors.New("document repository cannot be nil")
	}
	if backend == nil {
		return nil, errors.New("queue backend cannot be nil")
	}
	r := &Reembedder{
		docs:        docs,
		backend:     backend,
		router:      workload.Default(),
		logger:      slog.Default(),
		batchSize:   DefaultBatchSize,
		reportEvery: DefaultBatchSize,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "reembed")
	return r, nil
}

// eligible reports whether doc has text and is not already moving through
// the pipeline.
func (r *Reembedder) eligible(doc *core.Document) bool {
	if doc.Content == "" {
		return false
	}
	switch doc.Status {
	case core.StatusProcessed:
		return true
	case core.StatusError:
		return r.includeFailed
	}
	return false
}

// Run enqueues an embed job for every eligible document of knowledgeBaseID.
// Per-document failures are counted and joined into the returned error
// without stopping the run.
func (r *Reembedder) Run(ctx context.Context, knowledgeBaseID string) (*Summary, error) {
	if knowledgeBaseID == "" {
		return nil, ErrKnowledgeBaseRequired
	}
	docs, err := r.docs.ListDocuments(ctx, knowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	summary := &Summary{Total: len(docs)}
	progress := NewProgress(r.progress, len(docs), r.reportEvery)
	progress.Start()

	var errs []error
	err = forEachBatch(ctx, docs, r.batchSize, func(batch []*core.Document) error {
		for _, doc := range batch {
			if !r.eligible(doc) {
				summary.Skipped++
				progress.Skipped()
				continue
			}
			if err := r.requeue(ctx, doc); err != nil {
				r.logger.Warn("failed to requeue document", "document_id", doc.ID, "err", err)
				errs = append(errs, fmt.Errorf("document %s: %w", doc.ID, err))
				summary.Failed++
				progress.Failed()
				continue
			}
			summary.Queued++
			progress.Queued()
		}
		return nil
	})
	progress.Finish()
	if err != nil {
		return summary, err
	}

	r.logger.Info("reembed complete",
		"knowledge_base_id", knowledgeBaseID,
		"queued", summary.Queued,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"elapsed", progress.Elapsed())
	return summary, errors.Join(errs...)
}

func (r *Reembedder) requeue(ctx context.Context, doc *core.Document) error {
	payload := workload.EmbedPayload{
		DocumentID:      doc.ID,
		KnowledgeBaseID: doc.KnowledgeBaseID,
		ContentHash:     doc.ContentHash,
	}.Payload()
	job, err := r.router.NewJob(workload.KindEmbed, payload)
	if err != nil {
		return err
	}

	prevStatus, prevJob := doc.Status, doc.LastJobID
	prevKind, prevMsg := doc.FailureKind, doc.ProcessingError
	doc.Status = core.StatusEmbedding
	doc.LastJobID = job.ID
	doc.ClearError()
	if _, err := r.docs.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	if err := r.backend.Enqueue(ctx, job); err != nil {
		doc.Status, doc.LastJobID = prevStatus, prevJob
		doc.FailureKind, doc.ProcessingError = prevKind, prevMsg
		if _, rerr := r.docs.UpdateDocument(context.WithoutCancel(ctx), doc); rerr != nil {
			return errors.Join(fmt.Errorf("failed to enqueue embed job: %w", err), rerr)
		}
		return fmt.Errorf("failed to enqueue embed job: %w", err)
	}
	return nil
}
