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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/documents"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/workload"
)

const (
	stageIngest = "ingest"

	contentTypeKey = "content_type"
	defaultMime    = "application/octet-stream"
)

// Service implements the ingestion operations.
type Service struct {
	kbs       storage.KnowledgeBaseRepository
	docs      *documents.Service
	staging   storage.StagingStore
	backend   queue.Backend
	router    *workload.Router
	profiling bool
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithRouter sets the workload router used to enqueue jobs.
// Default is workload.Default().
func WithRouter(router *workload.Router) Option {
	return func(s *Service) error {
		if router == nil {
			return errors.New("router cannot be nil")
		}
		s.router = router
		return nil
	}
}

// WithProfiling enables or disables semantic profiling for documents
// processed synchronously. Knowledge bases must also opt in.
// Default is enabled.
func WithProfiling(enabled bool) Option {
	return func(s *Service) error {
		s.profiling = enabled
		return nil
	}
}

// NewService creates an ingestion service.
func NewService(
	kbs storage.KnowledgeBaseRepository,
	docs *documents.Service,
	staging storage.StagingStore,
	backend queue.Backend,
	opts ...Option,
) (*Service, error) {
	if kbs == nil {
		return nil, ErrKnowledgeBaseRepositoryRequired
	}
	if docs == nil {
		return nil, ErrDocumentServiceRequired
	}
	if staging == nil {
		return nil, ErrStagingStoreRequired
	}
	if backend == nil {
		return nil, ErrQueueBackendRequired
	}

	s := &Service{
		kbs:       kbs,
		docs:      docs,
		staging:   staging,
		backend:   backend,
		router:    workload.Default(),
		profiling: true,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "ingestion")
	return s, nil
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func (s *Service) knowledgeBase(ctx context.Context, id string) (*core.KnowledgeBase, error) {
	kb, err := s.kbs.GetKnowledgeBase(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrKnowledgeBaseNotFound, id)
	}
	return kb, err
}

// target describes the document row an ingestion call wants to end up with.
type target struct {
	kbID        string
	sourceID    string
	title       string
	filename    string
	mimeType    string
	content     string
	contentHash string
	sourceHash  string
	metadata    map[string]string
	status      core.ProcessingStatus
	force       bool
}

// prepare loads the existing document for t and applies the skip rule. When
// work is needed it commits the document in t.status and returns it; when
// the call is a no-op it returns the existing document and skipped=true.
func (s *Service) prepare(ctx context.Context, t *target) (*core.Document, bool, error) {
	// A concurrent call for the same source may win the insert. One reload
	// is enough to see its row.
	for attempt := 0; ; attempt++ {
		existing, err := s.docs.FindBySource(ctx, t.kbID, t.sourceID)
		if err != nil {
			return nil, false, err
		}
		if checkSkip(existing, t.contentHash, t.sourceHash, t.force, s.abandoned(existing)) {
			s.logger.Debug("skipping unchanged document",
				"document_id", existing.ID, "status", existing.Status)
			return existing, true, nil
		}

		doc := existing
		if doc == nil {
			doc = &core.Document{ID: core.NewID(), KnowledgeBaseID: t.kbID, SourceID: t.sourceID}
		}
		doc.Title = t.title
		doc.Filename = t.filename
		doc.MimeType = t.mimeType
		doc.Content = t.content
		doc.ContentHash = t.contentHash
		doc.SourceHash = t.sourceHash
		doc.Metadata = t.metadata
		doc.Status = t.status
		doc.WordCount, doc.CharacterCount, doc.ChunkCount = 0, 0, 0
		doc.ClearError()

		if existing != nil {
			saved, err := s.docs.Save(ctx, doc)
			return saved, false, err
		}
		created, err := s.docs.CreateDocument(ctx, doc)
		if errors.Is(err, storage.ErrDuplicateKey) && attempt == 0 && t.sourceID != "" {
			continue
		}
		return created, false, err
	}
}

// abandoned reports whether an in-flight doc has gone unchanged for longer
// than every delivery its stage's job could get.
func (s *Service) abandoned(doc *core.Document) bool {
	if doc == nil || doc.Status.IsTerminal() || doc.UpdatedAt.IsZero() {
		return false
	}
	kind := workload.KindOCR
	if doc.Status == core.StatusEmbedding {
		kind = workload.KindEmbed
	}
	route, err := s.router.Route(kind)
	if err != nil {
		return false
	}
	window := route.Policy.VisibilityTimeout * time.Duration(route.Policy.MaxAttempts)
	return s.now().Sub(doc.UpdatedAt) > window
}

// enqueue records the job id on the document before making the job visible,
// so a worker never observes a row older than its job.
func (s *Service) enqueue(ctx context.Context, doc *core.Document, kind workload.Kind, payload *queue.Payload) (*queue.Job, error) {
	job, err := s.router.NewJob(kind, payload)
	if err != nil {
		return nil, err
	}
	doc.LastJobID = job.ID
	if _, err := s.docs.Save(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.backend.Enqueue(ctx, job); err != nil {
		return nil, s.fail(ctx, doc, core.Transient(stageIngest,
			fmt.Errorf("failed to enqueue %s job: %w", kind, err)))
	}
	return job, nil
}

// fail marks doc as ERROR with cause, commits it and returns cause.
func (s *Service) fail(ctx context.Context, doc *core.Document, cause error) error {
	if err := s.docs.MarkFailed(ctx, doc, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// IngestDocument stages a file and enqueues text extraction. It returns
// without waiting for extraction.
func (s *Service) IngestDocument(ctx context.Context, req *DocumentRequest) (*Result, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if _, err := s.knowledgeBase(ctx, req.KnowledgeBaseID); err != nil {
		return nil, err
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(req.Filename))
	}
	if mimeType == "" {
		mimeType = defaultMime
	}
	title := req.Title
	if title == "" {
		title = req.Filename
	}

	doc, skipped, err := s.prepare(ctx, &target{
		kbID:        req.KnowledgeBaseID,
		sourceID:    req.SourceID,
		title:       title,
		filename:    req.Filename,
		mimeType:    mimeType,
		contentHash: core.ContentHash(req.Data),
		sourceHash:  req.SourceHash,
		metadata:    mergeMetadata(req.Metadata),
		status:      core.StatusPending,
		force:       req.ForceReingest,
	})
	if err != nil {
		return nil, err
	}
	if skipped {
		return &Result{DocumentID: doc.ID, Status: doc.Status, Skipped: true}, nil
	}

	key, err := s.staging.StageFile(ctx, req.Data, req.Filename)
	if err != nil {
		return nil, s.fail(ctx, doc, core.Transient(stageIngest, fmt.Errorf("failed to stage file: %w", err)))
	}

	job, err := s.enqueue(ctx, doc, workload.KindOCR, workload.OCRPayload{
		DocumentID:      doc.ID,
		KnowledgeBaseID: doc.KnowledgeBaseID,
		StagingKey:      key,
		Filename:        req.Filename,
		MimeType:        mimeType,
		ContentHash:     doc.ContentHash,
	}.Payload())
	if err != nil {
		if derr := s.staging.DeleteStagedFile(ctx, key); derr != nil {
			s.logger.Warn("failed to delete staged file", "staging_key", key, "err", derr)
		}
		return nil, err
	}

	s.logger.Info("document queued for extraction",
		"document_id", doc.ID, "job_id", job.ID, "bytes", len(req.Data))
	return &Result{DocumentID: doc.ID, Status: doc.Status, JobID: job.ID}, nil
}

// IngestText stores text and enqueues embedding.
func (s *Service) IngestText(ctx context.Context, req *TextRequest) (*Result, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.ingestText(ctx, &target{
		kbID:       req.KnowledgeBaseID,
		sourceID:   req.SourceID,
		title:      req.Title,
		mimeType:   "text/plain",
		content:    req.Content,
		sourceHash: req.SourceHash,
		metadata:   mergeMetadata(req.Metadata, contentTypeKey, "text"),
		force:      req.ForceReingest,
	})
}

// IngestThread renders a conversation to text and enqueues embedding.
func (s *Service) IngestThread(ctx context.Context, req *ThreadRequest) (*Result, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.ingestText(ctx, &target{
		kbID:       req.KnowledgeBaseID,
		sourceID:   req.SourceID,
		title:      req.Title,
		mimeType:   "text/plain",
		content:    renderThread(req.Messages),
		sourceHash: req.SourceHash,
		metadata: mergeMetadata(req.Metadata, contentTypeKey, "thread",
			"message_count", fmt.Sprint(len(req.Messages))),
		force: req.ForceReingest,
	})
}

func (s *Service) ingestText(ctx context.Context, t *target) (*Result, error) {
	if _, err := s.knowledgeBase(ctx, t.kbID); err != nil {
		return nil, err
	}
	t.contentHash = core.ContentHash([]byte(t.content))
	t.status = core.StatusEmbedding

	doc, skipped, err := s.prepare(ctx, t)
	if err != nil {
		return nil, err
	}
	if skipped {
		return &Result{DocumentID: doc.ID, Status: doc.Status, Skipped: true}, nil
	}

	job, err := s.enqueue(ctx, doc, workload.KindEmbed, workload.EmbedPayload{
		DocumentID:      doc.ID,
		KnowledgeBaseID: doc.KnowledgeBaseID,
		ContentHash:     doc.ContentHash,
	}.Payload())
	if err != nil {
		return nil, err
	}

	s.logger.Info("document queued for embedding",
		"document_id", doc.ID, "job_id", job.ID, "characters", len(t.content))
	return &Result{DocumentID: doc.ID, Status: doc.Status, JobID: job.ID}, nil
}

// IngestEmail chunks and embeds an email before returning. A chunking
// failure is committed on the document as ERROR and then returned.
func (s *Service) IngestEmail(ctx context.Context, req *EmailRequest) (*Result, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	kb, err := s.knowledgeBase(ctx, req.KnowledgeBaseID)
	if err != nil {
		return nil, err
	}

	content := renderEmail(req)
	doc, skipped, err := s.prepare(ctx, &target{
		kbID:        req.KnowledgeBaseID,
		sourceID:    req.SourceID,
		title:       req.Subject,
		mimeType:    "message/rfc822",
		content:     content,
		contentHash: core.ContentHash([]byte(content)),
		sourceHash:  req.SourceHash,
		metadata:    mergeMetadata(req.Metadata, contentTypeKey, "email", "sender", req.Sender),
		status:      core.StatusEmbedding,
		force:       req.ForceReingest,
	})
	if err != nil {
		return nil, err
	}
	if skipped {
		return &Result{DocumentID: doc.ID, Status: doc.Status, Skipped: true}, nil
	}

	processed, err := s.docs.ProcessAndUpdateChunks(ctx, doc)
	if errors.Is(err, documents.ErrSuperseded) {
		// A concurrent call owns the row now.
		return nil, err
	}
	if err != nil {
		return nil, s.fail(ctx, doc, err)
	}

	result := &Result{DocumentID: processed.ID, Status: processed.Status}
	if s.profiling && kb.ProfilingEnabled {
		job, err := s.enqueueProfiling(ctx, processed)
		if err != nil {
			// Profiling is optional; the document stays PROCESSED.
			s.logger.Warn("failed to enqueue profiling", "document_id", processed.ID, "err", err)
		} else {
			result.JobID = job.ID
		}
	}
	return result, nil
}

func (s *Service) enqueueProfiling(ctx context.Context, doc *core.Document) (*queue.Job, error) {
	return s.router.EnqueueJob(ctx, s.backend, workload.KindProfiling, workload.ProfilingPayload{
		DocumentID:      doc.ID,
		KnowledgeBaseID: doc.KnowledgeBaseID,
		ContentHash:     doc.ContentHash,
	}.Payload())
}
