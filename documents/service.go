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


package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/retry"
	"github.com/poiesic/docflow/storage"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 100
	defaultBatchSize    = 32

	// StageEmbed is the failure stage recorded for chunking and embedding errors.
	StageEmbed = "embed"
)

// Service creates documents and maintains their chunks.
type Service struct {
	docs      storage.DocumentRepository
	chunks    storage.ChunkRepository
	embedder  ai.Embedder
	splitter  textsplitter.TextSplitter
	batchSize int
	policy    retry.Policy
	logger    *slog.Logger
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

// WithChunking sets the recursive character splitter's chunk size and overlap.
// Default is 1000 characters with 100 characters of overlap.
func WithChunking(size, overlap int) Option {
	return func(s *Service) error {
		if size < 1 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		if overlap < 0 || overlap >= size {
			return fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
		}
		s.splitter = textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		)
		return nil
	}
}

// WithSplitter replaces the text splitter entirely.
func WithSplitter(splitter textsplitter.TextSplitter) Option {
	return func(s *Service) error {
		if splitter == nil {
			return errors.New("splitter cannot be nil")
		}
		s.splitter = splitter
		return nil
	}
}

// WithEmbedBatchSize sets how many chunks are embedded per request.
// Default is 32.
func WithEmbedBatchSize(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			return fmt.Errorf("embed batch size must be positive, got %d", n)
		}
		s.batchSize = n
		return nil
	}
}

// WithRetryPolicy sets the backoff used around embedder calls.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(s *Service) error {
		if policy.MaxAttempts < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		s.policy = policy
		return nil
	}
}

// NewService creates a document service.
func NewService(docs storage.DocumentRepository, chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Service, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Service{
		docs:     docs,
		chunks:   chunks,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(defaultChunkSize),
			textsplitter.WithChunkOverlap(defaultChunkOverlap),
		),
		batchSize: defaultBatchSize,
		policy:    retry.DefaultPolicy,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "documents")
	return s, nil
}

// Repository returns the underlying document repository.
func (s *Service) Repository() storage.DocumentRepository {
	return s.docs
}

// CreateDocument stores a new document, computing its content hash from
// Content when the caller did not supply one.
func (s *Service) CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc.ContentHash == "" && doc.Content != "" {
		doc.ContentHash = core.ContentHash([]byte(doc.Content))
	}
	if doc.Status == "" {
		doc.Status = core.StatusPending
	}
	return s.docs.AddDocument(ctx, doc)
}

// FindBySource returns the document with the given source identity, or nil
// when there is none.
func (s *Service) FindBySource(ctx context.Context, knowledgeBaseID, sourceID string) (*core.Document, error) {
	if sourceID == "" {
		return nil, nil
	}
	doc, err := s.docs.FindDocumentBySource(ctx, knowledgeBaseID, sourceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// Save commits doc as is.
func (s *Service) Save(ctx context.Context, doc *core.Document) (*core.Document, error) {
	return s.docs.UpdateDocument(ctx, doc)
}

// MarkFailed records cause on the document as an ERROR and commits it.
// The failure kind comes from core.ClassifyFailure.
func (s *Service) MarkFailed(ctx context.Context, doc *core.Document, cause error) error {
	doc.MarkError(core.ClassifyFailure(cause), cause.Error())
	if _, err := s.docs.UpdateDocument(ctx, doc); err != nil {
		s.logger.Error("failed to record document error",
			"document_id", doc.ID, "cause", cause, "err", err)
		return err
	}
	s.logger.Warn("document marked as error",
		"document_id", doc.ID, "failure_kind", doc.FailureKind, "err", cause)
	return nil
}

// ProcessAndUpdateChunks splits the document's content, embeds every chunk,
// replaces the stored chunks, and commits the counts with status PROCESSED.
//
// Errors are classified: empty content is deterministic, embedder and
// storage failures are transient. The document itself is not marked as
// failed; callers decide how to record the error.
func (s *Service) ProcessAndUpdateChunks(ctx context.Context, doc *core.Document) (*core.Document, error) {
	text := strings.TrimSpace(doc.Content)
	if text == "" {
		return nil, core.Deterministic(StageEmbed, ErrNoContent)
	}

	pieces, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, core.Deterministic(StageEmbed, fmt.Errorf("failed to split text: %w", err))
	}
	pieces = compact(pieces)
	if len(pieces) == 0 {
		return nil, core.Deterministic(StageEmbed, ErrNoContent)
	}

	now := time.Now().UTC()
	chunks := make([]*core.Chunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += s.batchSize {
		end := min(start+s.batchSize, len(pieces))
		batch := pieces[start:end]

		vectors, err := retry.Value(ctx, s.policy, func(ctx context.Context) ([][]float32, error) {
			return s.embedder.EmbedTexts(ctx, batch)
		})
		if err != nil {
			return nil, core.Transient(StageEmbed, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err))
		}
		if len(vectors) != len(batch) {
			return nil, core.Transient(StageEmbed, fmt.Errorf("%w: %d for %d chunks", ErrVectorMismatch, len(vectors), len(batch)))
		}

		for i, content := range batch {
			chunks = append(chunks, &core.Chunk{
				DocumentID: doc.ID,
				Position:   start + i,
				Content:    content,
				Vector:     vectors[i],
				CreatedAt:  now,
			})
		}
	}

	if err := s.checkCurrent(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.chunks.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return nil, core.Transient(StageEmbed, fmt.Errorf("failed to store chunks: %w", err))
	}

	doc.WordCount = len(strings.Fields(text))
	doc.CharacterCount = utf8.RuneCountInString(text)
	doc.ChunkCount = len(chunks)
	doc.Status = core.StatusProcessed
	doc.ClearError()

	updated, err := s.docs.UpdateDocument(ctx, doc)
	if err != nil {
		return nil, core.Transient(StageEmbed, fmt.Errorf("failed to update document: %w", err))
	}
	s.logger.Debug("document chunks updated",
		"document_id", doc.ID,
		"chunks", updated.ChunkCount,
		"words", updated.WordCount)
	return updated, nil
}

// checkCurrent fails with ErrSuperseded unless the stored row still holds
// the content doc was loaded with.
func (s *Service) checkCurrent(ctx context.Context, doc *core.Document) error {
	current, err := s.docs.GetDocument(ctx, doc.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrSuperseded
	}
	if err != nil {
		return core.Transient(StageEmbed, fmt.Errorf("failed to reload document: %w", err))
	}
	if current.ContentHash != doc.ContentHash {
		return ErrSuperseded
	}
	return nil
}

func compact(pieces []string) []string {
	out := pieces[:0]
	for _, p := range pieces {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
