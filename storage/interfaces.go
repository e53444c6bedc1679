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


package storage

import (
	"context"
	"time"

	"github.com/poiesic/docflow/core"
)

// KnowledgeBaseRepository provides operations for managing knowledge bases.
type KnowledgeBaseRepository interface {
	// AddKnowledgeBase stores a new knowledge base.
	// Generates an ID if empty and sets CreatedAt/UpdatedAt.
	AddKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error)

	// UpdateKnowledgeBase replaces an existing knowledge base.
	// Returns ErrNotFound if it doesn't exist.
	UpdateKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error)

	// GetKnowledgeBase retrieves a knowledge base by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetKnowledgeBase(ctx context.Context, id string) (*core.KnowledgeBase, error)

	// DeleteKnowledgeBase removes a knowledge base. Documents that reference it
	// are left in place; pipeline stages treat them as orphaned.
	// Returns ErrNotFound if it doesn't exist.
	DeleteKnowledgeBase(ctx context.Context, id string) error

	// ListKnowledgeBases returns all knowledge bases.
	ListKnowledgeBases(ctx context.Context) ([]*core.KnowledgeBase, error)
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	// AddDocument stores a new document and indexes it by source.
	// Generates an ID if empty and sets CreatedAt/UpdatedAt.
	// Returns ErrDuplicateKey if another document has the same
	// (KnowledgeBaseID, SourceID).
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// UpdateDocument replaces an existing document and commits immediately.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// FindDocumentBySource looks up a document by its source identity.
	// Returns ErrNotFound if no document matches.
	FindDocumentBySource(ctx context.Context, knowledgeBaseID, sourceID string) (*core.Document, error)

	// ListDocuments returns the documents of a knowledge base.
	ListDocuments(ctx context.Context, knowledgeBaseID string) ([]*core.Document, error)

	// DeleteDocument removes a document and its indices.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id string) error
}

// ChunkRepository provides operations for managing document chunks.
type ChunkRepository interface {
	// ReplaceChunks replaces all chunks of a document.
	ReplaceChunks(ctx context.Context, documentID string, chunks []*core.Chunk) error

	// GetChunks returns a document's chunks ordered by Position.
	GetChunks(ctx context.Context, documentID string) ([]*core.Chunk, error)

	// DeleteChunks removes all chunks of a document.
	DeleteChunks(ctx context.Context, documentID string) error
}

// StagingStore holds raw bytes between ingestion and text extraction.
// Staged files expire on their own after the store's TTL.
type StagingStore interface {
	// StageFile stores data under a fresh key and returns the key.
	StageFile(ctx context.Context, data []byte, filename string) (string, error)

	// RetrieveFile returns the bytes staged under key.
	// Returns ErrNotFound if the key is unknown or expired.
	RetrieveFile(ctx context.Context, key string) ([]byte, error)

	// DeleteStagedFile removes a staged file. Deleting a missing key is not an error.
	DeleteStagedFile(ctx context.Context, key string) error
}

// FeedRepository provides operations for connector feeds and their executions.
type FeedRepository interface {
	AddFeed(ctx context.Context, feed *core.Feed) (*core.Feed, error)

	// UpdateFeed replaces a feed and reindexes its NextRunAt.
	// Returns ErrNotFound if the feed doesn't exist.
	UpdateFeed(ctx context.Context, feed *core.Feed) (*core.Feed, error)

	GetFeed(ctx context.Context, id string) (*core.Feed, error)

	// ListDueFeeds returns up to limit enabled feeds with NextRunAt <= now,
	// earliest first.
	ListDueFeeds(ctx context.Context, now time.Time, limit int) ([]*core.Feed, error)

	AddFeedExecution(ctx context.Context, exec *core.FeedExecution) (*core.FeedExecution, error)
	UpdateFeedExecution(ctx context.Context, exec *core.FeedExecution) (*core.FeedExecution, error)
	GetFeedExecution(ctx context.Context, id string) (*core.FeedExecution, error)

	// ListFeedExecutions returns every execution of a feed, oldest first.
	ListFeedExecutions(ctx context.Context, feedID string) ([]*core.FeedExecution, error)

	// ListActiveFeedExecutions returns executions in PENDING or RUNNING.
	ListActiveFeedExecutions(ctx context.Context) ([]*core.FeedExecution, error)
}

// ExperienceRepository provides operations for experiences and their runs.
type ExperienceRepository interface {
	AddExperience(ctx context.Context, exp *core.Experience) (*core.Experience, error)

	// UpdateExperience replaces an experience and reindexes its NextRunAt.
	// Returns ErrNotFound if the experience doesn't exist.
	UpdateExperience(ctx context.Context, exp *core.Experience) (*core.Experience, error)

	GetExperience(ctx context.Context, id string) (*core.Experience, error)

	// ListDueExperiences returns up to limit enabled experiences with
	// NextRunAt <= now, earliest first.
	ListDueExperiences(ctx context.Context, now time.Time, limit int) ([]*core.Experience, error)

	AddExperienceRun(ctx context.Context, run *core.ExperienceRun) (*core.ExperienceRun, error)
	UpdateExperienceRun(ctx context.Context, run *core.ExperienceRun) (*core.ExperienceRun, error)
	GetExperienceRun(ctx context.Context, id string) (*core.ExperienceRun, error)

	// ListExperienceRuns returns every run of an experience, oldest first.
	ListExperienceRuns(ctx context.Context, experienceID string) ([]*core.ExperienceRun, error)

	// ListActiveExperienceRuns returns runs in PENDING or RUNNING.
	ListActiveExperienceRuns(ctx context.Context) ([]*core.ExperienceRun, error)
}

// UserRepository provides operations for users and their external identities.
type UserRepository interface {
	AddUser(ctx context.Context, user *core.User) (*core.User, error)
	GetUser(ctx context.Context, id string) (*core.User, error)

	// SetUserActive toggles whether the user receives experience runs.
	SetUserActive(ctx context.Context, id string, active bool) error

	// ListActiveUsers returns all active users.
	ListActiveUsers(ctx context.Context) ([]*core.User, error)

	// EnsureIdentity returns the identity for (provider, subject), creating it
	// and its user on first call. Repeated calls never create duplicates.
	EnsureIdentity(ctx context.Context, provider, subject, email string) (*core.Identity, error)

	// FindIdentity returns ErrNotFound if no identity matches.
	FindIdentity(ctx context.Context, provider, subject string) (*core.Identity, error)

	ListIdentities(ctx context.Context) ([]*core.Identity, error)
}

// AttachmentRepository provides operations for uploaded attachments.
type AttachmentRepository interface {
	AddAttachment(ctx context.Context, att *core.Attachment) (*core.Attachment, error)
	GetAttachment(ctx context.Context, id string) (*core.Attachment, error)

	// ListExpiredAttachments returns up to limit attachments with ExpiresAt <= now.
	ListExpiredAttachments(ctx context.Context, now time.Time, limit int) ([]*core.Attachment, error)

	// DeleteAttachment returns ErrNotFound if the attachment doesn't exist.
	DeleteAttachment(ctx context.Context, id string) error
}
