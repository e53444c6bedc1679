package ingestion

import "errors"

var (
	// ErrKnowledgeBaseRepositoryRequired is returned when a knowledge base repository is not provided.
	ErrKnowledgeBaseRepositoryRequired = errors.New("knowledge base repository required")

	// ErrDocumentServiceRequired is returned when a document service is not provided.
	ErrDocumentServiceRequired = errors.New("document service required")

	// ErrStagingStoreRequired is returned when a staging store is not provided.
	ErrStagingStoreRequired = errors.New("staging store required")

	// ErrQueueBackendRequired is returned when a queue backend is not provided.
	ErrQueueBackendRequired = errors.New("queue backend required")

	// ErrKnowledgeBaseNotFound is returned when the target knowledge base does not exist.
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")

	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid ingestion request")
)
