package reembed

import "errors"

var (
	// ErrKnowledgeBaseRequired is returned when Run is called without a knowledge base ID.
	ErrKnowledgeBaseRequired = errors.New("knowledge base ID is required")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")
)
