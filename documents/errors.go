package documents

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrNoContent is returned when a document has no text to chunk.
	ErrNoContent = errors.New("document has no content")

	// ErrVectorMismatch is returned when the embedder returns the wrong number of vectors.
	ErrVectorMismatch = errors.New("embedder returned unexpected vector count")

	// ErrSuperseded is returned when the stored document was re-ingested or
	// deleted while its chunks were being embedded.
	ErrSuperseded = errors.New("document superseded during processing")
)
