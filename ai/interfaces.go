package ai

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in one request.
	// The returned slice is in the same order as texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Profiler produces a semantic profile of a document.
// Implementations must be safe for concurrent use.
type Profiler interface {
	// ProfileDocument summarizes text and lists its main topics.
	// title may be empty.
	ProfileDocument(ctx context.Context, title, text string) (*DocumentProfile, error)
}

// AIProvider aggregates the AI services sharing one configuration.
type AIProvider interface {
	Embedder() Embedder
	Profiler() Profiler

	// Close releases resources held by the provider and its services.
	Close() error
}
