package reembed

import (
	"context"

	"github.com/poiesic/docflow/core"
)

// DefaultBatchSize is the number of documents handed to the callback at once.
const DefaultBatchSize = 100

// forEachBatch calls fn with consecutive slices of docs of at most size
// elements, checking ctx between batches.
func forEachBatch(ctx context.Context, docs []*core.Document, size int, fn func([]*core.Document) error) error {
	if size <= 0 {
		size = DefaultBatchSize
	}
	for start := 0; start < len(docs); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(docs))
		if err := fn(docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}
