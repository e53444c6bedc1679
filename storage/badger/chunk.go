package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) storage.ChunkRepository {
	return &ChunkRepository{backend: backend}
}

// ReplaceChunks deletes existing chunks of the document and writes chunks.
// Writes go through a WriteBatch so large documents are not limited by the
// transaction size.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []*core.Chunk) error {
	var stale [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		stale = scanKeys(tx, prefixKey(chunkPrefix, documentID))
		return nil
	}, false)
	if err != nil {
		return err
	}

	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()

	// Positions that are rewritten below don't need a delete
	for _, key := range stale[min(len(chunks), len(stale)):] {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	ts := utcNow()
	for i, chunk := range chunks {
		if chunk.ID == "" {
			chunk.ID = core.NewID()
		}
		chunk.DocumentID = documentID
		chunk.Position = i
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = ts
		}
		if err := wb.Set(makeChunkKey(documentID, i), storage.MarshalChunk(chunk)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// GetChunks returns the chunks of a document ordered by position.
func (r *ChunkRepository) GetChunks(ctx context.Context, documentID string) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = scanRecords(tx, prefixKey(chunkPrefix, documentID), storage.UnmarshalChunk)
		return err
	}, false)
	return results, err
}

// DeleteChunks removes all chunks of a document.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, documentID string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range scanKeys(tx, prefixKey(chunkPrefix, documentID)) {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}
