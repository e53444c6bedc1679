package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// KnowledgeBaseRepository implements storage.KnowledgeBaseRepository for BadgerDB.
type KnowledgeBaseRepository struct {
	backend *Backend
}

var _ storage.KnowledgeBaseRepository = (*KnowledgeBaseRepository)(nil)

// NewKnowledgeBaseRepository creates a new KnowledgeBaseRepository.
func NewKnowledgeBaseRepository(backend *Backend) storage.KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{backend: backend}
}

// AddKnowledgeBase stores a new knowledge base.
func (r *KnowledgeBaseRepository) AddKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error) {
	if err := core.ValidateKnowledgeBase(kb); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if kb.ID == "" {
			kb.ID = core.NewID()
		}
		key := makeKnowledgeBaseKey(kb.ID)
		existing, err := readRecord(tx, key, storage.UnmarshalKnowledgeBase)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		kb.CreatedAt = utcNow()
		kb.UpdatedAt = kb.CreatedAt
		if err := tx.Set(key, storage.MarshalKnowledgeBase(kb)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return kb, nil
}

// UpdateKnowledgeBase replaces an existing knowledge base.
func (r *KnowledgeBaseRepository) UpdateKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error) {
	if err := core.ValidateKnowledgeBase(kb); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeKnowledgeBaseKey(kb.ID)
		old, err := readRecord(tx, key, storage.UnmarshalKnowledgeBase)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		kb.CreatedAt = old.CreatedAt
		kb.UpdatedAt = utcNow()
		if err := tx.Set(key, storage.MarshalKnowledgeBase(kb)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return kb, nil
}

// GetKnowledgeBase retrieves a knowledge base by ID.
func (r *KnowledgeBaseRepository) GetKnowledgeBase(ctx context.Context, id string) (*core.KnowledgeBase, error) {
	var result *core.KnowledgeBase
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeKnowledgeBaseKey(id), storage.UnmarshalKnowledgeBase)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// DeleteKnowledgeBase removes a knowledge base record.
func (r *KnowledgeBaseRepository) DeleteKnowledgeBase(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeKnowledgeBaseKey(id)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListKnowledgeBases returns all knowledge bases.
func (r *KnowledgeBaseRepository) ListKnowledgeBases(ctx context.Context) ([]*core.KnowledgeBase, error) {
	var results []*core.KnowledgeBase
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = scanRecords(tx, prefixKey(knowledgeBasePrefix), storage.UnmarshalKnowledgeBase)
		return err
	}, false)
	return results, err
}
