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


package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) storage.DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// AddDocument stores a new document and its indices.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if doc.ID == "" {
			doc.ID = core.NewID()
		}
		key := makeDocumentKey(doc.ID)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if doc.SourceID != "" {
			sourceKey := makeDocumentSourceKey(doc.KnowledgeBaseID, doc.SourceID)
			if _, err := tx.Get(sourceKey); err == nil {
				return storage.ErrDuplicateKey
			} else if err != badger.ErrKeyNotFound {
				return err
			}
			if err := tx.Set(sourceKey, []byte(doc.ID)); err != nil {
				return err
			}
		}

		doc.CreatedAt = utcNow()
		doc.UpdatedAt = doc.CreatedAt
		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}
		if err := tx.Set(makeDocumentKBKey(doc.KnowledgeBaseID, doc.ID), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocument replaces an existing document, moving its indices when the
// knowledge base or source changes.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)

		// Read old document to detect index changes
		old, err := readRecord(tx, key, storage.UnmarshalDocument)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		if old.KnowledgeBaseID != doc.KnowledgeBaseID || old.SourceID != doc.SourceID {
			if old.SourceID != "" {
				if err := tx.Delete(makeDocumentSourceKey(old.KnowledgeBaseID, old.SourceID)); err != nil {
					return err
				}
			}
			if err := tx.Delete(makeDocumentKBKey(old.KnowledgeBaseID, old.ID)); err != nil {
				return err
			}
			if doc.SourceID != "" {
				if err := tx.Set(makeDocumentSourceKey(doc.KnowledgeBaseID, doc.SourceID), []byte(doc.ID)); err != nil {
					return err
				}
			}
			if err := tx.Set(makeDocumentKBKey(doc.KnowledgeBaseID, doc.ID), nil); err != nil {
				return err
			}
		}

		doc.CreatedAt = old.CreatedAt
		doc.UpdatedAt = utcNow()
		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeDocumentKey(id), storage.UnmarshalDocument)
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

// FindDocumentBySource looks up a document through the source index.
func (r *DocumentRepository) FindDocumentBySource(ctx context.Context, knowledgeBaseID, sourceID string) (*core.Document, error) {
	if sourceID == "" {
		return nil, storage.ErrNotFound
	}
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentSourceKey(knowledgeBaseID, sourceID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		result, err = readRecord(tx, makeDocumentKey(string(id)), storage.UnmarshalDocument)
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

// ListDocuments returns the documents of a knowledge base.
func (r *DocumentRepository) ListDocuments(ctx context.Context, knowledgeBaseID string) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := prefixKey(documentKBPrefix, knowledgeBaseID)
		for _, key := range scanKeys(tx, prefix) {
			id := string(key[len(prefix):])
			doc, err := readRecord(tx, makeDocumentKey(id), storage.UnmarshalDocument)
			if err != nil {
				return err
			}
			if doc != nil {
				results = append(results, doc)
			}
		}
		return nil
	}, false)
	return results, err
}

// DeleteDocument removes a document, its indices and its chunks.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := readRecord(tx, key, storage.UnmarshalDocument)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		if doc.SourceID != "" {
			if err := tx.Delete(makeDocumentSourceKey(doc.KnowledgeBaseID, doc.SourceID)); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeDocumentKBKey(doc.KnowledgeBaseID, doc.ID)); err != nil {
			return err
		}
		for _, chunkKey := range scanKeys(tx, prefixKey(chunkPrefix, doc.ID)) {
			if err := tx.Delete(chunkKey); err != nil {
				return err
			}
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
