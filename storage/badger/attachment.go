package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// AttachmentRepository implements storage.AttachmentRepository for BadgerDB.
type AttachmentRepository struct {
	backend *Backend
}

var _ storage.AttachmentRepository = (*AttachmentRepository)(nil)

// NewAttachmentRepository creates a new AttachmentRepository.
func NewAttachmentRepository(backend *Backend) storage.AttachmentRepository {
	return &AttachmentRepository{backend: backend}
}

// AddAttachment stores an attachment and indexes it by expiry.
func (r *AttachmentRepository) AddAttachment(ctx context.Context, att *core.Attachment) (*core.Attachment, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if att.ID == "" {
			att.ID = core.NewID()
		}
		att.CreatedAt = utcNow()
		if err := tx.Set(makeAttachmentKey(att.ID), storage.MarshalAttachment(att)); err != nil {
			return err
		}
		if err := tx.Set(makeTimeIndexKey(attachmentExpiryPfx, att.ExpiresAt, att.ID), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return att, nil
}

// GetAttachment retrieves an attachment by ID.
func (r *AttachmentRepository) GetAttachment(ctx context.Context, id string) (*core.Attachment, error) {
	var result *core.Attachment
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeAttachmentKey(id), storage.UnmarshalAttachment)
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

// ListExpiredAttachments walks the expiry index up to now.
func (r *AttachmentRepository) ListExpiredAttachments(ctx context.Context, now time.Time, limit int) ([]*core.Attachment, error) {
	var results []*core.Attachment
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range scanTimeIndex(tx, attachmentExpiryPfx, now, limit) {
			att, err := readRecord(tx, makeAttachmentKey(id), storage.UnmarshalAttachment)
			if err != nil {
				return err
			}
			if att != nil {
				results = append(results, att)
			}
		}
		return nil
	}, false)
	return results, err
}

// DeleteAttachment removes an attachment and its expiry index entry.
func (r *AttachmentRepository) DeleteAttachment(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeAttachmentKey(id)
		att, err := readRecord(tx, key, storage.UnmarshalAttachment)
		if err != nil {
			return err
		}
		if att == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(makeTimeIndexKey(attachmentExpiryPfx, att.ExpiresAt, att.ID)); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
