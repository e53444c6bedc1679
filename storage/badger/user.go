package badger

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

const ensureIdentityAttempts = 5

// UserRepository implements storage.UserRepository for BadgerDB.
type UserRepository struct {
	backend *Backend
}

var _ storage.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(backend *Backend) storage.UserRepository {
	return &UserRepository{backend: backend}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func writeUser(tx *badger.Txn, user *core.User) error {
	if err := tx.Set(makeUserKey(user.ID), storage.MarshalUser(user)); err != nil {
		return err
	}
	if email := normalizeEmail(user.Email); email != "" {
		return tx.Set(makeUserEmailKey(email), []byte(user.ID))
	}
	return nil
}

// AddUser stores a new user.
func (r *UserRepository) AddUser(ctx context.Context, user *core.User) (*core.User, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if user.ID == "" {
			user.ID = core.NewID()
		}
		if email := normalizeEmail(user.Email); email != "" {
			if _, err := tx.Get(makeUserEmailKey(email)); err == nil {
				return fmt.Errorf("%w: email %s", storage.ErrDuplicateKey, email)
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}
		user.CreatedAt = utcNow()
		if err := writeUser(tx, user); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*core.User, error) {
	var result *core.User
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeUserKey(id), storage.UnmarshalUser)
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

// SetUserActive toggles the user's Active flag.
func (r *UserRepository) SetUserActive(ctx context.Context, id string, active bool) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		user, err := readRecord(tx, makeUserKey(id), storage.UnmarshalUser)
		if err != nil {
			return err
		}
		if user == nil {
			return storage.ErrNotFound
		}
		user.Active = active
		if err := tx.Set(makeUserKey(id), storage.MarshalUser(user)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListActiveUsers returns all users with Active set.
func (r *UserRepository) ListActiveUsers(ctx context.Context) ([]*core.User, error) {
	var results []*core.User
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		all, err := scanRecords(tx, prefixKey(userPrefix), storage.UnmarshalUser)
		if err != nil {
			return err
		}
		for _, user := range all {
			if user.Active {
				results = append(results, user)
			}
		}
		return nil
	}, false)
	return results, err
}

// EnsureIdentity returns the identity for (provider, subject), creating it on
// first use. A new identity is linked to the user with the same email when one
// exists; otherwise a new active user is created. Conflicting concurrent calls
// are retried, and the retry observes the identity written by the winner.
func (r *UserRepository) EnsureIdentity(ctx context.Context, provider, subject, email string) (*core.Identity, error) {
	if provider == "" || subject == "" {
		return nil, fmt.Errorf("%w: provider and subject are required", storage.ErrInvalidQuery)
	}

	var result *core.Identity
	err := r.backend.WithRetryTx(func(tx *badger.Txn) error {
		key := makeIdentityKey(provider, subject)
		existing, err := readRecord(tx, key, storage.UnmarshalIdentity)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		ts := utcNow()
		var userID string
		normalized := normalizeEmail(email)
		if normalized != "" {
			item, err := tx.Get(makeUserEmailKey(normalized))
			switch {
			case err == nil:
				id, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				userID = string(id)
			case err != badger.ErrKeyNotFound:
				return err
			}
		}
		if userID == "" {
			user := &core.User{ID: core.NewID(), Email: email, Active: true, CreatedAt: ts}
			if err := writeUser(tx, user); err != nil {
				return err
			}
			userID = user.ID
		}

		identity := &core.Identity{Provider: provider, Subject: subject, UserID: userID, CreatedAt: ts}
		if err := tx.Set(key, storage.MarshalIdentity(identity)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		result = identity
		return nil
	}, ensureIdentityAttempts)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindIdentity retrieves an identity by provider and subject.
func (r *UserRepository) FindIdentity(ctx context.Context, provider, subject string) (*core.Identity, error) {
	var result *core.Identity
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeIdentityKey(provider, subject), storage.UnmarshalIdentity)
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

// ListIdentities returns all identities.
func (r *UserRepository) ListIdentities(ctx context.Context) ([]*core.Identity, error) {
	var results []*core.Identity
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = scanRecords(tx, prefixKey(identityPrefix), storage.UnmarshalIdentity)
		return err
	}, false)
	return results, err
}
