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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// FeedRepository implements storage.FeedRepository for BadgerDB.
type FeedRepository struct {
	backend *Backend
}

var _ storage.FeedRepository = (*FeedRepository)(nil)

// NewFeedRepository creates a new FeedRepository.
func NewFeedRepository(backend *Backend) storage.FeedRepository {
	return &FeedRepository{backend: backend}
}

func writeFeed(tx *badger.Txn, feed *core.Feed) error {
	value, err := storage.MarshalFeed(feed)
	if err != nil {
		return err
	}
	if err := tx.Set(makeFeedKey(feed.ID), value); err != nil {
		return err
	}
	return tx.Set(makeTimeIndexKey(feedNextRunPrefix, feed.NextRunAt, feed.ID), nil)
}

// AddFeed stores a new feed. A zero NextRunAt makes the feed due immediately.
func (r *FeedRepository) AddFeed(ctx context.Context, feed *core.Feed) (*core.Feed, error) {
	if err := core.ValidateFeed(feed); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if feed.ID == "" {
			feed.ID = core.NewID()
		}
		feed.CreatedAt = utcNow()
		feed.UpdatedAt = feed.CreatedAt
		if feed.NextRunAt.IsZero() {
			feed.NextRunAt = feed.CreatedAt
		}
		if err := writeFeed(tx, feed); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// UpdateFeed replaces a feed and moves its next-run index entry.
func (r *FeedRepository) UpdateFeed(ctx context.Context, feed *core.Feed) (*core.Feed, error) {
	if err := core.ValidateFeed(feed); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		old, err := readRecord(tx, makeFeedKey(feed.ID), storage.UnmarshalFeed)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(makeTimeIndexKey(feedNextRunPrefix, old.NextRunAt, old.ID)); err != nil {
			return err
		}
		feed.CreatedAt = old.CreatedAt
		feed.UpdatedAt = utcNow()
		if err := writeFeed(tx, feed); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// GetFeed retrieves a feed by ID.
func (r *FeedRepository) GetFeed(ctx context.Context, id string) (*core.Feed, error) {
	var result *core.Feed
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeFeedKey(id), storage.UnmarshalFeed)
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

// ListDueFeeds walks the next-run index up to now.
func (r *FeedRepository) ListDueFeeds(ctx context.Context, now time.Time, limit int) ([]*core.Feed, error) {
	var results []*core.Feed
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range scanTimeIndex(tx, feedNextRunPrefix, now, 0) {
			feed, err := readRecord(tx, makeFeedKey(id), storage.UnmarshalFeed)
			if err != nil {
				return err
			}
			if feed == nil || !feed.Enabled {
				continue
			}
			results = append(results, feed)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
		return nil
	}, false)
	return results, err
}

// AddFeedExecution stores a new execution and indexes it under its feed.
func (r *FeedRepository) AddFeedExecution(ctx context.Context, exec *core.FeedExecution) (*core.FeedExecution, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if exec.ID == "" {
			exec.ID = core.NewID()
		}
		if exec.Status == "" {
			exec.Status = core.ExecutionPending
		}
		exec.CreatedAt = utcNow()
		if err := tx.Set(makeFeedExecutionKey(exec.ID), storage.MarshalFeedExecution(exec)); err != nil {
			return err
		}
		if err := tx.Set(makeFeedExecByFeedKey(exec.FeedID, exec.CreatedAt, exec.ID), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// UpdateFeedExecution replaces an existing execution.
func (r *FeedRepository) UpdateFeedExecution(ctx context.Context, exec *core.FeedExecution) (*core.FeedExecution, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeFeedExecutionKey(exec.ID)
		old, err := readRecord(tx, key, storage.UnmarshalFeedExecution)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		exec.FeedID = old.FeedID
		exec.CreatedAt = old.CreatedAt
		if err := tx.Set(key, storage.MarshalFeedExecution(exec)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// GetFeedExecution retrieves an execution by ID.
func (r *FeedRepository) GetFeedExecution(ctx context.Context, id string) (*core.FeedExecution, error) {
	var result *core.FeedExecution
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeFeedExecutionKey(id), storage.UnmarshalFeedExecution)
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

// ListFeedExecutions returns the executions of a feed in creation order.
func (r *FeedRepository) ListFeedExecutions(ctx context.Context, feedID string) ([]*core.FeedExecution, error) {
	var results []*core.FeedExecution
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range scanTimeIndex(tx, feedExecByFeedPrefix+":"+feedID, time.Time{}, 0) {
			exec, err := readRecord(tx, makeFeedExecutionKey(id), storage.UnmarshalFeedExecution)
			if err != nil {
				return err
			}
			if exec != nil {
				results = append(results, exec)
			}
		}
		return nil
	}, false)
	return results, err
}

// ListActiveFeedExecutions returns executions that are PENDING or RUNNING.
func (r *FeedRepository) ListActiveFeedExecutions(ctx context.Context) ([]*core.FeedExecution, error) {
	var results []*core.FeedExecution
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		all, err := scanRecords(tx, prefixKey(feedExecutionPrefix), storage.UnmarshalFeedExecution)
		if err != nil {
			return err
		}
		for _, exec := range all {
			if exec.Status.IsActive() {
				results = append(results, exec)
			}
		}
		return nil
	}, false)
	return results, err
}

// ExperienceRepository implements storage.ExperienceRepository for BadgerDB.
type ExperienceRepository struct {
	backend *Backend
}

var _ storage.ExperienceRepository = (*ExperienceRepository)(nil)

// NewExperienceRepository creates a new ExperienceRepository.
func NewExperienceRepository(backend *Backend) storage.ExperienceRepository {
	return &ExperienceRepository{backend: backend}
}

func writeExperience(tx *badger.Txn, exp *core.Experience) error {
	if err := tx.Set(makeExperienceKey(exp.ID), storage.MarshalExperience(exp)); err != nil {
		return err
	}
	return tx.Set(makeTimeIndexKey(experienceNextPrefix, exp.NextRunAt, exp.ID), nil)
}

// AddExperience stores a new experience. A zero NextRunAt makes it due immediately.
func (r *ExperienceRepository) AddExperience(ctx context.Context, exp *core.Experience) (*core.Experience, error) {
	if err := core.ValidateExperience(exp); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if exp.ID == "" {
			exp.ID = core.NewID()
		}
		exp.CreatedAt = utcNow()
		exp.UpdatedAt = exp.CreatedAt
		if exp.NextRunAt.IsZero() {
			exp.NextRunAt = exp.CreatedAt
		}
		if err := writeExperience(tx, exp); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// UpdateExperience replaces an experience and moves its next-run index entry.
func (r *ExperienceRepository) UpdateExperience(ctx context.Context, exp *core.Experience) (*core.Experience, error) {
	if err := core.ValidateExperience(exp); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		old, err := readRecord(tx, makeExperienceKey(exp.ID), storage.UnmarshalExperience)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(makeTimeIndexKey(experienceNextPrefix, old.NextRunAt, old.ID)); err != nil {
			return err
		}
		exp.CreatedAt = old.CreatedAt
		exp.UpdatedAt = utcNow()
		if err := writeExperience(tx, exp); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// GetExperience retrieves an experience by ID.
func (r *ExperienceRepository) GetExperience(ctx context.Context, id string) (*core.Experience, error) {
	var result *core.Experience
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeExperienceKey(id), storage.UnmarshalExperience)
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

// ListDueExperiences walks the next-run index up to now.
func (r *ExperienceRepository) ListDueExperiences(ctx context.Context, now time.Time, limit int) ([]*core.Experience, error) {
	var results []*core.Experience
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range scanTimeIndex(tx, experienceNextPrefix, now, 0) {
			exp, err := readRecord(tx, makeExperienceKey(id), storage.UnmarshalExperience)
			if err != nil {
				return err
			}
			if exp == nil || !exp.Enabled {
				continue
			}
			results = append(results, exp)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
		return nil
	}, false)
	return results, err
}

// AddExperienceRun stores a new run and indexes it under its experience.
func (r *ExperienceRepository) AddExperienceRun(ctx context.Context, run *core.ExperienceRun) (*core.ExperienceRun, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if run.ID == "" {
			run.ID = core.NewID()
		}
		if run.Status == "" {
			run.Status = core.ExecutionPending
		}
		run.CreatedAt = utcNow()
		if err := tx.Set(makeExperienceRunKey(run.ID), storage.MarshalExperienceRun(run)); err != nil {
			return err
		}
		if err := tx.Set(makeExperienceRunByExpKey(run.ExperienceID, run.CreatedAt, run.ID), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// UpdateExperienceRun replaces an existing run.
func (r *ExperienceRepository) UpdateExperienceRun(ctx context.Context, run *core.ExperienceRun) (*core.ExperienceRun, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeExperienceRunKey(run.ID)
		old, err := readRecord(tx, key, storage.UnmarshalExperienceRun)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		run.ExperienceID = old.ExperienceID
		run.CreatedAt = old.CreatedAt
		if err := tx.Set(key, storage.MarshalExperienceRun(run)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetExperienceRun retrieves a run by ID.
func (r *ExperienceRepository) GetExperienceRun(ctx context.Context, id string) (*core.ExperienceRun, error) {
	var result *core.ExperienceRun
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeExperienceRunKey(id), storage.UnmarshalExperienceRun)
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

// ListExperienceRuns returns the runs of an experience in creation order.
func (r *ExperienceRepository) ListExperienceRuns(ctx context.Context, experienceID string) ([]*core.ExperienceRun, error) {
	var results []*core.ExperienceRun
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range scanTimeIndex(tx, experienceRunByExpPfx+":"+experienceID, time.Time{}, 0) {
			run, err := readRecord(tx, makeExperienceRunKey(id), storage.UnmarshalExperienceRun)
			if err != nil {
				return err
			}
			if run != nil {
				results = append(results, run)
			}
		}
		return nil
	}, false)
	return results, err
}

// ListActiveExperienceRuns returns runs that are PENDING or RUNNING.
func (r *ExperienceRepository) ListActiveExperienceRuns(ctx context.Context) ([]*core.ExperienceRun, error) {
	var results []*core.ExperienceRun
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		all, err := scanRecords(tx, prefixKey(experienceRunPrefix), storage.UnmarshalExperienceRun)
		if err != nil {
			return err
		}
		for _, run := range all {
			if run.Status.IsActive() {
				results = append(results, run)
			}
		}
		return nil
	}, false)
	return results, err
}
