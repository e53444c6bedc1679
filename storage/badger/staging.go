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
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

const (
	// DefaultStagingTTL is how long staged bytes survive without being consumed.
	DefaultStagingTTL = 24 * time.Hour

	// stagingPartSize bounds a single value so large files never exceed
	// badger's per-transaction limits.
	stagingPartSize = 512 << 10
)

// StagingStore implements storage.StagingStore on BadgerDB. Every entry is
// written with a TTL, so abandoned files disappear without a cleanup pass.
type StagingStore struct {
	backend *Backend
	ttl     time.Duration
}

var _ storage.StagingStore = (*StagingStore)(nil)

// NewStagingStore creates a StagingStore. A non-positive ttl uses DefaultStagingTTL.
func NewStagingStore(backend *Backend, ttl time.Duration) storage.StagingStore {
	if ttl <= 0 {
		ttl = DefaultStagingTTL
	}
	return &StagingStore{backend: backend, ttl: ttl}
}

type stagingHeader struct {
	filename string
	size     int64
	parts    int
}

func marshalStagingHeader(h stagingHeader) []byte {
	enc := core.NewEncoder(32 + len(h.filename))
	enc.String(h.filename)
	enc.Int64(h.size)
	enc.Int(h.parts)
	return enc.Bytes()
}

func unmarshalStagingHeader(data []byte) (*stagingHeader, error) {
	dec := core.NewDecoder(data)
	h := &stagingHeader{
		filename: dec.String(),
		size:     dec.Int64(),
		parts:    dec.Int(),
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: staging header: %w", storage.ErrSerializationFailed, err)
	}
	return h, nil
}

// StageFile writes data in parts followed by a header. The header is written
// last so a partially written file is never visible.
func (s *StagingStore) StageFile(ctx context.Context, data []byte, filename string) (string, error) {
	key := uuid.NewString()
	parts := (len(data) + stagingPartSize - 1) / stagingPartSize

	wb := s.backend.NewWriteBatch()
	defer wb.Cancel()

	for i := 0; i < parts; i++ {
		start := i * stagingPartSize
		end := min(start+stagingPartSize, len(data))
		entry := badger.NewEntry(makeStagingPartKey(key, i), data[start:end]).WithTTL(s.ttl)
		if err := wb.SetEntry(entry); err != nil {
			return "", err
		}
	}
	header := stagingHeader{filename: filename, size: int64(len(data)), parts: parts}
	if err := wb.SetEntry(badger.NewEntry(makeStagingMetaKey(key), marshalStagingHeader(header)).WithTTL(s.ttl)); err != nil {
		return "", err
	}
	if err := wb.Flush(); err != nil {
		return "", err
	}
	return key, nil
}

// RetrieveFile reassembles the parts of a staged file.
func (s *StagingStore) RetrieveFile(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		header, err := readRecord(tx, makeStagingMetaKey(key), unmarshalStagingHeader)
		if err != nil {
			return err
		}
		if header == nil {
			return storage.ErrNotFound
		}

		buf := bytes.NewBuffer(make([]byte, 0, header.size))
		for i := 0; i < header.parts; i++ {
			item, err := tx.Get(makeStagingPartKey(key, i))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: part %d of %s", storage.ErrStagingExpired, i, key)
				}
				return err
			}
			if err := item.Value(func(val []byte) error {
				buf.Write(val)
				return nil
			}); err != nil {
				return err
			}
		}
		out = buf.Bytes()
		return nil
	}, false)
	return out, err
}

// DeleteStagedFile removes the header and parts. Missing keys are ignored.
func (s *StagingStore) DeleteStagedFile(ctx context.Context, key string) error {
	var partKeys [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		partKeys = scanKeys(tx, prefixKey(stagingPrefix, key, "part"))
		return nil
	}, false)
	if err != nil {
		return err
	}

	wb := s.backend.NewWriteBatch()
	defer wb.Cancel()
	if err := wb.Delete(makeStagingMetaKey(key)); err != nil {
		return err
	}
	for _, k := range partKeys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}
