package badger

import (
	"bytes"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// readRecord reads and decodes the value at key.
// Returns nil, nil if the key doesn't exist.
func readRecord[T any](tx *badger.Txn, key []byte, unmarshal func([]byte) (*T, error)) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *T
	err = item.Value(func(val []byte) error {
		var err error
		record, err = unmarshal(val)
		return err
	})
	return record, err
}

// scanRecords decodes every value under prefix in key order.
func scanRecords[T any](tx *badger.Txn, prefix []byte, unmarshal func([]byte) (*T, error)) ([]*T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var results []*T
	for iter.Rewind(); iter.Valid(); iter.Next() {
		var record *T
		err := iter.Item().Value(func(val []byte) error {
			var err error
			record, err = unmarshal(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		if record != nil {
			results = append(results, record)
		}
	}
	return results, nil
}

// scanTimeIndex returns the IDs stored in a time index in timestamp order,
// stopping at the first entry after until (zero means no bound) or after limit
// entries (zero means no limit).
func scanTimeIndex(tx *badger.Txn, prefix string, until time.Time, limit int) []string {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix + ":")
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []string
	for iter.Rewind(); iter.Valid(); iter.Next() {
		ts, id := parseTimeIndexKey(prefix, iter.Item().Key())
		if !until.IsZero() && ts.After(until) {
			break
		}
		ids = append(ids, id)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids
}

// scanKeys returns copies of every key under prefix.
func scanKeys(tx *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, bytes.Clone(iter.Item().Key()))
	}
	return keys
}

// countKeys counts keys under prefix.
func countKeys(tx *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	n := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		n++
	}
	return n
}

func utcNow() time.Time {
	return time.Now().UTC()
}
