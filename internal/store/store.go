// Package store is the ordered key-value persistence layer: prefixed
// Active/History namespaces over market, user, and position records,
// with lexicographic prefix-scan iteration. Backed by cockroachdb/pebble
// rather than the teacher's JSON-file-per-key layout, since spec.md's
// scan(prefix) and move_to_history requirements need ordered iteration
// the teacher's layout does not provide.
package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/errs"
)

// Store wraps a pebble database with the Active/History key schema.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) the ordered KV database at path.
// Failure here is FatalStartup per spec.md §7.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w: %w", path, errs.ErrFatalStartup, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutActive idempotently upserts value under the Active namespace.
func (s *Store) PutActive(key, value []byte) error {
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return &errs.StoreError{Op: "put_active", Key: string(key), Err: err}
	}
	return nil
}

// MoveToHistory writes value under historyKey and removes activeKey, as
// a single atomic batch.
func (s *Store) MoveToHistory(activeKey, historyKey, value []byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(activeKey, nil); err != nil {
		return &errs.StoreError{Op: "move_to_history.delete", Key: string(activeKey), Err: err}
	}
	if err := batch.Set(historyKey, value, nil); err != nil {
		return &errs.StoreError{Op: "move_to_history.set", Key: string(historyKey), Err: err}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return &errs.StoreError{Op: "move_to_history.commit", Key: string(historyKey), Err: err}
	}
	return nil
}

// Get returns the raw value for key, or (nil, false) if absent.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &errs.StoreError{Op: "get", Key: string(key), Err: err}
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// KV is one scanned key/value pair.
type KV struct {
	Key   []byte
	Value []byte
}

// Scan returns every entry whose key starts with prefix, in
// lexicographic order. The result is a finite, fully-materialized slice
// (spec.md describes a "lazy sequence"; a bounded local store makes a
// single eager pass the simpler and equally-correct realization).
func (s *Store) Scan(prefix []byte) ([]KV, error) {
	lower := prefixWithSep(prefix)
	upper := upperBound(lower)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, &errs.StoreError{Op: "scan", Key: string(prefix), Err: err}
	}
	defer iter.Close()

	var out []KV
	for iter.First(); iter.Valid(); iter.Next() {
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		out = append(out, KV{Key: k, Value: v})
	}
	if err := iter.Error(); err != nil {
		return nil, &errs.StoreError{Op: "scan", Key: string(prefix), Err: err}
	}
	return out, nil
}

// ScanNamespace scans every record under an Active or History namespace.
func (s *Store) ScanNamespace(ns Namespace) ([]KV, error) {
	return s.Scan(NamespacePrefix(ns))
}

// ListPositionHistory scans History/position/<authority>/.
func (s *Store) ListPositionHistory(authority address.Address) ([]KV, error) {
	return s.Scan(PositionPrefix(History, authority))
}
