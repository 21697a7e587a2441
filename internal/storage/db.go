// Package storage provides the key-value stores that back ledger state.
package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in ascending
	// byte order. The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch collects writes that are applied together on Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by databases that can commit a Batch atomically.
type Batcher interface {
	NewBatch() Batch
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendBolt   = "bolt"
)

// Open creates a database for the named backend. path is ignored for the
// memory backend.
func Open(backend, path string) (DB, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendBadger:
		return NewBadger(path)
	case BackendBolt:
		return NewBolt(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
