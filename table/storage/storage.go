package storage

import (
	"github.com/pingcap/errors"
)

var (
	// ErrKeyExists is returned by Create when the key has already been written. Entries are append-only, so a
	// second Create for the same key always fails rather than overwriting.
	ErrKeyExists = errors.New("storage: key already exists")
	// ErrNotFound is returned by Load when no value is stored under the key.
	ErrNotFound = errors.New("storage: key not found")
)

// Base is an append-only, ordered key/value store the timeline persists its entries into. Implementations must make
// Create atomic per key: of two concurrent Creates for the same key exactly one succeeds.
type Base interface {
	// Load returns the value stored under key, or ErrNotFound.
	Load(key []byte) ([]byte, error)
	// Create stores value under key if, and only if, the key is absent.
	Create(key, value []byte) error
	// Scan returns every pair whose key starts with prefix, in ascending key order.
	Scan(prefix []byte) ([]KeyValue, error)
	// Close releases the resources held by the store.
	Close() error
}

// KeyValue is one pair returned by Scan. Both slices are owned by the caller.
type KeyValue struct {
	Key   []byte
	Value []byte
}

func safeCopy(b []byte) []byte {
	return append([]byte(nil), b...)
}
