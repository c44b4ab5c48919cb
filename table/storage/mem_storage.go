package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

var _ btree.Item = &memItem{}

type memItem struct {
	key   []byte
	value []byte
}

// Less orders items by key.
func (it *memItem) Less(other btree.Item) bool {
	return bytes.Compare(it.key, other.(*memItem).key) < 0
}

// MemStorage is a Base backed by memory. Data is not written to disk, it is intended for tests and for writers that
// share one process.
type MemStorage struct {
	sync.RWMutex
	tree *btree.BTree
}

// NewMemStorage creates an empty MemStorage.
func NewMemStorage() *MemStorage {
	return &MemStorage{tree: btree.New(2)}
}

func (s *MemStorage) Load(key []byte) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()
	item := s.tree.Get(&memItem{key: key})
	if item == nil {
		return nil, ErrNotFound
	}
	return safeCopy(item.(*memItem).value), nil
}

func (s *MemStorage) Create(key, value []byte) error {
	s.Lock()
	defer s.Unlock()
	item := &memItem{key: safeCopy(key), value: safeCopy(value)}
	if s.tree.Has(item) {
		return ErrKeyExists
	}
	s.tree.ReplaceOrInsert(item)
	return nil
}

func (s *MemStorage) Scan(prefix []byte) ([]KeyValue, error) {
	s.RLock()
	defer s.RUnlock()
	var kvs []KeyValue
	s.tree.AscendGreaterOrEqual(&memItem{key: prefix}, func(i btree.Item) bool {
		item := i.(*memItem)
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		kvs = append(kvs, KeyValue{Key: safeCopy(item.key), Value: safeCopy(item.value)})
		return true
	})
	return kvs, nil
}

// Len returns the number of stored entries.
func (s *MemStorage) Len() int {
	s.RLock()
	defer s.RUnlock()
	return s.tree.Len()
}

func (s *MemStorage) Close() error {
	return nil
}
