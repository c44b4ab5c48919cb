package storage

import (
	"sync"

	"github.com/pingcap/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStorage is a Base backed by leveldb. leveldb has no conditional put, so Create is serialized by a mutex and
// the database must not be shared with another process.
type LevelDBStorage struct {
	mu sync.Mutex
	db *leveldb.DB
}

// NewLevelDBStorage opens, creating if needed, a leveldb database at path.
func NewLevelDBStorage(path string) (*LevelDBStorage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "open leveldb at %s", path)
	}
	return &LevelDBStorage{db: db}, nil
}

func (s *LevelDBStorage) Load(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return v, nil
}

func (s *LevelDBStorage) Create(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.db.Has(key, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return ErrKeyExists
	}
	return errors.WithStack(s.db.Put(key, value, nil))
}

func (s *LevelDBStorage) Scan(prefix []byte) ([]KeyValue, error) {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var kvs []KeyValue
	for iter.Next() {
		kvs = append(kvs, KeyValue{Key: safeCopy(iter.Key()), Value: safeCopy(iter.Value())})
	}
	return kvs, errors.WithStack(iter.Error())
}

func (s *LevelDBStorage) Close() error {
	return errors.WithStack(s.db.Close())
}
