package storage

import (
	"bytes"
	"os"

	"github.com/coocood/badger"
	"github.com/pingcap/errors"
)

// BadgerStorage is a Base backed by a badger database on local disk.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens, creating if needed, a badger database in dir.
func NewBadgerStorage(dir string) (*BadgerStorage, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.WithStack(err)
	}
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.SyncWrites = true
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Annotatef(err, "open badger at %s", dir)
	}
	return &BadgerStorage{db: db}, nil
}

func (s *BadgerStorage) Load(key []byte) (val []byte, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		v, err := item.Value()
		if err != nil {
			return err
		}
		val = safeCopy(v)
		return nil
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	return val, errors.WithStack(err)
}

func (s *BadgerStorage) Create(key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrKeyExists
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, value)
	})
	if err == ErrKeyExists {
		return err
	}
	if err == badger.ErrConflict {
		// Another transaction wrote the key between our read and commit.
		return ErrKeyExists
	}
	return errors.WithStack(err)
}

func (s *BadgerStorage) Scan(prefix []byte) ([]KeyValue, error) {
	var kvs []KeyValue
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.Valid(); it.Next() {
			item := it.Item()
			if !bytes.HasPrefix(item.Key(), prefix) {
				break
			}
			v, err := item.Value()
			if err != nil {
				return err
			}
			kvs = append(kvs, KeyValue{Key: safeCopy(item.Key()), Value: safeCopy(v)})
		}
		return nil
	})
	return kvs, errors.WithStack(err)
}

func (s *BadgerStorage) Close() error {
	return errors.WithStack(s.db.Close())
}
