package storage

import (
	"github.com/pingcap-incubator/tinytable/table/config"
	"github.com/pingcap/errors"
	"go.etcd.io/etcd/clientv3"
)

// Open creates the Base described by cfg. The caller owns the returned store and must Close it.
func Open(cfg *config.StorageConfig) (Base, error) {
	switch cfg.Type {
	case config.MemoryStorage:
		return NewMemStorage(), nil
	case config.BadgerStorage:
		return NewBadgerStorage(cfg.Path)
	case config.LevelDBStorage:
		return NewLevelDBStorage(cfg.Path)
	case config.EtcdStorage:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Endpoints,
			DialTimeout: cfg.RequestTimeout.Duration,
		})
		if err != nil {
			return nil, errors.Annotate(err, "connect etcd")
		}
		return ownedEtcdStorage{NewEtcdStorage(client, cfg.RootPath, cfg.RequestTimeout.Duration)}, nil
	}
	return nil, errors.Errorf("unknown storage type %q", cfg.Type)
}
