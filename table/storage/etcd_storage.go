package storage

import (
	"context"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.etcd.io/etcd/clientv3"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 10 * time.Second
	slowRequestTime       = time.Second
)

// EtcdStorage is a Base kept in etcd under rootPath. It lets writers on different hosts share one timeline.
type EtcdStorage struct {
	client         *clientv3.Client
	rootPath       string
	requestTimeout time.Duration
}

// NewEtcdStorage creates an EtcdStorage using an existing client. The client is owned by the caller unless the
// storage was created by Open.
func NewEtcdStorage(client *clientv3.Client, rootPath string, requestTimeout time.Duration) *EtcdStorage {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &EtcdStorage{
		client:         client,
		rootPath:       rootPath,
		requestTimeout: requestTimeout,
	}
}

func (s *EtcdStorage) root() string {
	return strings.TrimSuffix(s.rootPath, "/") + "/"
}

func (s *EtcdStorage) path(key []byte) string {
	return s.root() + string(key)
}

func (s *EtcdStorage) Load(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(s.client.Ctx(), s.requestTimeout)
	defer cancel()
	start := time.Now()
	resp, err := clientv3.NewKV(s.client).Get(ctx, s.path(key))
	logSlowRequest("get", s.path(key), start)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

func (s *EtcdStorage) Create(key, value []byte) error {
	p := s.path(key)
	ctx, cancel := context.WithTimeout(s.client.Ctx(), s.requestTimeout)
	defer cancel()
	start := time.Now()
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(p), "=", 0)).
		Then(clientv3.OpPut(p, string(value))).
		Commit()
	logSlowRequest("txn", p, start)
	if err != nil {
		return errors.WithStack(err)
	}
	if !resp.Succeeded {
		return ErrKeyExists
	}
	return nil
}

func (s *EtcdStorage) Scan(prefix []byte) ([]KeyValue, error) {
	root := s.root()
	ctx, cancel := context.WithTimeout(s.client.Ctx(), s.requestTimeout)
	defer cancel()
	start := time.Now()
	resp, err := clientv3.NewKV(s.client).Get(ctx, root+string(prefix),
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	logSlowRequest("range", root+string(prefix), start)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	kvs := make([]KeyValue, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		kvs = append(kvs, KeyValue{
			Key:   []byte(strings.TrimPrefix(string(kv.Key), root)),
			Value: kv.Value,
		})
	}
	return kvs, nil
}

// Close is a no-op, the client belongs to whoever created it.
func (s *EtcdStorage) Close() error {
	return nil
}

func logSlowRequest(op, key string, start time.Time) {
	if cost := time.Since(start); cost > slowRequestTime {
		log.Warn("timeline request is too slow",
			zap.String("op", op),
			zap.String("key", key),
			zap.Duration("cost", cost))
	}
}

// ownedEtcdStorage closes the client it was opened with.
type ownedEtcdStorage struct {
	*EtcdStorage
}

func (s ownedEtcdStorage) Close() error {
	return errors.WithStack(s.client.Close())
}
