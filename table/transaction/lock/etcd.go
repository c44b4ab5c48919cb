package lock

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/pingcap-incubator/tinytable/table/config"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/clientv3/concurrency"
	"go.uber.org/zap"
)

const etcdRequestTimeout = 5 * time.Second

// EtcdProvider locks a table with an etcd mutex. The mutex key is attached to a session lease, so the lock of a
// crashed writer is reclaimed once the lease TTL expires.
type EtcdProvider struct {
	client      *clientv3.Client
	ownedClient bool
	key         string
	ttl         int
	clientID    string

	mu      sync.Mutex
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

// NewEtcdProvider locks <keyPrefix>/<table> through client. The caller keeps ownership of client.
func NewEtcdProvider(client *clientv3.Client, keyPrefix, table, clientID string, ttl int) *EtcdProvider {
	return &EtcdProvider{
		client:   client,
		key:      path.Join(keyPrefix, table),
		ttl:      ttl,
		clientID: clientID,
	}
}

// NewEtcdProviderFromConfig connects to the endpoints of cfg. The connection is closed by Close.
func NewEtcdProviderFromConfig(cfg *config.LockConfig, table, clientID string) (*EtcdProvider, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: etcdRequestTimeout,
	})
	if err != nil {
		return nil, errors.Annotate(err, "connect etcd")
	}
	p := NewEtcdProvider(client, cfg.KeyPrefix, table, clientID, cfg.LeaseTTL)
	p.ownedClient = true
	return p, nil
}

func (p *EtcdProvider) Lock(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mutex != nil {
		return errors.Errorf("etcd lock %s is already held", p.key)
	}
	if err := p.ensureSession(); err != nil {
		return err
	}
	m := concurrency.NewMutex(p.session, p.key)
	if err := m.Lock(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Trace(err)
	}
	// Record who holds the lock. The put keeps the key's create revision, which is what the mutex orders by.
	if _, err := p.client.Put(ctx, m.Key(), p.clientID, clientv3.WithLease(p.session.Lease())); err != nil {
		p.unlock(m)
		return errors.Trace(err)
	}
	p.mutex = m
	log.Info("etcd lock acquired", zap.String("key", m.Key()), zap.String("client-id", p.clientID))
	return nil
}

// ensureSession starts a new session when there is none or the previous lease expired.
func (p *EtcdProvider) ensureSession() error {
	if p.session != nil {
		select {
		case <-p.session.Done():
			log.Warn("etcd lock session expired", zap.String("key", p.key))
			p.session = nil
		default:
			return nil
		}
	}
	session, err := concurrency.NewSession(p.client, concurrency.WithTTL(p.ttl))
	if err != nil {
		return errors.Annotatef(err, "create etcd session for %s", p.key)
	}
	p.session = session
	return nil
}

func (p *EtcdProvider) Unlock() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mutex == nil {
		return errors.Errorf("etcd lock %s is not held", p.key)
	}
	m := p.mutex
	p.mutex = nil
	return p.unlock(m)
}

func (p *EtcdProvider) unlock(m *concurrency.Mutex) error {
	ctx, cancel := context.WithTimeout(p.client.Ctx(), etcdRequestTimeout)
	defer cancel()
	return errors.Trace(m.Unlock(ctx))
}

// Close revokes the session lease, which also drops a held lock.
func (p *EtcdProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.session != nil {
		err = p.session.Close()
		p.session = nil
		p.mutex = nil
	}
	if p.ownedClient {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
		p.ownedClient = false
	}
	return errors.Trace(err)
}
