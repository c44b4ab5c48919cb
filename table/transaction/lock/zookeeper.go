package lock

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// ZooKeeperProvider locks a table with the ZooKeeper lock recipe: sequential ephemeral nodes under
// <basePath>/<table>.
type ZooKeeperProvider struct {
	conn *zk.Conn
	path string

	mu   sync.Mutex
	lock *zk.Lock
}

func NewZooKeeperProvider(servers []string, sessionTimeout time.Duration, basePath, table string) (*ZooKeeperProvider, error) {
	if len(servers) == 0 {
		return nil, errors.New("zookeeper lock needs at least one server")
	}
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, errors.Annotate(err, "connect zookeeper")
	}
	return &ZooKeeperProvider{conn: conn, path: path.Join(basePath, table)}, nil
}

// Lock waits for the recipe lock in the background. If ctx is done first the attempt is abandoned, and a lock node it
// obtains afterwards is released right away.
func (p *ZooKeeperProvider) Lock(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lock != nil {
		return errors.Errorf("zookeeper lock %s is already held", p.path)
	}
	l := zk.NewLock(p.conn, p.path, zk.WorldACL(zk.PermAll))
	done := make(chan error, 1)
	go func() {
		done <- l.Lock()
	}()
	select {
	case err := <-done:
		if err != nil {
			return errors.Trace(err)
		}
		p.lock = l
		return nil
	case <-ctx.Done():
		go func() {
			if err := <-done; err == nil {
				if err := l.Unlock(); err != nil {
					log.Warn("release abandoned zookeeper lock failed", zap.String("path", p.path), zap.Error(err))
				}
			}
		}()
		return ctx.Err()
	}
}

func (p *ZooKeeperProvider) Unlock() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lock == nil {
		return errors.Errorf("zookeeper lock %s is not held", p.path)
	}
	l := p.lock
	p.lock = nil
	return errors.Trace(l.Unlock())
}

// Close ends the session. ZooKeeper then removes the ephemeral lock node.
func (p *ZooKeeperProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lock = nil
	p.conn.Close()
	return nil
}
