package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pingcap-incubator/tinytable/table/config"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Provider is an exclusive lock shared by every writer of one table.
type Provider interface {
	// Lock blocks until the lock is held or ctx is done. It returns ctx.Err() in the latter case.
	Lock(ctx context.Context) error
	// Unlock releases a lock obtained by Lock.
	Unlock() error
	// Close releases the provider's connections. A held lock is given up.
	Close() error
}

// ErrLockAcquire is returned when the lock could not be obtained within the configured wait.
type ErrLockAcquire struct {
	Provider string
	Err      error
}

func (e *ErrLockAcquire) Error() string {
	return fmt.Sprintf("unable to acquire %s lock: %v", e.Provider, e.Err)
}

func (e *ErrLockAcquire) Unwrap() error {
	return e.Err
}

// NewProvider creates the provider named by cfg for table.
func NewProvider(cfg *config.LockConfig, table, clientID string) (Provider, error) {
	switch cfg.Provider {
	case config.LocalLockProvider:
		return NewLocalProvider(table), nil
	case config.EtcdLockProvider:
		return NewEtcdProviderFromConfig(cfg, table, clientID)
	case config.ZooKeeperLockProvider:
		return NewZooKeeperProvider(cfg.Endpoints, cfg.SessionTimeout.Duration, cfg.KeyPrefix, table)
	}
	return nil, errors.Errorf("unknown lock provider %q", cfg.Provider)
}

// Manager bounds how long a caller waits for a Provider and retries failed attempts within that bound.
type Manager struct {
	name          string
	provider      Provider
	waitTimeout   time.Duration
	retryInterval time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewManager creates the lock manager of the table described by cfg.
func NewManager(cfg *config.Config) (*Manager, error) {
	p, err := NewProvider(&cfg.Lock, cfg.TableName, cfg.ClientID)
	if err != nil {
		return nil, err
	}
	return NewManagerWithProvider(cfg.Lock.Provider, p, cfg.Lock.WaitTimeout.Duration, cfg.Lock.RetryInterval.Duration), nil
}

// minRetryInterval is the shortest pause between attempts.
const minRetryInterval = 10 * time.Millisecond

// NewManagerWithProvider wraps an existing provider. name only appears in errors, logs and metrics. retryInterval is
// raised to at least minRetryInterval.
func NewManagerWithProvider(name string, p Provider, waitTimeout, retryInterval time.Duration) *Manager {
	if retryInterval < minRetryInterval {
		retryInterval = minRetryInterval
	}
	return &Manager{
		name:          name,
		provider:      p,
		waitTimeout:   waitTimeout,
		retryInterval: retryInterval,
	}
}

// Lock acquires the lock, retrying provider errors every retry interval. It gives up with *ErrLockAcquire once the
// wait timeout elapses or ctx is done.
func (m *Manager) Lock(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lock.Manager.Lock")
	span.SetTag("provider", m.name)
	defer span.Finish()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.waitTimeout)
	defer cancel()

	// The first attempt takes the only token; later ones wait a full retry interval.
	limiter := rate.NewLimiter(rate.Every(m.retryInterval), 1)
	var err error
	for attempt := 1; ; attempt++ {
		if werr := limiter.Wait(ctx); werr != nil {
			// Report the provider's own failure rather than the pacing one.
			if err == nil {
				err = werr
			}
			return m.lockFailed(span, start, attempt-1, err)
		}
		err = m.provider.Lock(ctx)
		if err == nil {
			span.SetTag("attempts", attempt)
			lockWaitHistogram.WithLabelValues(m.name, "ok").Observe(time.Since(start).Seconds())
			return nil
		}
		if ctx.Err() != nil {
			return m.lockFailed(span, start, attempt, err)
		}
		log.Warn("acquire lock failed, retrying", zap.String("provider", m.name), zap.Int("attempt", attempt), zap.Error(err))
	}
}

func (m *Manager) lockFailed(span opentracing.Span, start time.Time, attempt int, err error) error {
	span.SetTag("attempts", attempt)
	span.SetTag("error", true)
	lockWaitHistogram.WithLabelValues(m.name, "fail").Observe(time.Since(start).Seconds())
	return &ErrLockAcquire{Provider: m.name, Err: err}
}

func (m *Manager) Unlock() error {
	if err := m.provider.Unlock(); err != nil {
		return errors.Annotatef(err, "release %s lock", m.name)
	}
	return nil
}

// Close closes the provider. Calls after the first return the first result.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = errors.Trace(m.provider.Close())
	})
	return m.closeErr
}
