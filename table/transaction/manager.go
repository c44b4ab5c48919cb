package transaction

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/pingcap-incubator/tinytable/table/config"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap-incubator/tinytable/table/transaction/lock"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Manager marks the boundaries of a writer's transaction. In optimistic concurrency mode a transaction runs while the
// table lock is held, and the manager remembers which instant owns it.
type Manager struct {
	lockManager  *lock.Manager
	lockRequired bool

	mu           sync.Mutex
	currentOwner *timeline.Instant
	// locked is set while this manager holds the table lock.
	locked bool
}

// NewTransactionManager creates a manager for the table described by cfg. A lock provider is only set up when cfg
// requires locking.
func NewTransactionManager(cfg *config.Config) (*Manager, error) {
	if !cfg.IsLockRequired() {
		return &Manager{}, nil
	}
	lm, err := lock.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return NewTransactionManagerWithLock(lm, true), nil
}

func NewTransactionManagerWithLock(lm *lock.Manager, lockRequired bool) *Manager {
	return &Manager{lockManager: lm, lockRequired: lockRequired}
}

// BeginTransaction blocks until the table lock is held, then records newOwner, which may be nil, as the current owner.
// On failure the transaction has not started and the caller must not write.
func (m *Manager) BeginTransaction(ctx context.Context, newOwner *timeline.Instant) error {
	if !m.lockRequired {
		return nil
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "transaction.Manager.BeginTransaction")
	span.SetTag("owner", ownerString(newOwner))
	defer span.Finish()

	log.Info("transaction starting", zap.String("owner", ownerString(newOwner)))
	if err := m.lockManager.Lock(ctx); err != nil {
		transactionCounter.WithLabelValues("begin_fail").Inc()
		log.Error("transaction start failed", zap.String("owner", ownerString(newOwner)), zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.currentOwner = copyInstant(newOwner)
	m.locked = true
	m.mu.Unlock()

	transactionCounter.WithLabelValues("begin").Inc()
	log.Info("transaction started", zap.String("owner", ownerString(newOwner)))
	return nil
}

// EndTransaction clears the owner and releases the lock if owner is the current owner or there is none. A call by any
// other owner is ignored and returns nil. Only a failure to release the lock is returned.
func (m *Manager) EndTransaction(owner *timeline.Instant) error {
	if !m.lockRequired {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentOwner != nil && (owner == nil || owner.ID() != m.currentOwner.ID()) {
		transactionCounter.WithLabelValues("end_mismatch").Inc()
		log.Warn("transaction end by non-owner ignored",
			zap.String("owner", ownerString(owner)),
			zap.String("current-owner", ownerString(m.currentOwner)))
		return nil
	}
	m.currentOwner = nil
	if !m.locked {
		log.Debug("transaction already ended", zap.String("owner", ownerString(owner)))
		return nil
	}
	m.locked = false
	if err := m.lockManager.Unlock(); err != nil {
		return err
	}
	transactionCounter.WithLabelValues("end").Inc()
	log.Info("transaction ended", zap.String("owner", ownerString(owner)))
	return nil
}

// Close releases the lock backend. It may be called more than once.
func (m *Manager) Close() error {
	if m.lockManager == nil {
		return nil
	}
	m.mu.Lock()
	m.locked = false
	m.currentOwner = nil
	m.mu.Unlock()
	return m.lockManager.Close()
}

// CurrentOwner returns a copy of the current owner, or nil.
func (m *Manager) CurrentOwner() *timeline.Instant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyInstant(m.currentOwner)
}

func (m *Manager) IsLockRequired() bool {
	return m.lockRequired
}

// LockManager returns nil when locking is not required.
func (m *Manager) LockManager() *lock.Manager {
	return m.lockManager
}

func copyInstant(inst *timeline.Instant) *timeline.Instant {
	if inst == nil {
		return nil
	}
	c := *inst
	return &c
}

func ownerString(inst *timeline.Instant) string {
	if inst == nil {
		return "<none>"
	}
	return inst.String()
}
