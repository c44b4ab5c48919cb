package lock

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
)

// Every local provider of a table shares one latch, so independent managers in one process exclude each other. A latch
// is a channel with room for one token: sending the token takes the latch and receiving it gives the latch back.
type latches struct {
	latchMap   map[string]chan struct{}
	latchGuard sync.Mutex
}

var processLatches = &latches{latchMap: make(map[string]chan struct{})}

func (l *latches) get(key string) chan struct{} {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()
	latch, ok := l.latchMap[key]
	if !ok {
		latch = make(chan struct{}, 1)
		l.latchMap[key] = latch
	}
	return latch
}

// LocalProvider locks a table among the writers of the current process.
type LocalProvider struct {
	latch chan struct{}

	mu   sync.Mutex
	held bool
}

func NewLocalProvider(table string) *LocalProvider {
	return &LocalProvider{latch: processLatches.get(table)}
}

func (p *LocalProvider) Lock(ctx context.Context) error {
	select {
	case p.latch <- struct{}{}:
		p.mu.Lock()
		p.held = true
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *LocalProvider) Unlock() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.held {
		return errors.New("local lock is not held")
	}
	p.held = false
	<-p.latch
	return nil
}

// Close gives a held latch back.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held {
		p.held = false
		<-p.latch
	}
	return nil
}
