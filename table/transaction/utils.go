package transaction

import (
	"sort"
	"time"

	"github.com/pingcap-incubator/tinytable/table/metadata"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// PendingInstants is the set of operations that were requested or inflight at one moment. It is not updated
// afterwards.
type PendingInstants struct {
	ids map[timeline.ID]struct{}
}

func (p *PendingInstants) Contains(id timeline.ID) bool {
	if p == nil {
		return false
	}
	_, ok := p.ids[id]
	return ok
}

func (p *PendingInstants) Len() int {
	if p == nil {
		return 0
	}
	return len(p.ids)
}

// IDs returns the members in timeline order.
func (p *PendingInstants) IDs() []timeline.ID {
	ids := make([]timeline.ID, 0, p.Len())
	if p != nil {
		for id := range p.ids {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Timestamp != ids[j].Timestamp {
			return ids[i].Timestamp < ids[j].Timestamp
		}
		return ids[i].Action < ids[j].Action
	})
	return ids
}

// PendingSnapshot reloads the timeline and records every requested or inflight operation except excluding. A writer
// takes it when it starts so the operations it raced with can be told apart later.
func PendingSnapshot(at *timeline.ActiveTimeline, excluding timeline.Instant) (*PendingInstants, error) {
	snap, err := at.Reload()
	if err != nil {
		return nil, err
	}
	p := &PendingInstants{ids: make(map[timeline.ID]struct{})}
	skip := excluding.ID()
	for it := snap.Iterator(timeline.Instant.IsPending); it.Valid(); it.Next() {
		if id := it.Item().ID(); id != skip {
			p.ids[id] = struct{}{}
		}
	}
	return p, nil
}

// CompletedDuringWindow reloads the timeline and returns the write operations that have completed and were either
// pending when the snapshot was taken or created after current.
func CompletedDuringWindow(at *timeline.ActiveTimeline, pending *PendingInstants, current timeline.Instant) ([]timeline.Instant, error) {
	snap, err := at.Reload()
	if err != nil {
		return nil, err
	}
	currentID := current.ID()
	return snap.FilterWrites().FilterCompleted().Iterator(func(inst timeline.Instant) bool {
		if inst.ID() == currentID {
			return false
		}
		return pending.Contains(inst.ID()) || inst.Timestamp > current.Timestamp
	}).Collect(), nil
}

// ResolveWriteConflictIfAny checks the current writer against the candidates of strategy and, when pending is not nil,
// against everything that completed during its window. It returns the first unresolvable *ErrWriteConflict, or
// *ErrMetadataLoad if a candidate's file groups cannot be read.
func ResolveWriteConflictIfAny(strategy ConflictResolutionStrategy, at *timeline.ActiveTimeline, current timeline.Instant,
	currentMetadata *metadata.CommitMetadata, lastSuccessful *timeline.Instant, pending *PendingInstants) error {
	start := time.Now()
	defer func() {
		conflictCheckHistogram.Observe(time.Since(start).Seconds())
	}()

	it, err := strategy.CandidateInstants(at, current, lastSuccessful)
	if err != nil {
		return err
	}
	candidates := it.Collect()
	if pending != nil {
		completed, err := CompletedDuringWindow(at, pending, current)
		if err != nil {
			return err
		}
		candidates = append(candidates, completed...)
	}

	this := NewConcurrentOperationFromMetadata(current, currentMetadata)
	seen := make(map[timeline.ID]struct{}, len(candidates))
	for _, inst := range candidates {
		if _, ok := seen[inst.ID()]; ok {
			continue
		}
		seen[inst.ID()] = struct{}{}
		that, err := NewConcurrentOperation(at, inst)
		if err != nil {
			return err
		}
		if err := strategy.ResolveConflict(this, that); err != nil {
			log.Warn("write conflict detected", zap.Stringer("current", current), zap.Error(err))
			return err
		}
	}
	log.Info("no write conflict", zap.Stringer("current", current), zap.Int("checked", len(seen)))
	return nil
}
