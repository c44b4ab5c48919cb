package transaction

import (
	"github.com/pingcap-incubator/tinytable/table/config"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// ConflictResolutionStrategy decides which operations a writer must be checked against before it commits and whether
// an overlap with one of them is acceptable.
type ConflictResolutionStrategy interface {
	// CandidateInstants reloads the timeline and returns the operations that may conflict with current.
	// lastSuccessful, when not nil, is the last instant the writer knows to have completed. Nothing whose window
	// time is at or before that instant's window time is returned.
	CandidateInstants(at *timeline.ActiveTimeline, current timeline.Instant, lastSuccessful *timeline.Instant) (*timeline.Iterator, error)
	// HasConflict reports whether two distinct operations mutate a common file group.
	HasConflict(this, that *ConcurrentOperation) bool
	// ResolveConflict returns nil if this may commit despite that, and *ErrWriteConflict otherwise.
	ResolveConflict(this, that *ConcurrentOperation) error
}

// NewConflictResolutionStrategy returns the strategy registered under name.
func NewConflictResolutionStrategy(name string) (ConflictResolutionStrategy, error) {
	switch name {
	case config.SimpleStrategy:
		return NewSimpleConcurrentFileWrites(), nil
	case config.StateTransitionStrategy:
		return NewStateTransitionTimeBased(), nil
	}
	return nil, errors.Errorf("unknown conflict resolution strategy %q", name)
}

// windowStrategy holds what both strategies share. They only differ in which timestamp of a completed instant is
// compared against the start of the window.
type windowStrategy struct {
	name       string
	windowTime func(inst timeline.Instant) string
}

func (s windowStrategy) CandidateInstants(at *timeline.ActiveTimeline, current timeline.Instant, lastSuccessful *timeline.Instant) (*timeline.Iterator, error) {
	snap, err := at.Reload()
	if err != nil {
		return nil, err
	}
	lower := current.Timestamp
	if lastSuccessful != nil {
		if t := s.windowTime(*lastSuccessful); t > lower {
			lower = t
		}
	}
	currentID := current.ID()
	return snap.FilterWrites().Iterator(func(inst timeline.Instant) bool {
		if inst.ID() == currentID {
			return false
		}
		if inst.IsCompleted() {
			return s.windowTime(inst) > lower
		}
		// Pending plans have already reserved their file groups.
		return reservesFileGroups(inst.Action) && inst.Timestamp > lower
	}), nil
}

func reservesFileGroups(a timeline.Action) bool {
	return a == timeline.Compaction || a == timeline.Replace || a == timeline.Cluster
}

func (s windowStrategy) HasConflict(this, that *ConcurrentOperation) bool {
	if this.Instant().ID() == that.Instant().ID() {
		return false
	}
	common := this.MutatedFileGroups().Intersection(that.MutatedFileGroups())
	if len(common) == 0 {
		return false
	}
	log.Info("found overlapping file groups",
		zap.String("strategy", s.name),
		zap.Stringer("this", this),
		zap.Stringer("that", that),
		zap.Int("file-groups", len(common)))
	return true
}

func (s windowStrategy) ResolveConflict(this, that *ConcurrentOperation) error {
	if !s.HasConflict(this, that) {
		return nil
	}
	// An older compaction rewrites an existing file slice while this writer lands in a new slice of the same file
	// group, so they do not interfere.
	if that.Action() == timeline.Compaction && that.Timestamp() < this.Timestamp() {
		conflictCounter.WithLabelValues("resolved").Inc()
		log.Info("overlap with earlier compaction resolved", zap.Stringer("this", this), zap.Stringer("that", that))
		return nil
	}
	conflictCounter.WithLabelValues("conflict").Inc()
	return &ErrWriteConflict{
		Current:     this.Instant(),
		Conflicting: that.Instant(),
		FileGroups:  this.MutatedFileGroups().Intersection(that.MutatedFileGroups()).Sorted(),
	}
}
