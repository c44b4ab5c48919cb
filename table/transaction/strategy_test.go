package transaction

import (
	"testing"

	"github.com/pingcap-incubator/tinytable/table/config"
	"github.com/pingcap-incubator/tinytable/table/metadata"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertSingleConflict checks that the only candidate of current is want and that it cannot be resolved.
func assertSingleConflict(t *testing.T, b *testBuilder, strategy ConflictResolutionStrategy, current, want timeline.Instant, fileIDs ...string) {
	candidates := b.candidates(strategy, current, nil)
	require.Len(t, candidates, 1)
	assert.Equal(t, want.ID(), candidates[0].ID())

	this := NewConcurrentOperationFromMetadata(current, commitMetadata(fileIDs...))
	that := b.operation(candidates[0])
	assert.True(t, strategy.HasConflict(this, that))
	err := strategy.ResolveConflict(this, that)
	require.NotNil(t, err)
	assert.True(t, IsWriteConflict(err))
	conflict := errors.Cause(err).(*ErrWriteConflict)
	assert.Equal(t, want.ID(), conflict.Conflicting.ID())
	assert.Contains(t, err.Error(), string(want.Action))
}

func TestNoConcurrentWrites(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.commit("f1")
		current := b.inflightCommit()
		assert.Len(t, b.candidates(strategy, current, nil), 0)
	})
}

func TestConcurrentInflightWrites(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.commit("f1")
		w1 := b.inflightCommit()
		w2 := b.inflightCommit()
		current := b.inflightCommit()
		assert.Len(t, b.candidates(strategy, current, nil), 0)
		assert.Len(t, b.candidates(strategy, w1, nil), 0)
		assert.Len(t, b.candidates(strategy, w2, nil), 0)
	})
}

func TestInterleavingSuccessfulCommit(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.commit("f1")
		current := b.inflightCommit()
		other := b.commit("f1")
		assertSingleConflict(t, b, strategy, current, other, "f1")
	})
}

func TestInterleavingReplaceInflight(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.replaceInflight("f1")
		current := b.inflightCommit()
		other := b.replaceInflight("f1")
		assertSingleConflict(t, b, strategy, current, other, "f1")
	})
}

func TestInterleavingScheduledCompaction(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.commit("f1")
		current := b.inflightCommit()
		compaction := b.compactionRequested("f1")
		assertSingleConflict(t, b, strategy, current, compaction, "f1")
	})
}

func TestInterleavingSuccessfulCompaction(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.commit("f1")
		current := b.inflightCommit()
		compaction := b.compaction("f1")
		assertSingleConflict(t, b, strategy, current, compaction, "f1")
	})
}

func TestCompactionScheduledEarlier(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.commit("f1")
		b.compaction("f1")
		current := b.inflightCommit()
		assert.Len(t, b.candidates(strategy, current, nil), 0)
	})
}

func TestCompactionPendingWhenWriterStarts(t *testing.T) {
	b := newBuilder(t)
	b.commit("f1")
	compaction := b.compactionRequested("f1")
	current := b.inflightCommit()
	simple, stateTransition := NewSimpleConcurrentFileWrites(), NewStateTransitionTimeBased()

	// A plan created before the writer is not a candidate while it is still pending.
	assert.Len(t, b.candidates(simple, current, nil), 0)
	assert.Len(t, b.candidates(stateTransition, current, nil), 0)

	completed := b.completeCompaction(compaction, "f1")
	assert.Len(t, b.candidates(simple, current, nil), 0)

	// It completed inside the writer's window, so it is checked but the earlier compaction is exempt.
	candidates := b.candidates(stateTransition, current, nil)
	require.Len(t, candidates, 1)
	assert.Equal(t, completed.ID(), candidates[0].ID())
	this := NewConcurrentOperationFromMetadata(current, commitMetadata("f1"))
	that := b.operation(candidates[0])
	assert.True(t, stateTransition.HasConflict(this, that))
	assert.Nil(t, stateTransition.ResolveConflict(this, that))
}

func TestInterleavingScheduledCluster(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.commit("f1")
		current := b.inflightCommit()
		cluster := b.clusterRequested("f1")
		assertSingleConflict(t, b, strategy, current, cluster, "f1")
	})
}

func TestInterleavingSuccessfulCluster(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.commit("f1")
		current := b.inflightCommit()
		cluster := b.cluster("f1")
		assertSingleConflict(t, b, strategy, current, cluster, "f1")
	})
}

func TestInterleavingSuccessfulReplace(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		b.commit("f1")
		current := b.inflightCommit()
		replace := b.replace("f1")
		assertSingleConflict(t, b, strategy, current, replace, "f1")
	})
}

func TestDisjointInterleavingCommit(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		current := b.inflightCommit()
		b.commit("f2")
		candidates := b.candidates(strategy, current, nil)
		require.Len(t, candidates, 1)
		this := NewConcurrentOperationFromMetadata(current, commitMetadata("f1"))
		that := b.operation(candidates[0])
		assert.False(t, strategy.HasConflict(this, that))
		assert.Nil(t, strategy.ResolveConflict(this, that))
	})
}

func TestLastSuccessfulBoundsWindow(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		current := b.inflightCommit()
		seen := b.commit("f1")
		later := b.commit("f1")
		candidates := b.candidates(strategy, current, &seen)
		require.Len(t, candidates, 1)
		assert.Equal(t, later.ID(), candidates[0].ID())
	})
}

func TestNonWriteActionsIgnored(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		current := b.inflightCommit()
		b.complete(b.requested(timeline.Clean, nil), nil)
		b.requested(timeline.Rollback, nil)
		assert.Len(t, b.candidates(strategy, current, nil), 0)
	})
}

// A writer created before the current one but finishing after it started is only seen when the window is bounded by
// completion time.
func TestOutOfOrderCompletion(t *testing.T) {
	b := newBuilder(t)
	early := b.inflightCommit()
	current := b.inflightCommit()
	early = b.completeCommit(early, "f1")

	assert.Len(t, b.candidates(NewSimpleConcurrentFileWrites(), current, nil), 0)
	candidates := b.candidates(NewStateTransitionTimeBased(), current, nil)
	require.Len(t, candidates, 1)
	assert.Equal(t, early.ID(), candidates[0].ID())
}

// Pending cluster C1, pending compaction C11 and inflight commit C12 are created before the writer starts, requested
// commit C4 after. All of them touch the writer's file group and complete before it validates.
func TestConcurrentWritesWithPendingInstants(t *testing.T) {
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		b := newBuilder(t)
		c1 := b.clusterRequested("f1")
		c11 := b.compactionRequested("f1")
		c12 := b.inflightCommit()
		b.commit("f9")
		current := b.inflightCommit()
		c4 := b.requested(timeline.Commit, nil)

		pending, err := PendingSnapshot(b.at, current)
		require.Nil(t, err)
		assert.Equal(t, []timeline.ID{c1.ID(), c11.ID(), c12.ID(), c4.ID()}, pending.IDs())

		b.completeReplace(c1, metadata.Cluster, "f1")
		b.completeCompaction(c11, "f1")
		b.completeCommit(c12, "f1")
		b.completeCommit(c4, "f1")

		completed, err := CompletedDuringWindow(b.at, pending, current)
		require.Nil(t, err)
		require.Len(t, completed, 4)

		this := NewConcurrentOperationFromMetadata(current, commitMetadata("f1"))
		for _, inst := range completed {
			that := b.operation(inst)
			assert.True(t, strategy.HasConflict(this, that), inst.String())
			err := strategy.ResolveConflict(this, that)
			if inst.ID() == c11.ID() {
				assert.Nil(t, err)
			} else {
				assert.True(t, IsWriteConflict(err), inst.String())
			}
		}
	})
}

func TestNewConflictResolutionStrategy(t *testing.T) {
	s, err := NewConflictResolutionStrategy(config.SimpleStrategy)
	require.Nil(t, err)
	assert.IsType(t, &SimpleConcurrentFileWrites{}, s)
	s, err = NewConflictResolutionStrategy(config.StateTransitionStrategy)
	require.Nil(t, err)
	assert.IsType(t, &StateTransitionTimeBased{}, s)
	_, err = NewConflictResolutionStrategy("bucket")
	assert.NotNil(t, err)
}

func operation(action timeline.Action, ts string, fileIDs ...string) *ConcurrentOperation {
	op := NewConcurrentOperationFromMetadata(timeline.NewInstant(timeline.Inflight, action, ts), commitMetadata(fileIDs...))
	return op
}

func TestConflictProperties(t *testing.T) {
	sets := [][]string{{}, {"f1"}, {"f2"}, {"f1", "f2"}, {"f3", "f4"}, {"f2", "f3"}}
	actions := []timeline.Action{timeline.Commit, timeline.DeltaCommit, timeline.Compaction, timeline.Replace, timeline.Cluster}
	allStrategies(t, func(t *testing.T, strategy ConflictResolutionStrategy) {
		for _, thisFiles := range sets {
			for _, thatFiles := range sets {
				for _, action := range actions {
					for _, thatTs := range []string{"20240101000000001", "20240101000000009"} {
						this := operation(timeline.Commit, "20240101000000005", thisFiles...)
						that := operation(action, thatTs, thatFiles...)
						overlap := len(this.MutatedFileGroups().Intersection(that.MutatedFileGroups())) > 0

						assert.Equal(t, overlap, strategy.HasConflict(this, that))
						assert.Equal(t, strategy.HasConflict(this, that), strategy.HasConflict(that, this))

						err := strategy.ResolveConflict(this, that)
						switch {
						case !overlap:
							assert.Nil(t, err)
						case action == timeline.Compaction && thatTs < this.Timestamp():
							assert.Nil(t, err)
						default:
							assert.True(t, IsWriteConflict(err), "%s vs %s", this, that)
						}
					}
				}
			}
		}

		// An operation never conflicts with itself.
		op := operation(timeline.Commit, "20240101000000005", "f1")
		assert.False(t, strategy.HasConflict(op, op))
		assert.Nil(t, strategy.ResolveConflict(op, op))
	})
}
