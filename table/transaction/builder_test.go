package transaction

// This file contains utility code for building timelines in tests.

import (
	"fmt"
	"testing"

	"github.com/pingcap-incubator/tinytable/table/metadata"
	"github.com/pingcap-incubator/tinytable/table/storage"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/stretchr/testify/require"
)

const testPartition = "2024/01/01"

// testBuilder appends operations to an in-memory timeline. Creation and completion times come from one counter, so
// the order of calls is the order of events.
type testBuilder struct {
	t      *testing.T
	at     *timeline.ActiveTimeline
	prevTs int
}

func newBuilder(t *testing.T) *testBuilder {
	b := &testBuilder{t: t}
	at, err := timeline.OpenActiveTimeline(storage.NewMemStorage(), "test", timeline.WithClock(b.nextTs))
	require.Nil(t, err)
	b.at = at
	return b
}

func (b *testBuilder) nextTs() string {
	b.prevTs++
	return fmt.Sprintf("20240101000000%03d", b.prevTs)
}

func fileGroup(fileID string) metadata.FileGroupID {
	return metadata.FileGroupID{PartitionPath: testPartition, FileID: fileID}
}

func commitMetadata(fileIDs ...string) *metadata.CommitMetadata {
	m := metadata.NewCommitMetadata(metadata.Upsert)
	for _, id := range fileIDs {
		m.AddWriteStat(testPartition, metadata.WriteStat{FileID: id, NumWrites: 1})
	}
	return m
}

func (b *testBuilder) encode(v interface{}) []byte {
	data, err := metadata.Encode(v)
	require.Nil(b.t, err)
	return data
}

func (b *testBuilder) requested(action timeline.Action, payload []byte) timeline.Instant {
	inst, err := b.at.CreateRequested(action, b.nextTs(), payload)
	require.Nil(b.t, err)
	return inst
}

func (b *testBuilder) inflight(inst timeline.Instant, payload []byte) timeline.Instant {
	inst, err := b.at.TransitionInflight(inst, payload)
	require.Nil(b.t, err)
	return inst
}

func (b *testBuilder) complete(inst timeline.Instant, payload []byte) timeline.Instant {
	if inst.IsRequested() {
		inst = b.inflight(inst, nil)
	}
	inst, err := b.at.TransitionComplete(inst, payload)
	require.Nil(b.t, err)
	return inst
}

// inflightCommit starts a commit that has not written anything yet.
func (b *testBuilder) inflightCommit() timeline.Instant {
	return b.inflight(b.requested(timeline.Commit, nil), nil)
}

func (b *testBuilder) completeCommit(inst timeline.Instant, fileIDs ...string) timeline.Instant {
	return b.complete(inst, b.encode(commitMetadata(fileIDs...)))
}

func (b *testBuilder) commit(fileIDs ...string) timeline.Instant {
	return b.completeCommit(b.inflightCommit(), fileIDs...)
}

func (b *testBuilder) compactionRequested(fileIDs ...string) timeline.Instant {
	plan := &metadata.CompactionPlan{Version: 1}
	for _, id := range fileIDs {
		plan.Operations = append(plan.Operations, metadata.CompactionOperation{PartitionPath: testPartition, FileID: id})
	}
	return b.requested(timeline.Compaction, b.encode(plan))
}

func (b *testBuilder) completeCompaction(inst timeline.Instant, fileIDs ...string) timeline.Instant {
	m := commitMetadata(fileIDs...)
	m.OperationType = metadata.Compact
	m.Compacted = true
	return b.complete(inst, b.encode(m))
}

func (b *testBuilder) compaction(fileIDs ...string) timeline.Instant {
	return b.completeCompaction(b.compactionRequested(fileIDs...), fileIDs...)
}

func (b *testBuilder) clusterRequested(fileIDs ...string) timeline.Instant {
	group := metadata.ClusteringGroup{NumOutputFileGroups: 1}
	for _, id := range fileIDs {
		group.Slices = append(group.Slices, metadata.FileSlice{PartitionPath: testPartition, FileID: id})
	}
	req := &metadata.RequestedReplaceMetadata{
		OperationType:  metadata.Cluster,
		ClusteringPlan: &metadata.ClusteringPlan{InputGroups: []metadata.ClusteringGroup{group}, Version: 1},
		Version:        1,
	}
	return b.requested(timeline.Cluster, b.encode(req))
}

// completeReplace completes a replace or clustering that wrote one new file group and replaced fileIDs.
func (b *testBuilder) completeReplace(inst timeline.Instant, op metadata.WriteOperationType, fileIDs ...string) timeline.Instant {
	m := metadata.NewReplaceCommitMetadata(op)
	m.AddWriteStat(testPartition, metadata.WriteStat{FileID: "new-" + inst.Timestamp})
	for _, id := range fileIDs {
		m.AddReplaceFileID(testPartition, id)
	}
	return b.complete(inst, b.encode(m))
}

func (b *testBuilder) cluster(fileIDs ...string) timeline.Instant {
	return b.completeReplace(b.clusterRequested(fileIDs...), metadata.Cluster, fileIDs...)
}

func (b *testBuilder) replaceRequested() timeline.Instant {
	return b.requested(timeline.Replace, b.encode(&metadata.RequestedReplaceMetadata{OperationType: metadata.InsertOverwrite}))
}

func (b *testBuilder) replace(fileIDs ...string) timeline.Instant {
	return b.completeReplace(b.replaceRequested(), metadata.InsertOverwrite, fileIDs...)
}

// replaceInflight starts an insert overwrite whose inflight entry already lists the file groups it writes.
func (b *testBuilder) replaceInflight(fileIDs ...string) timeline.Instant {
	m := metadata.NewReplaceCommitMetadata(metadata.InsertOverwrite)
	for _, id := range fileIDs {
		m.AddWriteStat(testPartition, metadata.WriteStat{FileID: id})
	}
	return b.inflight(b.replaceRequested(), b.encode(m))
}

func (b *testBuilder) candidates(strategy ConflictResolutionStrategy, current timeline.Instant, lastSuccessful *timeline.Instant) []timeline.Instant {
	it, err := strategy.CandidateInstants(b.at, current, lastSuccessful)
	require.Nil(b.t, err)
	return it.Collect()
}

func (b *testBuilder) operation(inst timeline.Instant) *ConcurrentOperation {
	op, err := NewConcurrentOperation(b.at, inst)
	require.Nil(b.t, err)
	return op
}

func allStrategies(t *testing.T, f func(t *testing.T, strategy ConflictResolutionStrategy)) {
	for _, s := range []ConflictResolutionStrategy{NewSimpleConcurrentFileWrites(), NewStateTransitionTimeBased()} {
		s := s
		t.Run(fmt.Sprintf("%T", s), func(t *testing.T) {
			f(t, s)
		})
	}
}
