package transaction

import (
	"github.com/pingcap-incubator/tinytable/table/metadata"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap/errors"
)

// PayloadSource reads the payload of one timeline entry. Both timeline.Timeline and timeline.ActiveTimeline
// implement it.
type PayloadSource interface {
	Payload(inst timeline.Instant, state timeline.State) ([]byte, error)
}

// ConcurrentOperation is an operation seen from the point of view of conflict detection: which instant it is and
// which file groups it mutates.
type ConcurrentOperation struct {
	instant       timeline.Instant
	operationType metadata.WriteOperationType
	fileGroups    metadata.FileGroupSet
}

// NewConcurrentOperation derives the mutated file groups of inst from its persisted payloads.
func NewConcurrentOperation(src PayloadSource, inst timeline.Instant) (*ConcurrentOperation, error) {
	op := &ConcurrentOperation{instant: inst, operationType: metadata.UnknownOperation}
	var err error
	switch inst.Action {
	case timeline.Commit, timeline.DeltaCommit:
		err = op.loadCommit(src)
	case timeline.Replace:
		err = op.loadReplace(src)
	case timeline.Cluster:
		err = op.loadCluster(src)
	case timeline.Compaction:
		err = op.loadCompaction(src)
	default:
		err = errors.Errorf("action %s does not write file groups", inst.Action)
	}
	if err != nil {
		return nil, &ErrMetadataLoad{Instant: inst, Err: err}
	}
	return op, nil
}

// NewConcurrentOperationFromMetadata describes the caller's own operation, whose metadata is not persisted yet.
func NewConcurrentOperationFromMetadata(inst timeline.Instant, m *metadata.CommitMetadata) *ConcurrentOperation {
	op := &ConcurrentOperation{instant: inst, operationType: metadata.UnknownOperation, fileGroups: make(metadata.FileGroupSet)}
	if m != nil {
		op.operationType = m.OperationType
		op.fileGroups = m.WrittenFileGroups()
	}
	return op
}

func (op *ConcurrentOperation) Instant() timeline.Instant {
	return op.instant
}

func (op *ConcurrentOperation) Action() timeline.Action {
	return op.instant.Action
}

func (op *ConcurrentOperation) Timestamp() string {
	return op.instant.Timestamp
}

func (op *ConcurrentOperation) OperationType() metadata.WriteOperationType {
	return op.operationType
}

// MutatedFileGroups returns the file groups the operation writes, replaces or has reserved. The set must not be
// modified.
func (op *ConcurrentOperation) MutatedFileGroups() metadata.FileGroupSet {
	return op.fileGroups
}

func (op *ConcurrentOperation) String() string {
	return op.instant.String()
}

func (op *ConcurrentOperation) loadCommit(src PayloadSource) error {
	data, err := src.Payload(op.instant, op.instant.State)
	if err != nil {
		return err
	}
	if len(data) == 0 && op.instant.IsPending() {
		// Nothing has been written yet.
		op.fileGroups = make(metadata.FileGroupSet)
		return nil
	}
	m, err := metadata.DecodeCommitMetadata(data)
	if err != nil {
		return err
	}
	op.operationType = m.OperationType
	op.fileGroups = m.WrittenFileGroups()
	return nil
}

func (op *ConcurrentOperation) loadReplace(src PayloadSource) error {
	if op.instant.IsCompleted() {
		return op.loadReplaceCommit(src, timeline.Completed)
	}
	op.fileGroups = make(metadata.FileGroupSet)
	if op.instant.IsInflight() {
		data, err := src.Payload(op.instant, timeline.Inflight)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			return op.loadReplaceCommit(src, timeline.Inflight)
		}
	}
	data, err := src.Payload(op.instant, timeline.Requested)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	req, err := metadata.DecodeRequestedReplaceMetadata(data)
	if err != nil {
		return err
	}
	op.operationType = req.OperationType
	if req.ClusteringPlan != nil {
		op.fileGroups = req.ClusteringPlan.FileGroups()
	}
	return nil
}

func (op *ConcurrentOperation) loadReplaceCommit(src PayloadSource, state timeline.State) error {
	data, err := src.Payload(op.instant, state)
	if err != nil {
		return err
	}
	m, err := metadata.DecodeReplaceCommitMetadata(data)
	if err != nil {
		return err
	}
	op.operationType = m.OperationType
	op.fileGroups = m.MutatedFileGroups()
	return nil
}

func (op *ConcurrentOperation) loadCluster(src PayloadSource) error {
	if op.instant.IsCompleted() {
		return op.loadReplaceCommit(src, timeline.Completed)
	}
	data, err := src.Payload(op.instant, timeline.Requested)
	if err != nil {
		return err
	}
	req, err := metadata.DecodeRequestedReplaceMetadata(data)
	if err != nil {
		return err
	}
	if req.ClusteringPlan == nil {
		return errors.New("requested clustering has no plan")
	}
	op.operationType = metadata.Cluster
	op.fileGroups = req.ClusteringPlan.FileGroups()
	return nil
}

// loadCompaction reads the plan, which fixes the target file groups when the compaction is scheduled.
func (op *ConcurrentOperation) loadCompaction(src PayloadSource) error {
	data, err := src.Payload(op.instant, timeline.Requested)
	if err != nil {
		return err
	}
	plan, err := metadata.DecodeCompactionPlan(data)
	if err != nil {
		return err
	}
	op.operationType = metadata.Compact
	op.fileGroups = plan.FileGroups()
	if !op.instant.IsCompleted() {
		return nil
	}
	data, err = src.Payload(op.instant, timeline.Completed)
	if err != nil {
		return err
	}
	m, err := metadata.DecodeCommitMetadata(data)
	if err != nil {
		return err
	}
	op.fileGroups.Union(m.WrittenFileGroups())
	return nil
}
