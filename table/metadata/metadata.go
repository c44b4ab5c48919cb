package metadata

// WriteOperationType is the operation a commit was produced by.
type WriteOperationType string

const (
	Insert               WriteOperationType = "insert"
	Upsert               WriteOperationType = "upsert"
	BulkInsert           WriteOperationType = "bulk_insert"
	Delete               WriteOperationType = "delete"
	InsertOverwrite      WriteOperationType = "insert_overwrite"
	InsertOverwriteTable WriteOperationType = "insert_overwrite_table"
	DeletePartition      WriteOperationType = "delete_partition"
	Cluster              WriteOperationType = "cluster"
	Compact              WriteOperationType = "compact"
	UnknownOperation     WriteOperationType = "unknown"
)

// WriteStat describes the output of one file group in a commit.
type WriteStat struct {
	FileID          string `json:"fileId"`
	PartitionPath   string `json:"partitionPath"`
	Path            string `json:"path"`
	PrevCommit      string `json:"prevCommit"`
	NumWrites       int64  `json:"numWrites"`
	NumDeletes      int64  `json:"numDeletes"`
	NumUpdateWrites int64  `json:"numUpdateWrites"`
	TotalWriteBytes int64  `json:"totalWriteBytes"`
}

// CommitMetadata is the payload of a commit or delta commit.
type CommitMetadata struct {
	PartitionToWriteStats map[string][]WriteStat `json:"partitionToWriteStats"`
	Compacted             bool                   `json:"compacted"`
	ExtraMetadata         map[string]string      `json:"extraMetadata,omitempty"`
	OperationType         WriteOperationType     `json:"operationType"`
}

// NewCommitMetadata creates empty commit metadata for op.
func NewCommitMetadata(op WriteOperationType) *CommitMetadata {
	return &CommitMetadata{
		PartitionToWriteStats: make(map[string][]WriteStat),
		OperationType:         op,
	}
}

// AddWriteStat records that the commit wrote stat under partition.
func (m *CommitMetadata) AddWriteStat(partition string, stat WriteStat) {
	if m.PartitionToWriteStats == nil {
		m.PartitionToWriteStats = make(map[string][]WriteStat)
	}
	stat.PartitionPath = partition
	m.PartitionToWriteStats[partition] = append(m.PartitionToWriteStats[partition], stat)
}

// WrittenFileGroups returns the file groups the commit wrote to.
func (m *CommitMetadata) WrittenFileGroups() FileGroupSet {
	s := make(FileGroupSet)
	for partition, stats := range m.PartitionToWriteStats {
		for _, stat := range stats {
			s.Add(FileGroupID{PartitionPath: partition, FileID: stat.FileID})
		}
	}
	return s
}

// ReplaceCommitMetadata is the payload of a completed replace or clustering. Besides the file groups it wrote, it
// lists the file groups it replaced.
type ReplaceCommitMetadata struct {
	CommitMetadata
	PartitionToReplaceFileIDs map[string][]string `json:"partitionToReplaceFileIds"`
}

// NewReplaceCommitMetadata creates empty replace metadata for op.
func NewReplaceCommitMetadata(op WriteOperationType) *ReplaceCommitMetadata {
	return &ReplaceCommitMetadata{
		CommitMetadata:            *NewCommitMetadata(op),
		PartitionToReplaceFileIDs: make(map[string][]string),
	}
}

// AddReplaceFileID records that fileID of partition was replaced.
func (m *ReplaceCommitMetadata) AddReplaceFileID(partition, fileID string) {
	if m.PartitionToReplaceFileIDs == nil {
		m.PartitionToReplaceFileIDs = make(map[string][]string)
	}
	m.PartitionToReplaceFileIDs[partition] = append(m.PartitionToReplaceFileIDs[partition], fileID)
}

func (m *ReplaceCommitMetadata) ReplacedFileGroups() FileGroupSet {
	s := make(FileGroupSet)
	for partition, ids := range m.PartitionToReplaceFileIDs {
		for _, id := range ids {
			s.Add(FileGroupID{PartitionPath: partition, FileID: id})
		}
	}
	return s
}

// MutatedFileGroups is the union of written and replaced file groups.
func (m *ReplaceCommitMetadata) MutatedFileGroups() FileGroupSet {
	s := m.WrittenFileGroups()
	s.Union(m.ReplacedFileGroups())
	return s
}

// CompactionOperation compacts one file slice.
type CompactionOperation struct {
	BaseInstantTime string             `json:"baseInstantTime"`
	DeltaFilePaths  []string           `json:"deltaFilePaths"`
	DataFilePath    string             `json:"dataFilePath,omitempty"`
	FileID          string             `json:"fileId"`
	PartitionPath   string             `json:"partitionPath"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// CompactionPlan is the payload of a REQUESTED compaction. The set of file groups it targets is fixed when it is
// scheduled.
type CompactionPlan struct {
	Operations    []CompactionOperation `json:"operations"`
	ExtraMetadata map[string]string     `json:"extraMetadata,omitempty"`
	Version       int                   `json:"version"`
}

func (p *CompactionPlan) FileGroups() FileGroupSet {
	s := make(FileGroupSet)
	for _, op := range p.Operations {
		s.Add(FileGroupID{PartitionPath: op.PartitionPath, FileID: op.FileID})
	}
	return s
}

// FileSlice is one input of a clustering group.
type FileSlice struct {
	PartitionPath  string   `json:"partitionPath"`
	FileID         string   `json:"fileId"`
	DataFilePath   string   `json:"dataFilePath,omitempty"`
	DeltaFilePaths []string `json:"deltaFilePaths,omitempty"`
}

// ClusteringGroup is a set of file slices rewritten together.
type ClusteringGroup struct {
	Slices              []FileSlice        `json:"slices"`
	NumOutputFileGroups int                `json:"numOutputFileGroups"`
	Metrics             map[string]float64 `json:"metrics,omitempty"`
}

// ClusteringStrategy names the rewrite strategy and its parameters.
type ClusteringStrategy struct {
	Class  string            `json:"strategyClassName"`
	Params map[string]string `json:"strategyParams,omitempty"`
}

// ClusteringPlan lists the file groups a clustering rewrites.
type ClusteringPlan struct {
	InputGroups   []ClusteringGroup  `json:"inputGroups"`
	Strategy      ClusteringStrategy `json:"strategy"`
	ExtraMetadata map[string]string  `json:"extraMetadata,omitempty"`
	Version       int                `json:"version"`
}

// FileGroups returns the input file groups of every clustering group.
func (p *ClusteringPlan) FileGroups() FileGroupSet {
	s := make(FileGroupSet)
	for _, g := range p.InputGroups {
		for _, slice := range g.Slices {
			s.Add(FileGroupID{PartitionPath: slice.PartitionPath, FileID: slice.FileID})
		}
	}
	return s
}

// RequestedReplaceMetadata is the payload of a REQUESTED replace or clustering.
type RequestedReplaceMetadata struct {
	OperationType  WriteOperationType `json:"operationType"`
	ClusteringPlan *ClusteringPlan    `json:"clusteringPlan,omitempty"`
	ExtraMetadata  map[string]string  `json:"extraMetadata,omitempty"`
	Version        int                `json:"version"`
}
