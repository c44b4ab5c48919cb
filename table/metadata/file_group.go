package metadata

import (
	"sort"
)

// FileGroupID names a file group: the unit at which writes conflict.
type FileGroupID struct {
	PartitionPath string `json:"partitionPath"`
	FileID        string `json:"fileId"`
}

func (id FileGroupID) String() string {
	return id.PartitionPath + "/" + id.FileID
}

// FileGroupSet is a set of file groups.
type FileGroupSet map[FileGroupID]struct{}

// NewFileGroupSet creates a set holding ids.
func NewFileGroupSet(ids ...FileGroupID) FileGroupSet {
	s := make(FileGroupSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s FileGroupSet) Add(id FileGroupID) {
	s[id] = struct{}{}
}

func (s FileGroupSet) Contains(id FileGroupID) bool {
	_, ok := s[id]
	return ok
}

// Union adds every member of other to s.
func (s FileGroupSet) Union(other FileGroupSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Intersection returns the members present in both sets.
func (s FileGroupSet) Intersection(other FileGroupSet) FileGroupSet {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	out := make(FileGroupSet)
	for id := range small {
		if large.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

// Sorted returns the members ordered by partition, then file id.
func (s FileGroupSet) Sorted() []FileGroupID {
	ids := make([]FileGroupID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].PartitionPath != ids[j].PartitionPath {
			return ids[i].PartitionPath < ids[j].PartitionPath
		}
		return ids[i].FileID < ids[j].FileID
	})
	return ids
}
