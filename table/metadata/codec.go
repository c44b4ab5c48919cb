package metadata

import (
	"encoding/json"

	"github.com/pingcap/errors"
)

// Encode serializes any metadata payload as JSON.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	return data, errors.Trace(err)
}

func DecodeCommitMetadata(data []byte) (*CommitMetadata, error) {
	m := &CommitMetadata{}
	if err := decode(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

func DecodeReplaceCommitMetadata(data []byte) (*ReplaceCommitMetadata, error) {
	m := &ReplaceCommitMetadata{}
	if err := decode(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

func DecodeCompactionPlan(data []byte) (*CompactionPlan, error) {
	p := &CompactionPlan{}
	if err := decode(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

func DecodeClusteringPlan(data []byte) (*ClusteringPlan, error) {
	p := &ClusteringPlan{}
	if err := decode(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

func DecodeRequestedReplaceMetadata(data []byte) (*RequestedReplaceMetadata, error) {
	m := &RequestedReplaceMetadata{}
	if err := decode(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// decode rejects empty input: an entry without a payload has no metadata to decode.
func decode(data []byte, v interface{}) error {
	if len(data) == 0 {
		return errors.New("metadata: empty payload")
	}
	return errors.Trace(json.Unmarshal(data, v))
}
