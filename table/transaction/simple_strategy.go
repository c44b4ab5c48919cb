package transaction

import (
	"github.com/pingcap-incubator/tinytable/table/config"
	"github.com/pingcap-incubator/tinytable/table/timeline"
)

// SimpleConcurrentFileWrites checks a writer against every operation created after it started. Operations created
// earlier are assumed to have been seen by the writer.
type SimpleConcurrentFileWrites struct {
	windowStrategy
}

func NewSimpleConcurrentFileWrites() *SimpleConcurrentFileWrites {
	return &SimpleConcurrentFileWrites{windowStrategy{
		name:       config.SimpleStrategy,
		windowTime: func(inst timeline.Instant) string { return inst.Timestamp },
	}}
}
