package transaction

import (
	"github.com/pingcap-incubator/tinytable/table/config"
	"github.com/pingcap-incubator/tinytable/table/timeline"
)

// StateTransitionTimeBased checks a writer against every operation that completed after it started, whenever that
// operation was created. It catches writers that start before and finish after the current one.
type StateTransitionTimeBased struct {
	windowStrategy
}

func NewStateTransitionTimeBased() *StateTransitionTimeBased {
	return &StateTransitionTimeBased{windowStrategy{
		name:       config.StateTransitionStrategy,
		windowTime: completionTime,
	}}
}

func completionTime(inst timeline.Instant) string {
	if inst.CompletionTime != "" {
		return inst.CompletionTime
	}
	return inst.Timestamp
}
