package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

// Action is the kind of operation an instant records. The strings are shared with every writer of the table and must
// not change.
type Action string

const (
	Commit      Action = "COMMIT"
	DeltaCommit Action = "DELTA_COMMIT"
	Compaction  Action = "COMPACTION"
	Replace     Action = "REPLACE"
	Cluster     Action = "CLUSTER"
	Clean       Action = "CLEAN"
	Rollback    Action = "ROLLBACK"
)

// WriteActions are the actions that mutate file groups and therefore take part in conflict checks.
var WriteActions = []Action{Commit, DeltaCommit, Compaction, Replace, Cluster}

// IsWrite reports whether the action mutates file groups.
func (a Action) IsWrite() bool {
	switch a {
	case Commit, DeltaCommit, Compaction, Replace, Cluster:
		return true
	}
	return false
}

// ParseAction checks that s names a known action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case Commit, DeltaCommit, Compaction, Replace, Cluster, Clean, Rollback:
		return a, nil
	}
	return "", errors.Errorf("unknown action %q", s)
}

// State is the lifecycle state of an instant. States are ordered: an operation moves from Requested through Inflight
// to Completed and never back.
type State int

const (
	Requested State = iota + 1
	Inflight
	Completed
)

func (s State) String() string {
	switch s {
	case Requested:
		return "REQUESTED"
	case Inflight:
		return "INFLIGHT"
	case Completed:
		return "COMPLETED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	switch s {
	case "REQUESTED":
		return Requested, nil
	case "INFLIGHT":
		return Inflight, nil
	case "COMPLETED":
		return Completed, nil
	}
	return 0, errors.Errorf("unknown state %q", s)
}

// ID identifies one logical operation across all of its state transitions.
type ID struct {
	Timestamp string
	Action    Action
}

func (id ID) String() string {
	return id.Timestamp + "." + string(id.Action)
}

// Instant is one logical operation of the table in its latest known state.
type Instant struct {
	State     State
	Action    Action
	Timestamp string
	// CompletionTime is set on completed instants only. It comes from the same clock as Timestamp but is taken when
	// the operation finished, so completion order may differ from creation order.
	CompletionTime string
}

// NewInstant creates an instant without a completion time.
func NewInstant(state State, action Action, ts string) Instant {
	return Instant{State: state, Action: action, Timestamp: ts}
}

func (i Instant) ID() ID {
	return ID{Timestamp: i.Timestamp, Action: i.Action}
}

func (i Instant) IsRequested() bool { return i.State == Requested }

func (i Instant) IsInflight() bool { return i.State == Inflight }

func (i Instant) IsCompleted() bool { return i.State == Completed }

// IsPending reports whether the operation has not completed yet.
func (i Instant) IsPending() bool { return i.State == Requested || i.State == Inflight }

// WithState returns a copy of the instant moved to state. The completion time is dropped unless the new state is
// Completed.
func (i Instant) WithState(state State) Instant {
	i.State = state
	if state != Completed {
		i.CompletionTime = ""
	}
	return i
}

func (i Instant) String() string {
	return fmt.Sprintf("[%s__%s__%s]", i.Timestamp, i.Action, i.State)
}

// InstantTimeFormat lays out instant times as yyyyMMddHHmmssSSS once the dot is removed.
const InstantTimeFormat = "20060102150405.000"

// InstantTimeLength is the width of every instant time.
const InstantTimeLength = 17

// lastInstantTime holds the last issued instant time in Unix milliseconds.
var lastInstantTime = atomic.NewInt64(0)

// NewInstantTime returns a fresh instant time from the wall clock. Times returned within one process are strictly
// increasing even when the clock stalls or steps back.
func NewInstantTime() string {
	for {
		last := lastInstantTime.Load()
		now := time.Now().UnixNano() / int64(time.Millisecond)
		if now <= last {
			now = last + 1
		}
		if lastInstantTime.CAS(last, now) {
			return FormatInstantTime(time.Unix(0, now*int64(time.Millisecond)))
		}
	}
}

// FormatInstantTime renders t as an instant time.
func FormatInstantTime(t time.Time) string {
	return strings.Replace(t.Format(InstantTimeFormat), ".", "", 1)
}

// ParseInstantTime is the inverse of FormatInstantTime.
func ParseInstantTime(ts string) (time.Time, error) {
	if len(ts) != InstantTimeLength {
		return time.Time{}, errors.Errorf("instant time %q must have %d digits", ts, InstantTimeLength)
	}
	t, err := time.ParseInLocation(InstantTimeFormat, ts[:14]+"."+ts[14:], time.Local)
	return t, errors.Trace(err)
}
