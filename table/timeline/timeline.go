package timeline

import (
	"sort"
	"strings"
	"sync"

	"github.com/pingcap-incubator/tinytable/table/storage"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// ErrInvalidTransition is the cause of every error returned for a state transition that breaks the
// REQUESTED -> INFLIGHT -> COMPLETED order.
var ErrInvalidTransition = errors.New("timeline: invalid state transition")

// Timeline is an immutable snapshot of a table's operations. Every operation appears once, in its latest state,
// ordered by creation timestamp and then action.
type Timeline struct {
	instants []Instant
	base     storage.Base
	prefix   string
}

func newTimeline(instants []Instant, base storage.Base, prefix string) *Timeline {
	return &Timeline{instants: instants, base: base, prefix: prefix}
}

// Instants returns a copy of the instants in timeline order.
func (t *Timeline) Instants() []Instant {
	return append([]Instant(nil), t.instants...)
}

func (t *Timeline) Len() int {
	return len(t.instants)
}

// Filter returns the sub-timeline of instants matching pred.
func (t *Timeline) Filter(pred func(Instant) bool) *Timeline {
	var out []Instant
	for _, inst := range t.instants {
		if pred(inst) {
			out = append(out, inst)
		}
	}
	return newTimeline(out, t.base, t.prefix)
}

// FilterWrites keeps the instants that mutate file groups.
func (t *Timeline) FilterWrites() *Timeline {
	return t.Filter(func(inst Instant) bool { return inst.Action.IsWrite() })
}

func (t *Timeline) FilterCompleted() *Timeline {
	return t.Filter(Instant.IsCompleted)
}

// FilterPending keeps the REQUESTED and INFLIGHT instants.
func (t *Timeline) FilterPending() *Timeline {
	return t.Filter(Instant.IsPending)
}

// Get looks an operation up by identity.
func (t *Timeline) Get(id ID) (Instant, bool) {
	i := sort.Search(len(t.instants), func(i int) bool {
		return !instantIDLess(t.instants[i].ID(), id)
	})
	if i < len(t.instants) && t.instants[i].ID() == id {
		return t.instants[i], true
	}
	return Instant{}, false
}

func (t *Timeline) Contains(id ID) bool {
	_, ok := t.Get(id)
	return ok
}

// Iterator returns a lazy iterator over the instants matching pred. A nil pred matches everything.
func (t *Timeline) Iterator(pred func(Instant) bool) *Iterator {
	return newIterator(t.instants, pred)
}

// Payload returns the payload stored with the entry recording inst in state. The error's cause is
// storage.ErrNotFound when no such entry exists.
func (t *Timeline) Payload(inst Instant, state State) ([]byte, error) {
	value, err := t.base.Load(EncodeKey(t.prefix, inst.WithState(state)))
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", inst.WithState(state))
	}
	e, err := ParseEntry(value)
	if err != nil {
		return nil, errors.Annotatef(err, "decode %s", inst.WithState(state))
	}
	return e.Payload, nil
}

func instantIDLess(a, b ID) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.Action < b.Action
}

// ActiveTimeline is the reloadable timeline of one table. Other writers append to the same store, so callers Reload
// before every decision that depends on what others have done.
type ActiveTimeline struct {
	mu       sync.RWMutex
	base     storage.Base
	table    string
	prefix   string
	snapshot *Timeline
	newTime  func() string
}

// Option configures an ActiveTimeline.
type Option func(*ActiveTimeline)

// WithClock replaces the source of completion times.
func WithClock(clock func() string) Option {
	return func(at *ActiveTimeline) {
		at.newTime = clock
	}
}

// OpenActiveTimeline loads the timeline of table from base.
func OpenActiveTimeline(base storage.Base, table string, opts ...Option) (*ActiveTimeline, error) {
	at := &ActiveTimeline{
		base:    base,
		table:   table,
		prefix:  table + "/",
		newTime: NewInstantTime,
	}
	for _, opt := range opts {
		opt(at)
	}
	if _, err := at.Reload(); err != nil {
		return nil, err
	}
	return at, nil
}

func (at *ActiveTimeline) Table() string {
	return at.table
}

// Snapshot returns the timeline as of the last Reload.
func (at *ActiveTimeline) Snapshot() *Timeline {
	at.mu.RLock()
	defer at.mu.RUnlock()
	return at.snapshot
}

// Reload re-reads every entry of the table and returns the fresh snapshot.
func (at *ActiveTimeline) Reload() (*Timeline, error) {
	kvs, err := at.base.Scan([]byte(at.prefix))
	if err != nil {
		return nil, errors.Annotatef(err, "scan timeline of %s", at.table)
	}
	latest := make(map[ID]Instant, len(kvs))
	for _, kv := range kvs {
		inst, err := DecodeKey(strings.TrimPrefix(string(kv.Key), at.prefix))
		if err != nil {
			log.Warn("skip unrecognized timeline entry", zap.String("table", at.table), zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		if inst.IsCompleted() {
			e, err := ParseEntry(kv.Value)
			if err != nil {
				return nil, errors.Annotatef(err, "decode %s", inst)
			}
			inst.CompletionTime = e.CompletionTime
		}
		if prev, ok := latest[inst.ID()]; !ok || prev.State < inst.State {
			latest[inst.ID()] = inst
		}
	}
	instants := make([]Instant, 0, len(latest))
	for _, inst := range latest {
		instants = append(instants, inst)
	}
	sort.Slice(instants, func(i, j int) bool {
		return instantIDLess(instants[i].ID(), instants[j].ID())
	})

	snap := newTimeline(instants, at.base, at.prefix)
	at.mu.Lock()
	at.snapshot = snap
	at.mu.Unlock()
	return snap, nil
}

// Payload reads an entry's payload directly from the store, regardless of the loaded snapshot.
func (at *ActiveTimeline) Payload(inst Instant, state State) ([]byte, error) {
	return newTimeline(nil, at.base, at.prefix).Payload(inst, state)
}

// CreateRequested appends the REQUESTED entry of a new operation. It fails if the operation already exists.
// ts must be an instant time, otherwise Reload could not decode the entry back.
func (at *ActiveTimeline) CreateRequested(action Action, ts string, payload []byte) (Instant, error) {
	if _, err := ParseInstantTime(ts); err != nil {
		return Instant{}, errors.Annotatef(err, "create %s", action)
	}
	inst := NewInstant(Requested, action, ts)
	if err := at.append(inst, payload); err != nil {
		return Instant{}, err
	}
	return inst, nil
}

// TransitionInflight appends the INFLIGHT entry of a requested operation.
func (at *ActiveTimeline) TransitionInflight(inst Instant, payload []byte) (Instant, error) {
	if err := at.requirePrevious(inst, Requested); err != nil {
		return Instant{}, err
	}
	next := inst.WithState(Inflight)
	if err := at.append(next, payload); err != nil {
		return Instant{}, err
	}
	return next, nil
}

// TransitionComplete appends the COMPLETED entry of an inflight operation, stamped with a completion time from the
// timeline's clock.
func (at *ActiveTimeline) TransitionComplete(inst Instant, payload []byte) (Instant, error) {
	if err := at.requirePrevious(inst, Inflight); err != nil {
		return Instant{}, err
	}
	next := inst.WithState(Completed)
	next.CompletionTime = at.newTime()
	if _, err := ParseInstantTime(next.CompletionTime); err != nil {
		return Instant{}, errors.Annotatef(err, "complete %s", inst.ID())
	}
	if err := at.append(next, payload); err != nil {
		return Instant{}, err
	}
	return next, nil
}

func (at *ActiveTimeline) requirePrevious(inst Instant, prev State) error {
	_, err := at.base.Load(EncodeKey(at.prefix, inst.WithState(prev)))
	if errors.Cause(err) == storage.ErrNotFound {
		return errors.Annotatef(ErrInvalidTransition, "%s has no %s entry", inst.ID(), prev)
	}
	return errors.Trace(err)
}

func (at *ActiveTimeline) append(inst Instant, payload []byte) error {
	e := &Entry{CompletionTime: inst.CompletionTime, Payload: payload}
	err := at.base.Create(EncodeKey(at.prefix, inst), e.ToBytes())
	if errors.Cause(err) == storage.ErrKeyExists {
		return errors.Annotatef(ErrInvalidTransition, "%s already exists", inst)
	}
	if err != nil {
		return errors.Annotatef(err, "append %s", inst)
	}
	log.Debug("timeline entry appended", zap.String("table", at.table), zap.Stringer("instant", inst))
	return nil
}
