package timeline

// Iterator walks the instants of a snapshot that satisfy a predicate. The predicate is evaluated lazily as the
// iterator advances. An Iterator is single pass and not safe for concurrent use.
type Iterator struct {
	instants []Instant
	pred     func(Instant) bool
	pos      int
}

func newIterator(instants []Instant, pred func(Instant) bool) *Iterator {
	it := &Iterator{instants: instants, pred: pred, pos: -1}
	it.Next()
	return it
}

// EmptyIterator returns an iterator with no items.
func EmptyIterator() *Iterator {
	return &Iterator{}
}

// Valid reports whether Item may be called.
func (it *Iterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.instants)
}

// Item returns the current instant.
func (it *Iterator) Item() Instant {
	return it.instants[it.pos]
}

// Next moves to the next matching instant.
func (it *Iterator) Next() {
	for it.pos++; it.pos < len(it.instants); it.pos++ {
		if it.pred == nil || it.pred(it.instants[it.pos]) {
			return
		}
	}
}

// Collect drains the remaining items into a slice.
func (it *Iterator) Collect() []Instant {
	var out []Instant
	for ; it.Valid(); it.Next() {
		out = append(out, it.Item())
	}
	return out
}
