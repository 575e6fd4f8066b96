package changedata

import (
	"fmt"
	"reflect"
)

// ValueState says what a key resolved to at one of the two points a
// diff compares.
type ValueState uint8

const (
	// ValuePresent means the key resolved to a live value.
	ValuePresent ValueState = iota
	// ValueDeleted means the key resolved to a tombstone.
	ValueDeleted
	// ValueNonExistent means no record resolved, either because the key
	// was never written or because nothing existed as of the lookup
	// time.
	ValueNonExistent
)

func (s ValueState) String() string {
	switch s {
	case ValuePresent:
		return "present"
	case ValueDeleted:
		return "deleted"
	case ValueNonExistent:
		return "non-existent"
	}
	return "unknown"
}

// DiffValue is one side of a diff entry: a value when State is
// ValuePresent, the zero value otherwise.
type DiffValue[V any] struct {
	State ValueState
	Value V
}

func (d DiffValue[V]) String() string {
	switch d.State {
	case ValueDeleted:
		return "DELETED"
	case ValueNonExistent:
		return "NON_EXISTENT"
	}
	return fmt.Sprintf("%v", d.Value)
}

// DiffEntry pairs what a key resolves to now (under the map's own
// lookup) with what it resolves to under the compared lookup.
type DiffEntry[V any] struct {
	Current  DiffValue[V]
	Compared DiffValue[V]
}

// Diff returns the keys that resolve differently under the map's
// configured lookup than under policy p. at is the lookup time for
// AsOfTime and ignored otherwise. Since histories are never rewritten,
// diffing two lookup points never needs more than the one map.
func (m *Map[K, V]) Diff(p LookupPolicy, at int64) (map[K]DiffEntry[V], error) {
	out := map[K]DiffEntry[V]{}
	err := m.DiffIter(p, at, func(k K, current, compared DiffValue[V]) (bool, error) {
		out[k] = DiffEntry[V]{Current: current, Compared: compared}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DiffIter invokes f for each key that resolves differently under the
// map's configured lookup than under policy p, in the order keys first
// appeared. f returns whether iteration should continue; an error from
// f aborts the iteration and is returned wrapped.
func (m *Map[K, V]) DiffIter(p LookupPolicy, at int64, f func(k K, current, compared DiffValue[V]) (bool, error)) error {
	if !p.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPolicy, p)
	}
	curP, curAt, err := m.activeLookup()
	if err != nil {
		return err
	}
	for _, k := range m.order {
		current := m.diffValueAt(k, curP, curAt)
		compared := m.diffValueAt(k, p, at)
		if diffValueEqual(current, compared) {
			continue
		}
		keepGoing, err := f(k, current, compared)
		if err != nil {
			return fmt.Errorf("callback: %w", err)
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

func (m *Map[K, V]) diffValueAt(k K, p LookupPolicy, at int64) DiffValue[V] {
	rec, ok := m.resolveAt(k, p, at)
	if !ok {
		return DiffValue[V]{State: ValueNonExistent}
	}
	if rec.Deleted {
		return DiffValue[V]{State: ValueDeleted}
	}
	return DiffValue[V]{State: ValuePresent, Value: rec.Value}
}

func diffValueEqual[V any](a, b DiffValue[V]) bool {
	if a.State != b.State {
		return false
	}
	if a.State != ValuePresent {
		return true
	}
	return reflect.DeepEqual(a.Value, b.Value)
}
