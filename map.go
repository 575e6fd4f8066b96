package changedata

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"time"
)

// Config customizes a Map created by NewWithConfig or restored by
// Decode. The zero value is usable: an empty map answering Latest
// lookups, stamping wall-clock timestamps, encoding with JSON.
type Config[K comparable, V any] struct {
	// Seed provides initial entries. They are written through the normal
	// write path after PinnedTime is applied, so each entry becomes the
	// first record of its key, stamped with the pinned time. Seed
	// entries are written in ascending order of their key strings to
	// keep enumeration order deterministic.
	Seed map[K]V

	// Policy is the lookup policy reads start with. Defaults to Latest.
	Policy LookupPolicy

	// LookupTime is the initial as-of lookup time. It is required if
	// Policy is AsOfTime and rejected otherwise.
	LookupTime *int64

	// PinnedTime pins write timestamps instead of the wall clock. See
	// Map.SetPinnedTime.
	PinnedTime *int64

	// LazyUpdate suppresses writes whose value equals the key's newest
	// live record, keeping histories free of no-op changes.
	LazyUpdate bool

	// Version and Source are free-form tags stamped on every record this
	// map writes. They ride along in the encoded form but never affect
	// lookups or diffs.
	Version any
	Source  any

	// Now supplies write timestamps when no time is pinned. Defaults to
	// Unix seconds.
	Now func() int64

	// Marshal and Unmarshal replace the encoding used by Encode, Decode,
	// Digest, and default key strings. They default to encoding/json.
	Marshal   func(any) ([]byte, error)
	Unmarshal func([]byte, any) error

	// UnmarshalRegisteredTypes indicates the unmarshaler can decode
	// directly into the record structs Encode produced, like
	// encoding/gob with registered types, skipping the staged decode
	// the default JSON codec needs.
	UnmarshalRegisteredTypes bool

	// KeyToString and KeyFromString override how keys appear in the
	// encoded form. Both must be set together, and the string form must
	// be unique per key.
	KeyToString   func(K) (string, error)
	KeyFromString func(string) (K, error)

	// ResolveCache, if set, remembers as-of lookup positions. One cache
	// can be shared by any number of maps. See NewResolveCache.
	ResolveCache ResolveCache

	// Logger receives debug-level write and pin events. Nil disables
	// logging.
	Logger *slog.Logger
}

// Map remembers every value each key has ever held. Writes append
// records with strictly increasing timestamps per key; reads resolve
// one record per key according to the configured lookup policy.
// Deleting appends a tombstone rather than forgetting the key.
//
// A Map is not safe for concurrent use.
type Map[K comparable, V any] struct {
	history map[K][]Record[V]
	order   []K

	policy     LookupPolicy
	lookupTime int64
	hasLookup  bool

	pinned int64
	hasPin bool
	latest int64

	lazy    bool
	version any
	source  any

	now             func() int64
	marshal         func(any) ([]byte, error)
	unmarshal       func([]byte, any) error
	registeredTypes bool
	keyToString     func(K) (string, error)
	keyFromString   func(string) (K, error)

	cache ResolveCache
	id    uint64

	logger *slog.Logger
}

// New creates an empty Map with the default configuration.
func New[K comparable, V any]() *Map[K, V] {
	return newMap(Config[K, V]{})
}

// NewWithConfig creates a Map per cfg. The pinned time is applied
// before the seed is written.
func NewWithConfig[K comparable, V any](cfg Config[K, V]) (*Map[K, V], error) {
	if !cfg.Policy.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, cfg.Policy)
	}
	if cfg.LookupTime != nil && cfg.Policy != AsOfTime {
		return nil, fmt.Errorf("%w: lookup time requires the %s policy", ErrInvalidPolicy, AsOfTime)
	}
	if cfg.LookupTime == nil && cfg.Policy == AsOfTime {
		return nil, fmt.Errorf("%w: %s policy requires a lookup time", ErrInvalidPolicy, AsOfTime)
	}
	if (cfg.KeyToString == nil) != (cfg.KeyFromString == nil) {
		return nil, errors.New("changedata: KeyToString and KeyFromString must be set together")
	}
	m := newMap(cfg)
	if cfg.PinnedTime != nil {
		if err := m.SetPinnedTime(*cfg.PinnedTime); err != nil {
			return nil, err
		}
	}
	if err := m.seed(cfg.Seed); err != nil {
		return nil, err
	}
	if cfg.LookupTime != nil {
		m.lookupTime, m.hasLookup = *cfg.LookupTime, true
	}
	return m, nil
}

func newMap[K comparable, V any](cfg Config[K, V]) *Map[K, V] {
	m := &Map[K, V]{
		history:         map[K][]Record[V]{},
		policy:          cfg.Policy,
		lazy:            cfg.LazyUpdate,
		version:         cfg.Version,
		source:          cfg.Source,
		now:             cfg.Now,
		marshal:         cfg.Marshal,
		unmarshal:       cfg.Unmarshal,
		registeredTypes: cfg.UnmarshalRegisteredTypes,
		keyToString:     cfg.KeyToString,
		keyFromString:   cfg.KeyFromString,
		cache:           cfg.ResolveCache,
		id:              nextMapID.Add(1),
		logger:          cfg.Logger,
	}
	if m.now == nil {
		m.now = func() int64 { return time.Now().Unix() }
	}
	if m.marshal == nil {
		m.marshal = json.Marshal
	}
	if m.unmarshal == nil {
		m.unmarshal = json.Unmarshal
	}
	if m.keyToString == nil {
		m.keyToString = defaultKeyToString[K](m.marshal)
	}
	if m.keyFromString == nil {
		m.keyFromString = defaultKeyFromString[K](m.unmarshal)
	}
	return m
}

func (m *Map[K, V]) seed(entries map[K]V) error {
	if len(entries) == 0 {
		return nil
	}
	type seedKey struct {
		s string
		k K
	}
	keys := make([]seedKey, 0, len(entries))
	for k := range entries {
		s, err := m.keyString(k)
		if err != nil {
			return err
		}
		keys = append(keys, seedKey{s, k})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].s < keys[j].s })
	for _, sk := range keys {
		if err := m.Set(sk.k, entries[sk.k]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value k resolves to under the configured lookup
// policy. Keys that were never written, keys with no record as of the
// lookup time, and keys whose resolved record is a tombstone all return
// ErrNotFound.
func (m *Map[K, V]) Get(k K) (V, error) {
	var zero V
	p, at, err := m.activeLookup()
	if err != nil {
		return zero, err
	}
	rec, ok := m.resolveAt(k, p, at)
	if !ok || rec.Deleted {
		return zero, fmt.Errorf("%w: %v", ErrNotFound, k)
	}
	return rec.Value, nil
}

// Resolve returns the record k resolves to under the configured lookup
// policy, tombstones included. ok is false if no record resolves.
func (m *Map[K, V]) Resolve(k K) (Record[V], bool) {
	p, at, err := m.activeLookup()
	if err != nil {
		return Record[V]{}, false
	}
	return m.resolveAt(k, p, at)
}

// Has reports whether Get would succeed for k.
func (m *Map[K, V]) Has(k K) bool {
	_, err := m.Get(k)
	return err == nil
}

// Set appends a record for k valued v. The record is stamped with the
// pinned time if one is set, the current wall clock otherwise; the
// stamp must be after k's newest record or the write is rejected with
// ErrOutOfOrder, leaving the history untouched. With lazy updating, a
// write equal to k's newest live value appends nothing and returns nil.
func (m *Map[K, V]) Set(k K, v V) error {
	hist := m.history[k]
	if m.lazy && len(hist) > 0 {
		if last := hist[len(hist)-1]; !last.Deleted && reflect.DeepEqual(last.Value, v) {
			m.logDebug("set suppressed", "key", k)
			return nil
		}
	}
	ts, err := m.assignTime(hist)
	if err != nil {
		return fmt.Errorf("set %v: %w", k, err)
	}
	if len(hist) == 0 {
		m.order = append(m.order, k)
	}
	m.history[k] = append(hist, m.record(ts, v, false))
	m.logDebug("set", "key", k, "ts", ts)
	return nil
}

// Delete appends a tombstone for k. Deleting a key with no history, or
// whose newest record is already a tombstone, returns
// ErrNothingToDelete. The key's history remains enumerable, and the key
// can be set again afterward.
func (m *Map[K, V]) Delete(k K) error {
	hist := m.history[k]
	if len(hist) == 0 || hist[len(hist)-1].Deleted {
		return fmt.Errorf("%w: %v", ErrNothingToDelete, k)
	}
	ts, err := m.assignTime(hist)
	if err != nil {
		return fmt.Errorf("delete %v: %w", k, err)
	}
	var zero V
	m.history[k] = append(hist, m.record(ts, zero, true))
	m.logDebug("deleted", "key", k, "ts", ts)
	return nil
}

func (m *Map[K, V]) assignTime(hist []Record[V]) (int64, error) {
	ts := m.now()
	if m.hasPin {
		ts = m.pinned
	}
	if n := len(hist); n > 0 && hist[n-1].Time >= ts {
		return 0, fmt.Errorf("%w: %d is not after %d", ErrOutOfOrder, ts, hist[n-1].Time)
	}
	if ts > m.latest {
		m.latest = ts
	}
	return ts, nil
}

func (m *Map[K, V]) record(ts int64, v V, deleted bool) Record[V] {
	return Record[V]{Time: ts, Value: v, Deleted: deleted, Version: m.version, Source: m.source}
}

// Iter calls f with each key and its resolved value, in the order keys
// first appeared. Keys that resolve to nothing, or to a tombstone, are
// skipped. Returning ErrIterDone from f stops iteration early without
// error; any other error aborts iteration and is returned.
func (m *Map[K, V]) Iter(f func(K, V) error) error {
	p, at, err := m.activeLookup()
	if err != nil {
		return err
	}
	for _, k := range m.order {
		rec, ok := m.resolveAt(k, p, at)
		if !ok || rec.Deleted {
			continue
		}
		if err := f(k, rec.Value); err != nil {
			if errors.Is(err, ErrIterDone) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Len returns the number of keys with any history at all, tombstoned
// keys included. It can exceed the number of keys Iter yields.
func (m *Map[K, V]) Len() int {
	return len(m.history)
}

// KeyHistory returns a copy of k's records, oldest first, or nil if k
// was never written.
func (m *Map[K, V]) KeyHistory(k K) []Record[V] {
	hist, ok := m.history[k]
	if !ok {
		return nil
	}
	return slices.Clone(hist)
}

// LastChanged returns the timestamp of k's newest record, tombstone or
// not. ok is false if k was never written.
func (m *Map[K, V]) LastChanged(k K) (int64, bool) {
	hist := m.history[k]
	if len(hist) == 0 {
		return 0, false
	}
	return hist[len(hist)-1].Time, true
}

// Snapshot returns the map's resolved contents as a plain map. Values
// are not copied: mutating a mutable value mutates the history it came
// from.
func (m *Map[K, V]) Snapshot() (map[K]V, error) {
	out := make(map[K]V)
	err := m.Iter(func(k K, v V) error {
		out[k] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// History returns a copy of every key's record sequence, tombstones
// included. The slices are copies; the records' values are not.
func (m *Map[K, V]) History() map[K][]Record[V] {
	out := make(map[K][]Record[V], len(m.history))
	for k, hist := range m.history {
		out[k] = slices.Clone(hist)
	}
	return out
}

// SetLookupPolicy changes the policy reads resolve under. Switching
// away from AsOfTime keeps the lookup time for a later switch back.
func (m *Map[K, V]) SetLookupPolicy(p LookupPolicy) error {
	if !p.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPolicy, p)
	}
	m.policy = p
	return nil
}

// SetLookupTime sets the time AsOfTime reads resolve at. It is rejected
// unless the current policy is AsOfTime.
func (m *Map[K, V]) SetLookupTime(ts int64) error {
	if m.policy != AsOfTime {
		return fmt.Errorf("%w: lookup time requires the %s policy", ErrInvalidPolicy, AsOfTime)
	}
	m.lookupTime, m.hasLookup = ts, true
	return nil
}

// SetPinnedTime pins the timestamp future writes are stamped with. The
// pin must not move backward, and must be no earlier than the newest
// timestamp across all keys. Once pinned, a map never returns to the
// wall clock.
func (m *Map[K, V]) SetPinnedTime(ts int64) error {
	if ts < m.latest {
		return fmt.Errorf("%w: pin %d is before latest %d", ErrOutOfOrder, ts, m.latest)
	}
	if m.hasPin && ts < m.pinned {
		return fmt.Errorf("%w: pin %d is before pin %d", ErrOutOfOrder, ts, m.pinned)
	}
	m.pinned, m.hasPin = ts, true
	m.logDebug("pinned", "ts", ts)
	return nil
}

// Policy returns the current lookup policy.
func (m *Map[K, V]) Policy() LookupPolicy { return m.policy }

// LookupTime returns the as-of lookup time. ok is false if the policy
// is not AsOfTime or no lookup time has been set.
func (m *Map[K, V]) LookupTime() (int64, bool) {
	if m.policy != AsOfTime || !m.hasLookup {
		return 0, false
	}
	return m.lookupTime, true
}

// PinnedTime returns the pinned write timestamp, if one is set.
func (m *Map[K, V]) PinnedTime() (int64, bool) {
	if !m.hasPin {
		return 0, false
	}
	return m.pinned, true
}

// LatestTime returns the newest timestamp any write has been assigned,
// or zero if nothing has been written.
func (m *Map[K, V]) LatestTime() int64 { return m.latest }

// LazyUpdate reports whether equal-value writes are suppressed.
func (m *Map[K, V]) LazyUpdate() bool { return m.lazy }

// Version returns the version tag stamped on records this map writes.
func (m *Map[K, V]) Version() any { return m.version }

// Source returns the source tag stamped on records this map writes.
func (m *Map[K, V]) Source() any { return m.source }

func (m *Map[K, V]) activeLookup() (LookupPolicy, int64, error) {
	if m.policy == AsOfTime && !m.hasLookup {
		return 0, 0, fmt.Errorf("%w: %s policy requires a lookup time", ErrInvalidPolicy, AsOfTime)
	}
	return m.policy, m.lookupTime, nil
}

func (m *Map[K, V]) resolveAt(k K, p LookupPolicy, at int64) (Record[V], bool) {
	hist := m.history[k]
	if len(hist) == 0 {
		return Record[V]{}, false
	}
	if p == AsOfTime && m.cache != nil {
		ck := resolveKey[K]{id: m.id, key: k, at: at, size: len(hist)}
		if cached, ok := m.cache.Get(ck); ok {
			if i, ok := cached.(int); ok {
				if i < 0 {
					return Record[V]{}, false
				}
				if i < len(hist) {
					return hist[i], true
				}
			}
		}
		i, ok := resolve(hist, p, at)
		if !ok {
			m.cache.Add(ck, -1)
			return Record[V]{}, false
		}
		m.cache.Add(ck, i)
		return hist[i], true
	}
	i, ok := resolve(hist, p, at)
	if !ok {
		return Record[V]{}, false
	}
	return hist[i], true
}

func (m *Map[K, V]) keyString(k K) (string, error) {
	s, err := m.keyToString(k)
	if err != nil {
		return "", fmt.Errorf("changedata: key %v: %w", k, err)
	}
	return s, nil
}

func (m *Map[K, V]) logDebug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
