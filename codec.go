package changedata

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// wireRecord is the encoded form of a Record under codecs that cannot
// decode into a type parameter, like the default JSON codec. Live
// records carry "value"; tombstones carry "del" and no value.
type wireRecord struct {
	Time    int64 `json:"ts"`
	Value   any   `json:"value,omitempty"`
	Del     bool  `json:"del,omitempty"`
	Version any   `json:"version,omitempty"`
	Source  any   `json:"source,omitempty"`
}

// wireRecordRaw stages a wireRecord during decoding, so values and tags
// can be unmarshaled a second time into their concrete types.
type wireRecordRaw struct {
	Time    int64           `json:"ts"`
	Value   json.RawMessage `json:"value"`
	Del     bool            `json:"del"`
	Version json.RawMessage `json:"version"`
	Source  json.RawMessage `json:"source"`
}

// typedRecord is the encoded form under codecs that decode registered
// types directly, like encoding/gob, skipping the staged pass.
type typedRecord[V any] struct {
	Time    int64
	Value   V
	Del     bool
	Version any
	Source  any
}

// Encode renders the full history in the textual interchange form: a
// map of key strings to ordered record sequences, oldest first. Under
// the default JSON codec it looks like
//
//	{"1":[{"ts":0,"value":5},{"ts":1,"value":4},{"ts":2,"del":true}]}
//
// Values that are themselves Maps have no encoded form and are
// rejected.
func (m *Map[K, V]) Encode() ([]byte, error) {
	if m.registeredTypes {
		doc := make(map[string][]typedRecord[V], len(m.history))
		for _, k := range m.order {
			ks, err := m.keyString(k)
			if err != nil {
				return nil, err
			}
			if _, dup := doc[ks]; dup {
				return nil, fmt.Errorf("changedata: duplicate key string %q", ks)
			}
			hist := m.history[k]
			recs := make([]typedRecord[V], len(hist))
			for i, r := range hist {
				if err := rejectNested(any(r.Value)); err != nil {
					return nil, err
				}
				recs[i] = typedRecord[V]{Time: r.Time, Value: r.Value, Del: r.Deleted, Version: r.Version, Source: r.Source}
			}
			doc[ks] = recs
		}
		b, err := m.marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("changedata: encode: %w", err)
		}
		return b, nil
	}
	doc := make(map[string][]wireRecord, len(m.history))
	for _, k := range m.order {
		ks, err := m.keyString(k)
		if err != nil {
			return nil, err
		}
		if _, dup := doc[ks]; dup {
			return nil, fmt.Errorf("changedata: duplicate key string %q", ks)
		}
		hist := m.history[k]
		recs := make([]wireRecord, len(hist))
		for i, r := range hist {
			if err := rejectNested(any(r.Value)); err != nil {
				return nil, err
			}
			w := wireRecord{Time: r.Time, Del: r.Deleted, Version: r.Version, Source: r.Source}
			if !r.Deleted {
				w.Value = r.Value
			}
			recs[i] = w
		}
		doc[ks] = recs
	}
	b, err := m.marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("changedata: encode: %w", err)
	}
	return b, nil
}

// EncodeSnapshot renders only the resolved contents, a plain key-string
// to value map with no history and no tombstones:
//
//	{"1":6,"2":3}
func (m *Map[K, V]) EncodeSnapshot() ([]byte, error) {
	doc := make(map[string]V)
	err := m.Iter(func(k K, v V) error {
		if err := rejectNested(any(v)); err != nil {
			return err
		}
		ks, err := m.keyString(k)
		if err != nil {
			return err
		}
		if _, dup := doc[ks]; dup {
			return fmt.Errorf("changedata: duplicate key string %q", ks)
		}
		doc[ks] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	b, err := m.marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("changedata: encode: %w", err)
	}
	return b, nil
}

// Decode restores a Map from data produced by Encode. cfg supplies the
// restored map's configuration; its Seed must be nil, and its
// PinnedTime is validated against the newest restored timestamp. Key
// order in the encoded form is not significant; decoded keys enumerate
// in ascending key-string order. Under the default codec, Version and
// Source tags decode as generic JSON values.
func Decode[K comparable, V any](data []byte, cfg *Config[K, V]) (*Map[K, V], error) {
	var c Config[K, V]
	if cfg != nil {
		c = *cfg
	}
	if c.Seed != nil {
		return nil, errors.New("changedata: decode does not take a seed")
	}
	pin := c.PinnedTime
	c.PinnedTime = nil
	m, err := NewWithConfig(c)
	if err != nil {
		return nil, err
	}
	var keyStrings []string
	byString := map[string][]Record[V]{}
	if m.registeredTypes {
		var doc map[string][]typedRecord[V]
		if err := m.unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("changedata: decode: %w", err)
		}
		for ks, wires := range doc {
			recs := make([]Record[V], len(wires))
			for i, w := range wires {
				recs[i] = Record[V]{Time: w.Time, Value: w.Value, Deleted: w.Del, Version: w.Version, Source: w.Source}
			}
			byString[ks] = recs
			keyStrings = append(keyStrings, ks)
		}
	} else {
		var doc map[string][]wireRecordRaw
		if err := m.unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("changedata: decode: %w", err)
		}
		for ks, wires := range doc {
			recs := make([]Record[V], len(wires))
			for i, w := range wires {
				rec := Record[V]{Time: w.Time, Deleted: w.Del}
				if !w.Del && w.Value != nil {
					if err := m.unmarshal(w.Value, &rec.Value); err != nil {
						return nil, fmt.Errorf("changedata: decode value[%d] of %q: %w", i, ks, err)
					}
				}
				if w.Version != nil {
					if err := m.unmarshal(w.Version, &rec.Version); err != nil {
						return nil, fmt.Errorf("changedata: decode version[%d] of %q: %w", i, ks, err)
					}
				}
				if w.Source != nil {
					if err := m.unmarshal(w.Source, &rec.Source); err != nil {
						return nil, fmt.Errorf("changedata: decode source[%d] of %q: %w", i, ks, err)
					}
				}
				recs[i] = rec
			}
			byString[ks] = recs
			keyStrings = append(keyStrings, ks)
		}
	}
	sort.Strings(keyStrings)
	for _, ks := range keyStrings {
		recs := byString[ks]
		if len(recs) == 0 {
			return nil, fmt.Errorf("changedata: decode: empty history for key %q", ks)
		}
		for i := 1; i < len(recs); i++ {
			if recs[i].Time <= recs[i-1].Time {
				return nil, fmt.Errorf("%w: history of %q: %d is not after %d",
					ErrOutOfOrder, ks, recs[i].Time, recs[i-1].Time)
			}
		}
		k, err := m.keyFromString(ks)
		if err != nil {
			return nil, fmt.Errorf("changedata: decode: %w", err)
		}
		if _, dup := m.history[k]; dup {
			return nil, fmt.Errorf("changedata: decode: duplicate key %v", k)
		}
		m.history[k] = recs
		m.order = append(m.order, k)
		if last := recs[len(recs)-1].Time; last > m.latest {
			m.latest = last
		}
	}
	if pin != nil {
		if err := m.SetPinnedTime(*pin); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// nestedMap is satisfied by every Map instantiation, letting the
// encoders spot Maps used as values regardless of type parameters.
// Nested Maps still work as in-memory values for Get, Set, and Diff,
// where they compare by identity.
type nestedMap interface {
	changeDataMap()
}

func (m *Map[K, V]) changeDataMap() {}

func rejectNested(v any) error {
	if _, ok := v.(nestedMap); ok {
		return errors.New("changedata: nested Map values cannot be encoded")
	}
	return nil
}
