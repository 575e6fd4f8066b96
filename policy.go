package changedata

import "sort"

// LookupPolicy selects which record in a key's history answers reads.
type LookupPolicy uint8

const (
	// Latest resolves to the newest record. This is the default.
	Latest LookupPolicy = iota
	// Earliest resolves to the oldest record.
	Earliest
	// AsOfTime resolves to the newest record whose timestamp is less than
	// or equal to a given lookup time. It requires a lookup time to be
	// set, either in Config or with SetLookupTime.
	AsOfTime
)

func (p LookupPolicy) String() string {
	switch p {
	case Latest:
		return "latest"
	case Earliest:
		return "earliest"
	case AsOfTime:
		return "as-of-time"
	}
	return "unknown"
}

func (p LookupPolicy) valid() bool {
	return p <= AsOfTime
}

// resolve returns the index of the record that answers reads under p.
// History is ordered by strictly increasing timestamp, so the as-of case
// can binary-search for the first record newer than the lookup time.
func resolve[V any](history []Record[V], p LookupPolicy, at int64) (int, bool) {
	if len(history) == 0 {
		return 0, false
	}
	switch p {
	case Latest:
		return len(history) - 1, true
	case Earliest:
		return 0, true
	case AsOfTime:
		i := sort.Search(len(history), func(i int) bool {
			return history[i].Time > at
		})
		if i == 0 {
			return 0, false
		}
		return i - 1, true
	}
	return 0, false
}
