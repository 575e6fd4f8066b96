package changedata

// Record is one entry in a key's history: the value a write set, the
// timestamp the write was assigned, and whether the write was a delete.
// Tombstones carry the zero value.
//
// Version and Source are free-form tags copied from the map's
// configuration at write time. They ride along in the encoded form but
// never affect lookups, diffs, or equality checks for lazy updating.
type Record[V any] struct {
	Time    int64
	Value   V
	Deleted bool
	Version any
	Source  any
}
