/*
Package changedata provides a mutable map that remembers every value
each key has held.  Writes append timestamped change records instead of
overwriting, deletes append tombstones instead of forgetting, and reads
resolve a record per key under a configurable lookup policy: the latest
record, the earliest, or the newest one as of a given time.  The whole
history travels as JSON, so two processes can exchange maps and diff
them.

Uses

- Keeping the change history of configuration or reference data that is
usually consumed as a plain map

- Answering "what did this look like at time T" without a database

- Diffing two points in time to find what changed, was deleted, or did
not exist yet

History format

Each key maps to records ordered by strictly increasing timestamp.
Encode renders them as

	{"1": [{"ts": 0, "value": 5}, {"ts": 1, "value": 4}, {"ts": 2, "del": true}]}

and Decode restores them, with any key and value types the configured
codec can handle.  Records can carry free-form version and source tags
that ride along without affecting lookups.

Timestamps

Writes are stamped with Unix seconds by default.  Pinning a time with
SetPinnedTime makes writes deterministic and repeatable; the pin can
only move forward, and never behind the newest stamp already assigned.
A write that would not advance its key's history is rejected whole.

Lazy updating

With Config.LazyUpdate, writing a value equal to the key's newest live
value appends nothing, so histories record changes rather than
repetition.

Mutable values

Values are stored and returned by reference, never deep-copied.
Mutating a slice, map, or pointer target after writing it mutates the
history it came from; write a fresh value instead.  Maps themselves do
not nest: Encode, EncodeSnapshot, and Digest reject a Map used as a
value, though one still works as an in-memory value for Get and Set.

Reading never mutates

Lookup policy, lookup time, and pinned time are map-level settings, but
reads never append records, so changing how a map is read costs
nothing and can be done freely between writes.  Diff compares the map's
own lookup against any other policy and time using the one history.

Concurrency

A Map is a plain in-memory structure with no internal locking, meant to
be owned by one goroutine or guarded by the caller.
*/
package changedata
