package changedata

import "errors"

var (
	// ErrNotFound is returned by Get when the key has no record visible
	// under the configured lookup, or was deleted as of it.
	ErrNotFound = errors.New("changedata: key not found")

	// ErrOutOfOrder is returned when a write would not advance a key's
	// history, or a pinned-time change would move time backward.
	ErrOutOfOrder = errors.New("changedata: timestamp out of order")

	// ErrInvalidPolicy is returned for unknown lookup policies and for
	// lookup-time use without the AsOfTime policy.
	ErrInvalidPolicy = errors.New("changedata: invalid lookup policy")

	// ErrNothingToDelete is returned by Delete when the key has no history
	// or its newest record is already a tombstone.
	ErrNothingToDelete = errors.New("changedata: nothing to delete")

	// ErrIterDone can be returned from an Iter callback to stop iteration
	// early without Iter itself returning an error.
	ErrIterDone = errors.New("changedata: iteration done")
)
