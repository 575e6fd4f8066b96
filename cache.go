package changedata

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// ResolveCache remembers which record an as-of lookup resolved to.
// Cache keys include the length of the key's history at lookup time, so
// appending to a history naturally invalidates its stale positions.
type ResolveCache interface {
	// Add caches the resolved position for a lookup.
	Add(key, value any)
	// Get retrieves a previously resolved position, if cached.
	Get(key any) (value any, ok bool)
}

// NewResolveCache creates a new LRU-based resolve cache of the given
// size. One cache can be shared by any number of maps.
func NewResolveCache(size int) ResolveCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}

// resolveKey distinguishes cached positions by map, key, lookup time,
// and history length.
type resolveKey[K comparable] struct {
	id   uint64
	key  K
	at   int64
	size int
}

var nextMapID atomic.Uint64
