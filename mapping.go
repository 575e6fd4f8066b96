package changedata

// Mapping is the plain mutable-map contract Map satisfies. Callers that
// only need get/set/delete can take a Mapping and stay ignorant of
// histories, policies, and timestamps.
type Mapping[K comparable, V any] interface {
	Get(k K) (V, error)
	Set(k K, v V) error
	Delete(k K) error
	Iter(f func(k K, v V) error) error
	Len() int
}

var _ Mapping[string, int] = (*Map[string, int])(nil)
