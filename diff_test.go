package changedata

import (
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/arbitrary"
	"github.com/leanovate/gopter/gen"
	"github.com/stretchr/testify/require"
)

func present[V any](v V) DiffValue[V] {
	return DiffValue[V]{State: ValuePresent, Value: v}
}

func deleted[V any]() DiffValue[V] {
	return DiffValue[V]{State: ValueDeleted}
}

func nonExistent[V any]() DiffValue[V] {
	return DiffValue[V]{State: ValueNonExistent}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	m := newPinnedMap(t, map[int]int{1: 5, 2: 3}, 5)
	require.NoError(t, m.SetPinnedTime(6))
	require.NoError(t, m.Set(1, 6))

	diff, err := m.Diff(Earliest, 0)
	require.NoError(t, err)
	require.Equal(t, map[int]DiffEntry[int]{
		1: {Current: present(6), Compared: present(5)},
	}, diff)

	diff, err = m.Diff(AsOfTime, 4)
	require.NoError(t, err)
	require.Equal(t, map[int]DiffEntry[int]{
		1: {Current: present(6), Compared: nonExistent[int]()},
		2: {Current: present(3), Compared: nonExistent[int]()},
	}, diff)

	require.NoError(t, m.SetPinnedTime(7))
	require.NoError(t, m.Delete(1))
	diff, err = m.Diff(Earliest, 0)
	require.NoError(t, err)
	require.Equal(t, map[int]DiffEntry[int]{
		1: {Current: deleted[int](), Compared: present(5)},
	}, diff)
}

func TestDiffAgainstOwnLookup(t *testing.T) {
	t.Parallel()
	m := newPinnedMap(t, map[int]int{1: 5, 2: 3}, 5)
	diff, err := m.Diff(Latest, 0)
	require.NoError(t, err)
	require.Empty(t, diff)
}

func TestDiffBetweenTwoTimes(t *testing.T) {
	t.Parallel()
	m := newPinnedMap(t, map[string]int{"a": 1}, 1)
	require.NoError(t, m.SetPinnedTime(2))
	require.NoError(t, m.Set("a", 2))
	require.NoError(t, m.SetPinnedTime(3))
	require.NoError(t, m.Set("b", 9))

	// the map's own lookup can be a time too
	require.NoError(t, m.SetLookupPolicy(AsOfTime))
	require.NoError(t, m.SetLookupTime(2))
	diff, err := m.Diff(AsOfTime, 3)
	require.NoError(t, err)
	require.Equal(t, map[string]DiffEntry[int]{
		"b": {Current: nonExistent[int](), Compared: present(9)},
	}, diff)
}

func TestDiffSeesDeletesBothWays(t *testing.T) {
	t.Parallel()
	m := newPinnedMap(t, map[string]int{"a": 1}, 1)
	require.NoError(t, m.SetPinnedTime(2))
	require.NoError(t, m.Delete("a"))

	diff, err := m.Diff(AsOfTime, 1)
	require.NoError(t, err)
	require.Equal(t, map[string]DiffEntry[int]{
		"a": {Current: deleted[int](), Compared: present(1)},
	}, diff)

	diff, err = m.Diff(AsOfTime, 2)
	require.NoError(t, err)
	require.Empty(t, diff, "both sides resolve to the tombstone")
}

func TestDiffIterStopsEarly(t *testing.T) {
	t.Parallel()
	m := newPinnedMap(t, map[int]int{1: 1, 2: 2, 3: 3}, 0)
	visited := 0
	err := m.DiffIter(AsOfTime, -1, func(int, DiffValue[int], DiffValue[int]) (bool, error) {
		visited++
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, visited)
}

func TestDiffIterCallbackError(t *testing.T) {
	t.Parallel()
	m := newPinnedMap(t, map[int]int{1: 1}, 0)
	boom := errors.New("boom")
	err := m.DiffIter(AsOfTime, -1, func(int, DiffValue[int], DiffValue[int]) (bool, error) {
		return true, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestDiffIterOrderIsFirstAppearance(t *testing.T) {
	t.Parallel()
	m := New[string, int]()
	require.NoError(t, m.SetPinnedTime(1))
	require.NoError(t, m.Set("z", 1))
	require.NoError(t, m.SetPinnedTime(2))
	require.NoError(t, m.Set("a", 2))

	var keys []string
	err := m.DiffIter(AsOfTime, 0, func(k string, _, _ DiffValue[int]) (bool, error) {
		keys = append(keys, k)
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"z", "a"}, keys)
}

func TestDiffInvalidPolicy(t *testing.T) {
	t.Parallel()
	m := newPinnedMap(t, map[int]int{1: 1}, 0)
	_, err := m.Diff(LookupPolicy(9), 0)
	require.ErrorIs(t, err, ErrInvalidPolicy)

	require.NoError(t, m.SetLookupPolicy(AsOfTime))
	_, err = m.Diff(Latest, 0)
	require.ErrorIs(t, err, ErrInvalidPolicy, "own lookup has no defined time")
}

func TestDiffValueString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "5", present(5).String())
	require.Equal(t, "DELETED", deleted[int]().String())
	require.Equal(t, "NON_EXISTENT", nonExistent[int]().String())
}

// stateAsOf is the test oracle: a linear scan over a full history.
func stateAsOf(hist []Record[uint], at int64) DiffValue[uint] {
	out := DiffValue[uint]{State: ValueNonExistent}
	for _, rec := range hist {
		if rec.Time > at {
			break
		}
		if rec.Deleted {
			out = DiffValue[uint]{State: ValueDeleted}
		} else {
			out = DiffValue[uint]{State: ValuePresent, Value: rec.Value}
		}
	}
	return out
}

func TestDiffMatchesLinearScan(t *testing.T) {
	t.Parallel()
	properties := gopter.NewProperties(defaultGopterParameters)
	arbitraries := arbitrary.DefaultArbitraries()
	arbitraries.RegisterGen(gen.UIntRange(0, 8))

	properties.Property("as-of diffs agree with a linear history scan",
		arbitraries.ForAll(
			func(writes []testWrite, at uint) bool {
				m := New[uint, uint]()
				require.NoError(t, m.SetPinnedTime(0))
				applyWrites(t, m, writes)
				lookup := int64(at % 16)

				expected := map[uint]DiffEntry[uint]{}
				for k, hist := range m.History() {
					current := stateAsOf(hist, m.LatestTime())
					compared := stateAsOf(hist, lookup)
					if current != compared {
						expected[k] = DiffEntry[uint]{Current: current, Compared: compared}
					}
				}

				actual, err := m.Diff(AsOfTime, lookup)
				require.NoError(t, err)
				if !reflect.DeepEqual(expected, actual) {
					t.Logf("lookup=%d expected=%v actual=%v", lookup, expected, actual)
					return false
				}
				return true
			}))
	properties.TestingRun(t)
}
