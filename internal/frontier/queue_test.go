package frontier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pair struct {
	a, b int
}

func lessPair(x, y pair) bool {
	if x.a != y.a {
		return x.a < y.a
	}
	return x.b < y.b
}

func TestQueue_PopReturnsSmallestPriority(t *testing.T) {
	t.Parallel()

	q := New[string](lessPair)
	q.Upsert("c", pair{3, 0})
	q.Upsert("a", pair{1, 5})
	q.Upsert("b", pair{1, 2})

	var order []string
	for q.Len() > 0 {
		k, _, ok := q.Pop()
		require.True(t, ok)
		order = append(order, k)
	}
	require.Equal(t, []string{"b", "a", "c"}, order)

	_, _, ok := q.Pop()
	require.False(t, ok)
}

func TestQueue_TiesPopInInsertionOrder(t *testing.T) {
	t.Parallel()

	q := New[string](lessPair)
	for _, k := range []string{"x", "y", "z", "w"} {
		q.Upsert(k, pair{})
	}

	var order []string
	for q.Len() > 0 {
		k, _, _ := q.Pop()
		order = append(order, k)
	}
	require.Equal(t, []string{"x", "y", "z", "w"}, order)
}

func TestQueue_UpsertReplacesPriorityInPlace(t *testing.T) {
	t.Parallel()

	q := New[string](lessPair)
	q.Upsert("a", pair{1, 0})
	q.Upsert("b", pair{2, 0})
	q.Upsert("b", pair{0, 0})

	require.Equal(t, 2, q.Len())
	p, ok := q.Get("b")
	require.True(t, ok)
	require.Equal(t, pair{0, 0}, p)

	k, _, _ := q.Peek()
	require.Equal(t, "b", k)

	q.Upsert("b", pair{9, 0})
	k, p, _ = q.Pop()
	require.Equal(t, "a", k)
	require.Equal(t, pair{1, 0}, p)
}

func TestQueue_UpdatedEntryKeepsOriginalTieBreak(t *testing.T) {
	t.Parallel()

	q := New[string](lessPair)
	q.Upsert("first", pair{5, 0})
	q.Upsert("second", pair{1, 0})
	q.Upsert("first", pair{1, 0})

	k, _, _ := q.Pop()
	require.Equal(t, "first", k)
}

func TestQueue_ContainsAndRemove(t *testing.T) {
	t.Parallel()

	q := New[int](lessPair)
	for i := 0; i < 10; i++ {
		q.Upsert(i, pair{10 - i, 0})
	}
	require.True(t, q.Contains(3))
	require.True(t, q.Remove(3))
	require.False(t, q.Contains(3))
	require.False(t, q.Remove(3))
	require.Equal(t, 9, q.Len())

	prev := -1
	for q.Len() > 0 {
		_, p, _ := q.Pop()
		require.Greater(t, p.a, prev)
		prev = p.a
	}
	_, ok := q.Get(0)
	require.False(t, ok)
}
