package reduce_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"opdag/backend/dag"
	"opdag/backend/reduce"
	"opdag/backend/types"
)

func history[P any](t *testing.T, s *dag.Store[P], start ...types.Index) []types.Node[P] {
	t.Helper()

	v := s.View()
	order, err := dag.TopologicalOrder(v, start)
	require.NoError(t, err)
	nodes, err := v.Resolve(order)
	require.NoError(t, err)
	return nodes
}

// Test_Counter_TwoNodeChain verifies the n1{0} <- n2{5} scenario sums to 5.
func Test_Counter_TwoNodeChain(t *testing.T) {
	s := dag.NewStore[int64](dag.NewSequenceSupplier("r1"))
	n1, _ := s.Insert(0)
	n2, _ := s.Insert(5, n1)

	h := history(t, s, n2)
	require.Equal(t, []int64{0, 5}, reduce.Payloads(h))

	total, err := reduce.Counter{}.Reduce(reduce.Payloads(h))
	require.NoError(t, err)
	require.Equal(t, int64(5), total)

	empty, err := reduce.Counter{}.Reduce(nil)
	require.NoError(t, err)
	require.Zero(t, empty)
}

// Test_Commutative_OrderIndependence verifies counter, min and max agree for
// every start permutation and predecessor order over concurrent nodes.
func Test_Commutative_OrderIndependence(t *testing.T) {
	orders := []dag.PredecessorOrder{dag.OrderIDAscending, dag.OrderIDDescending, dag.OrderInsertion}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	for _, order := range orders {
		s := dag.NewStore[int64](dag.NewSequenceSupplier("r1"), dag.WithPredecessorOrder(order))
		root, _ := s.Insert(10)
		heads := []types.Index{}
		for _, delta := range []int64{-3, 7, 42} {
			h, err := s.Insert(delta, root)
			require.NoError(t, err)
			heads = append(heads, h)
		}
		merged, _ := s.Insert(1, heads...)
		loose, _ := s.Insert(-8)

		for _, p := range perms {
			start := []types.Index{heads[p[0]], heads[p[1]], heads[p[2]], merged, loose}
			payloads := reduce.Payloads(history(t, s, start...))

			total, err := reduce.Counter{}.Reduce(payloads)
			require.NoError(t, err)
			require.Equal(t, int64(49), total)

			lo, err := reduce.Min[int64]{}.Reduce(payloads)
			require.NoError(t, err)
			require.Equal(t, int64(-8), lo)

			hi, err := reduce.Max[int64]{}.Reduce(payloads)
			require.NoError(t, err)
			require.Equal(t, int64(42), hi)
		}
	}
}

// Test_MinMax_EmptyHistory verifies the explicit empty result.
func Test_MinMax_EmptyHistory(t *testing.T) {
	_, err := reduce.Min[int64]{}.Reduce(nil)
	require.ErrorIs(t, err, types.ErrEmptyHistory)

	_, err = reduce.Max[string]{}.Reduce([]string{})
	require.ErrorIs(t, err, types.ErrEmptyHistory)

	word, err := reduce.Max[string]{}.Reduce([]string{"pear", "apple", "zucchini"})
	require.NoError(t, err)
	require.Equal(t, "zucchini", word)
}

// Test_ORSet_CausalChains verifies Add -> Remove removes and Remove -> Add
// keeps, for both set reducers.
func Test_ORSet_CausalChains(t *testing.T) {
	s := dag.NewStore[types.SetOp[string]](dag.NewSequenceSupplier("r1"))
	add, _ := s.Insert(types.Add("v"))
	rm, _ := s.Insert(types.Remove("v"), add)

	s2 := dag.NewStore[types.SetOp[string]](dag.NewSequenceSupplier("r1"))
	rm2, _ := s2.Insert(types.Remove("v"))
	add2, _ := s2.Insert(types.Add("v"), rm2)

	removed := history(t, s, rm)
	kept := history(t, s2, add2)

	set, err := reduce.ORSet[string]{}.ReduceNodes(removed)
	require.NoError(t, err)
	require.False(t, set.Contains("v"))

	set, err = reduce.ORSet[string]{}.ReduceNodes(kept)
	require.NoError(t, err)
	require.True(t, set.Contains("v"))

	set, err = reduce.AddWinsSet[string]{}.ReduceNodes(removed)
	require.NoError(t, err)
	require.False(t, set.Contains("v"))

	set, err = reduce.AddWinsSet[string]{}.ReduceNodes(kept)
	require.NoError(t, err)
	require.True(t, set.Contains("v"))
}

// Test_ORSet_ConcurrentAddRemove verifies the traversal-order outcome of
// ORSet and the order-free outcome of AddWinsSet.
func Test_ORSet_ConcurrentAddRemove(t *testing.T) {
	s := dag.NewStore[types.SetOp[string]](dag.NewSequenceSupplier("r1"))
	seed, _ := s.Insert(types.Add("v"))
	rm, _ := s.Insert(types.Remove("v"), seed)
	add, _ := s.Insert(types.Add("v"), seed)

	// start is a stack: the last element is emitted first
	removeLast := history(t, s, rm, add)
	addLast := history(t, s, add, rm)

	set, err := reduce.ORSet[string]{}.ReduceNodes(removeLast)
	require.NoError(t, err)
	require.False(t, set.Contains("v"))

	set, err = reduce.ORSet[string]{}.ReduceNodes(addLast)
	require.NoError(t, err)
	require.True(t, set.Contains("v"))

	for _, h := range [][]types.Node[types.SetOp[string]]{removeLast, addLast} {
		set, err = reduce.AddWinsSet[string]{}.ReduceNodes(h)
		require.NoError(t, err)
		require.True(t, set.Contains("v"))
		require.Equal(t, []string{"v"}, set.Values())
	}
}

// Test_ORSet_DuplicateAddsAreDistinct verifies a Remove only cancels the
// adds it observed, even when payloads are identical.
func Test_ORSet_DuplicateAddsAreDistinct(t *testing.T) {
	s := dag.NewStore[types.SetOp[string]](dag.NewSequenceSupplier("r1"))
	a1, _ := s.Insert(types.Add("x"))
	a2, _ := s.Insert(types.Add("x"))
	rm, _ := s.Insert(types.Remove("x"), a1)
	b, _ := s.Insert(types.Add("y"), rm)

	set, err := reduce.AddWinsSet[string]{}.ReduceNodes(history(t, s, a2, b))
	require.NoError(t, err)
	require.True(t, set.Contains("x"))
	require.Equal(t, 2, set.Size())

	merged, _ := s.Insert(types.Remove("x"), a2, b)
	set, err = reduce.AddWinsSet[string]{}.ReduceNodes(history(t, s, merged))
	require.NoError(t, err)
	require.Equal(t, []string{"y"}, set.Values())
}

// Test_ORSet_UnknownKind verifies malformed payloads are reported.
func Test_ORSet_UnknownKind(t *testing.T) {
	_, err := reduce.ORSet[string]{}.Reduce([]types.SetOp[string]{{Kind: "toggle", Value: "v"}})
	require.Error(t, err)
}

// Test_AddWinsSet_OpenHistory verifies a history missing predecessors fails.
func Test_AddWinsSet_OpenHistory(t *testing.T) {
	h := []types.Node[types.SetOp[string]]{
		{Index: 0, Payload: types.Add("v")},
		{Index: 2, Payload: types.Remove("v"), Predecessors: []types.Index{1}},
	}

	_, err := reduce.AddWinsSet[string]{}.ReduceNodes(h)
	require.ErrorIs(t, err, types.ErrUnknownPredecessor)
}

// Test_Set_Values verifies insertion order survives removal and re-adding.
func Test_Set_Values(t *testing.T) {
	s := reduce.NewSet[int]()
	s.Add(3)
	s.Add(1)
	s.Add(2)
	s.Add(3)
	s.Remove(1)
	s.Add(1)

	require.Equal(t, []int{3, 2, 1}, s.Values())
	require.Equal(t, 3, s.Size())
}
