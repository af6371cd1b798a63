package impl

import (
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"opdag/backend/dag"
	"opdag/backend/merge"
	"opdag/backend/reduce"
	"opdag/backend/replica"
	"opdag/backend/types"
)

var _ replica.Factory[int64] = NewReplica[int64]

func newTestReplica[P any](t *testing.T, id string, opts ...func(*replica.Configuration)) *instance[P] {
	t.Helper()

	conf := replica.Configuration{ReplicaID: id, LogOutput: io.Discard}
	for _, opt := range opts {
		opt(&conf)
	}

	r, err := NewReplica[P](conf)
	require.NoError(t, err)
	return r.(*instance[P])
}

func opID(origin string, seq uint64) types.OpID {
	return types.OpID{Origin: origin, Seq: seq}
}

func ids[P any](history []types.Node[P]) []types.OpID {
	out := make([]types.OpID, len(history))
	for i, n := range history {
		out[i] = n.ID
	}
	return out
}

// Test_Replica_CreateNode_AssignsIncreasingSeq verifies operations are stamped
// with the replica id and the next sequence.
func Test_Replica_CreateNode_AssignsIncreasingSeq(t *testing.T) {
	r := newTestReplica[int64](t, "r1")

	a, err := r.CreateNode(0)
	require.NoError(t, err)
	b, err := r.CreateNode(5, a)
	require.NoError(t, err)

	require.Equal(t, "r1", r.ID())
	require.Equal(t, opID("r1", 1), a)
	require.Equal(t, opID("r1", 2), b)
	require.Equal(t, 2, r.Len())

	node, err := r.Node(b)
	require.NoError(t, err)
	require.Equal(t, int64(5), node.Payload)
	require.Len(t, node.Predecessors, 1)

	_, err = r.Node(opID("r1", 9))
	require.ErrorIs(t, err, types.ErrNotFound)
}

// Test_Replica_CreateNode_UnknownPredecessor verifies nothing is stored when a
// predecessor is unknown.
func Test_Replica_CreateNode_UnknownPredecessor(t *testing.T) {
	r := newTestReplica[int64](t, "r1")

	_, err := r.CreateNode(1, opID("elsewhere", 1))
	require.ErrorIs(t, err, types.ErrUnknownPredecessor)
	require.Equal(t, 0, r.Len())
}

// Test_Replica_HeadsAndSources verifies both are sorted by id.
func Test_Replica_HeadsAndSources(t *testing.T) {
	r := newTestReplica[int64](t, "r1")

	require.Empty(t, r.Heads())
	require.Empty(t, r.Sources())

	a, _ := r.CreateNode(1)
	b, _ := r.CreateNode(2, a)
	c, _ := r.CreateNode(3, a)

	require.Equal(t, []types.OpID{b, c}, r.Heads())
	require.Equal(t, []types.OpID{a}, r.Sources())
}

// Test_Replica_TopologicalOrder verifies the default start and the order of
// independent operations.
func Test_Replica_TopologicalOrder(t *testing.T) {
	r := newTestReplica[int64](t, "r1")

	history, err := r.TopologicalOrder()
	require.NoError(t, err)
	require.Empty(t, history)

	a, _ := r.CreateNode(1)
	b, _ := r.CreateNode(2)
	c, _ := r.CreateNode(3)

	history, err = r.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []types.OpID{c, b, a}, ids(history))

	history, err = r.TopologicalOrder(a)
	require.NoError(t, err)
	require.Equal(t, []types.OpID{a}, ids(history))

	_, err = r.TopologicalOrder(opID("r1", 42))
	require.ErrorIs(t, err, types.ErrNotFound)
}

// Test_Replica_TopologicalOrder_Cache verifies orders are reused until the
// history changes.
func Test_Replica_TopologicalOrder_Cache(t *testing.T) {
	r := newTestReplica[int64](t, "r1")

	a, _ := r.CreateNode(1)
	b, _ := r.CreateNode(2, a)

	first, err := r.TopologicalOrder()
	require.NoError(t, err)
	second, err := r.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, r.orders.Len())

	_, err = r.TopologicalOrder(a)
	require.NoError(t, err)
	require.Equal(t, 2, r.orders.Len())

	c, _ := r.CreateNode(3, b)

	history, err := r.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []types.OpID{a, b, c}, ids(history))
	require.Equal(t, 1, r.orders.Len())
}

// Test_Replica_MaxDepth verifies the configured depth cap applies to
// traversals.
func Test_Replica_MaxDepth(t *testing.T) {
	r := newTestReplica[int64](t, "r1", func(c *replica.Configuration) {
		c.MaxDepth = 10
	})

	var prev []types.OpID
	for i := 0; i < 20; i++ {
		id, err := r.CreateNode(int64(i), prev...)
		require.NoError(t, err)
		prev = []types.OpID{id}
	}

	_, err := r.TopologicalOrder()
	require.ErrorIs(t, err, types.ErrDepthExceeded)
}

// Test_Replica_Merge verifies two replicas converge after exchanging
// snapshots in both directions.
func Test_Replica_Merge(t *testing.T) {
	r1 := newTestReplica[int64](t, "r1")
	r2 := newTestReplica[int64](t, "r2")

	a, _ := r1.CreateNode(0)
	b, _ := r1.CreateNode(5, a)

	added, err := r2.Merge(r1.ExportSnapshot())
	require.NoError(t, err)
	require.Equal(t, 2, added)

	_, err = r2.CreateNode(3, b)
	require.NoError(t, err)

	added, err = r1.Merge(r2.ExportSnapshot())
	require.NoError(t, err)
	require.Equal(t, 1, added)

	added, err = r1.Merge(r2.ExportSnapshot())
	require.NoError(t, err)
	require.Zero(t, added)

	require.True(t, merge.Equivalent(r1.ExportSnapshot(), r2.ExportSnapshot()))

	for _, r := range []replica.Replica[int64]{r1, r2} {
		total, err := replica.Reduce[int64, int64](r, reduce.Counter{})
		require.NoError(t, err)
		require.Equal(t, int64(8), total)
	}
}

// Test_Replica_Merge_KeepsSequence verifies a replica restored from its own
// snapshot keeps numbering after the restored operations.
func Test_Replica_Merge_KeepsSequence(t *testing.T) {
	original := newTestReplica[int64](t, "r1")
	a, _ := original.CreateNode(1)
	_, _ = original.CreateNode(2, a)

	restored := newTestReplica[int64](t, "r1")
	added, err := restored.Merge(original.ExportSnapshot())
	require.NoError(t, err)
	require.Equal(t, 2, added)

	id, err := restored.CreateNode(3)
	require.NoError(t, err)
	require.Equal(t, opID("r1", 3), id)
}

// Test_Replica_Merge_Rejected verifies a failed merge leaves the replica
// untouched.
func Test_Replica_Merge_Rejected(t *testing.T) {
	r := newTestReplica[int64](t, "r1")
	a, _ := r.CreateNode(1)

	collision := types.Snapshot[int64]{
		Replica: "r2",
		Nodes:   []types.SnapshotNode[int64]{{ID: a, Payload: 99}},
	}
	_, err := r.Merge(collision)
	require.ErrorIs(t, err, types.ErrIdentityCollision)

	dangling := types.Snapshot[int64]{
		Replica: "r2",
		Nodes: []types.SnapshotNode[int64]{
			{ID: opID("r2", 2), Predecessors: []types.OpID{opID("r2", 1)}, Payload: 1},
		},
	}
	_, err = r.Merge(dangling)
	require.ErrorIs(t, err, types.ErrUnknownPredecessor)

	require.Equal(t, 1, r.Len())
	require.Equal(t, []types.OpID{a}, r.Heads())
}

// Test_Replica_Merge_EdgesOnly verifies predecessor edges recorded by the
// remote on shared operations are kept even when no operation is new.
func Test_Replica_Merge_EdgesOnly(t *testing.T) {
	r := newTestReplica[int64](t, "r1")
	a, _ := r.CreateNode(1)
	b, _ := r.CreateNode(2)

	_, err := r.TopologicalOrder()
	require.NoError(t, err)

	remote := types.Snapshot[int64]{
		Replica: "r2",
		Nodes: []types.SnapshotNode[int64]{
			{ID: a, Payload: 1},
			{ID: b, Predecessors: []types.OpID{a}, Payload: 2},
		},
	}

	added, err := r.Merge(remote)
	require.NoError(t, err)
	require.Zero(t, added)
	require.True(t, merge.Equivalent(remote, r.ExportSnapshot()))

	require.Equal(t, []types.OpID{b}, r.Heads())
	history, err := r.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []types.OpID{a, b}, ids(history))

	added, err = r.Merge(remote)
	require.NoError(t, err)
	require.Zero(t, added)
}

// Test_Replica_ReadsAreCopies verifies returned nodes cannot rewrite the
// stored history.
func Test_Replica_ReadsAreCopies(t *testing.T) {
	r := newTestReplica[int64](t, "r1")
	a, _ := r.CreateNode(1)
	b, _ := r.CreateNode(2, a)

	nb, err := r.Node(b)
	require.NoError(t, err)
	nb.Predecessors[0] = nb.Index

	history, err := r.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []types.OpID{a, b}, ids(history))
	history[1].Predecessors[0] = history[1].Index

	history, err = r.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []types.OpID{a, b}, ids(history))

	nb, err = r.Node(b)
	require.NoError(t, err)
	require.Equal(t, []types.Index{history[0].Index}, nb.Predecessors)
}

// Test_Replica_NodesGaugePerReplica verifies each replica reports its own
// size.
func Test_Replica_NodesGaugePerReplica(t *testing.T) {
	small := newTestReplica[int64](t, "gauge-small")
	large := newTestReplica[int64](t, "gauge-large")

	_, _ = small.CreateNode(1)
	for i := 0; i < 3; i++ {
		_, _ = large.CreateNode(int64(i))
	}

	require.Equal(t, float64(1), testutil.ToFloat64(nodesGauge.WithLabelValues("gauge-small")))
	require.Equal(t, float64(3), testutil.ToFloat64(nodesGauge.WithLabelValues("gauge-large")))

	_, err := small.Merge(large.ExportSnapshot())
	require.NoError(t, err)
	require.Equal(t, float64(4), testutil.ToFloat64(nodesGauge.WithLabelValues("gauge-small")))
	require.Equal(t, float64(3), testutil.ToFloat64(nodesGauge.WithLabelValues("gauge-large")))
}

// Test_Replica_Merge_InvalidatesCache verifies traversals see merged
// operations.
func Test_Replica_Merge_InvalidatesCache(t *testing.T) {
	r1 := newTestReplica[int64](t, "r1")
	r2 := newTestReplica[int64](t, "r2")

	a, _ := r1.CreateNode(1)
	_, err := r1.TopologicalOrder()
	require.NoError(t, err)

	x, _ := r2.CreateNode(2)
	_, err = r1.Merge(r2.ExportSnapshot())
	require.NoError(t, err)
	require.Zero(t, r1.orders.Len())

	history, err := r1.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []types.OpID{x, a}, ids(history))
}

// Test_Replica_ReduceNodes verifies the set reducers through the replica.
func Test_Replica_ReduceNodes(t *testing.T) {
	r := newTestReplica[types.SetOp[string]](t, "r1")

	add, _ := r.CreateNode(types.Add("x"))
	_, _ = r.CreateNode(types.Add("y"))
	_, _ = r.CreateNode(types.Remove("x"), add)

	set, err := replica.ReduceNodes[types.SetOp[string], *reduce.Set[string]](r, reduce.AddWinsSet[string]{})
	require.NoError(t, err)
	require.Equal(t, []string{"y"}, set.Values())

	set, err = replica.Reduce[types.SetOp[string], *reduce.Set[string]](r, reduce.ORSet[string]{})
	require.NoError(t, err)
	require.False(t, set.Contains("x"))
	require.True(t, set.Contains("y"))
}

// Test_Replica_Reduce_Empty verifies reducer errors surface through the
// replica.
func Test_Replica_Reduce_Empty(t *testing.T) {
	r := newTestReplica[int64](t, "r1")

	_, err := replica.Reduce[int64, int64](r, reduce.Min[int64]{})
	require.ErrorIs(t, err, types.ErrEmptyHistory)

	total, err := replica.Reduce[int64, int64](r, reduce.Counter{})
	require.NoError(t, err)
	require.Zero(t, total)
}

// Test_Replica_IDScheme verifies generated replica ids.
func Test_Replica_IDScheme(t *testing.T) {
	r := newTestReplica[int64](t, "", func(c *replica.Configuration) {
		c.IDScheme = replica.IDSchemeUUID
	})
	_, err := uuid.Parse(r.ID())
	require.NoError(t, err)

	r = newTestReplica[int64](t, "")
	require.NotEmpty(t, r.ID())

	_, err = NewReplica[int64](replica.Configuration{IDScheme: "sha"})
	require.Error(t, err)
}

// Test_Replica_PredecessorOrder verifies the configured order reaches the
// store.
func Test_Replica_PredecessorOrder(t *testing.T) {
	r := newTestReplica[int64](t, "r1", func(c *replica.Configuration) {
		c.PredecessorOrder = dag.OrderIDDescending
	})

	a, _ := r.CreateNode(1)
	b, _ := r.CreateNode(2)
	c, _ := r.CreateNode(3, a, b)

	history, err := r.TopologicalOrder(c)
	require.NoError(t, err)
	require.Equal(t, []types.OpID{b, a, c}, ids(history))
}

// Test_Replica_Concurrent verifies concurrent creates and merges lose nothing.
func Test_Replica_Concurrent(t *testing.T) {
	r := newTestReplica[int64](t, "r1")
	remote := newTestReplica[int64](t, "r2")

	for i := 0; i < 50; i++ {
		_, err := remote.CreateNode(int64(i))
		require.NoError(t, err)
	}
	snap := remote.ExportSnapshot()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := r.CreateNode(1)
				require.NoError(t, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.Merge(snap)
		require.NoError(t, err)
	}()
	wg.Wait()

	require.Equal(t, 150, r.Len())

	total, err := replica.Reduce[int64, int64](r, reduce.Counter{})
	require.NoError(t, err)
	require.Equal(t, int64(100+49*50/2), total)
}
