package testing

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"opdag/backend/dag"
	"opdag/backend/replica"
	"opdag/backend/types"
)

// RandomDAG is a random counter history in insertion order: node i only
// depends on nodes before it.
type RandomDAG struct {
	Payloads     []int64
	Predecessors [][]int
}

// NewRandomDAG draws a history of size nodes with up to size*10 random
// forward edges. The same seed always gives the same history.
func NewRandomDAG(seed uint64, size int) RandomDAG {
	rng := rand.New(rand.NewSource(seed))

	d := RandomDAG{
		Payloads:     make([]int64, size),
		Predecessors: make([][]int, size),
	}
	for i := range d.Payloads {
		d.Payloads[i] = rng.Int63n(201) - 100
	}
	if size < 2 {
		return d
	}

	edges := rng.Intn(size*10 + 1)
	for e := 0; e < edges; e++ {
		from := rng.Intn(size - 1)
		to := from + 1 + rng.Intn(size-1-from)
		d.Predecessors[to] = append(d.Predecessors[to], from)
	}
	return d
}

// Len returns the number of nodes.
func (d RandomDAG) Len() int {
	return len(d.Payloads)
}

// Sum returns the value a counter replay must give.
func (d RandomDAG) Sum() int64 {
	var total int64
	for _, p := range d.Payloads {
		total += p
	}
	return total
}

// Build inserts the history into a new store.
func (d RandomDAG) Build(t testing.TB, origin string, opts ...dag.Option) *dag.Store[int64] {
	t.Helper()

	store := dag.NewStore[int64](dag.NewSequenceSupplier(origin), opts...)
	for i, p := range d.Payloads {
		preds := make([]types.Index, len(d.Predecessors[i]))
		for j, pred := range d.Predecessors[i] {
			preds[j] = types.Index(pred)
		}
		_, err := store.Insert(p, preds...)
		require.NoError(t, err)
	}
	return store
}

// Replay creates the history on r and returns the ids it was given.
func (d RandomDAG) Replay(t testing.TB, r replica.Replica[int64]) []types.OpID {
	t.Helper()

	ids := make([]types.OpID, len(d.Payloads))
	for i, p := range d.Payloads {
		preds := make([]types.OpID, len(d.Predecessors[i]))
		for j, pred := range d.Predecessors[i] {
			preds[j] = ids[pred]
		}
		id, err := r.CreateNode(p, preds...)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

// LinearExtension returns snap with its nodes rearranged into a random order
// that still lists every predecessor first.
func LinearExtension[P any](seed uint64, snap types.Snapshot[P]) types.Snapshot[P] {
	rng := rand.New(rand.NewSource(seed))

	pending := make(map[types.OpID]int, len(snap.Nodes))
	descendants := make(map[types.OpID][]int, len(snap.Nodes))
	var ready []int
	for i, n := range snap.Nodes {
		pending[n.ID] = len(n.Predecessors)
		for _, p := range n.Predecessors {
			descendants[p] = append(descendants[p], i)
		}
		if len(n.Predecessors) == 0 {
			ready = append(ready, i)
		}
	}

	out := types.Snapshot[P]{Replica: snap.Replica, Nodes: make([]types.SnapshotNode[P], 0, len(snap.Nodes))}
	for len(ready) > 0 {
		pick := rng.Intn(len(ready))
		i := ready[pick]
		ready[pick] = ready[len(ready)-1]
		ready = ready[:len(ready)-1]

		n := snap.Nodes[i]
		out.Nodes = append(out.Nodes, n)
		for _, d := range descendants[n.ID] {
			id := snap.Nodes[d].ID
			pending[id]--
			if pending[id] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return out
}

// ConfOption tweaks the configuration of a test replica.
type ConfOption func(*replica.Configuration)

// WithPredecessorOrder sets the predecessor order of a test replica.
func WithPredecessorOrder(order dag.PredecessorOrder) ConfOption {
	return func(c *replica.Configuration) {
		c.PredecessorOrder = order
	}
}

// WithMaxDepth sets the traversal depth cap of a test replica.
func WithMaxDepth(depth int) ConfOption {
	return func(c *replica.Configuration) {
		c.MaxDepth = depth
	}
}

// NewTestReplica returns a replica with a fixed id that logs nowhere.
func NewTestReplica[P any](t testing.TB, f replica.Factory[P], id string, opts ...ConfOption) replica.Replica[P] {
	t.Helper()

	conf := replica.Configuration{ReplicaID: id, LogOutput: io.Discard}
	for _, opt := range opts {
		opt(&conf)
	}

	r, err := f(conf)
	require.NoError(t, err)
	return r
}
