// Package merge reconciles DAG snapshots exported by independent replicas.
//
// Operations are matched by their global OpID only. The same OpID on both
// sides is one operation: it appears once in the result with the union of
// the predecessor edges either side recorded. Distinct OpIDs are distinct
// operations even when payload and predecessors are identical.
//
// The result is canonical: nodes are listed in the topological order that
// always picks the smallest ready OpID, so Merge(a, b) and Merge(b, a) are
// equal apart from the Replica field.
package merge

import (
	"container/heap"
	"reflect"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"opdag/backend/types"
)

// Option configures a merge.
type Option[P any] func(*options[P])

type options[P any] struct {
	equal   func(a, b P) bool
	replica string
}

// WithEqual sets the payload comparison used to detect two different
// operations sharing an OpID. The default is reflect.DeepEqual.
func WithEqual[P any](equal func(a, b P) bool) Option[P] {
	return func(o *options[P]) {
		if equal != nil {
			o.equal = equal
		}
	}
}

// WithReplica names the replica of the merged snapshot. The default is the
// replica of the first input.
func WithReplica[P any](replica string) Option[P] {
	return func(o *options[P]) {
		o.replica = replica
	}
}

type entry[P any] struct {
	id      types.OpID
	payload P
	preds   mapset.Set[types.OpID]
}

// Merge combines two snapshots into a new one. Inputs are not modified.
func Merge[P any](a, b types.Snapshot[P], opts ...Option[P]) (types.Snapshot[P], error) {
	return MergeAll([]types.Snapshot[P]{a, b}, opts...)
}

// MergeAll combines any number of snapshots into a new one.
//
// It fails with types.ErrIdentityCollision when one OpID carries different
// payloads, types.ErrUnknownPredecessor when an edge points at an operation
// no input holds, and types.ErrInconsistentCausalOrder when the union of
// edges is no longer acyclic.
func MergeAll[P any](snaps []types.Snapshot[P], opts ...Option[P]) (types.Snapshot[P], error) {
	conf := options[P]{
		equal: func(a, b P) bool { return reflect.DeepEqual(a, b) },
	}
	if len(snaps) > 0 {
		conf.replica = snaps[0].Replica
	}
	for _, opt := range opts {
		opt(&conf)
	}

	entries := make(map[types.OpID]*entry[P])
	for _, snap := range snaps {
		for _, n := range snap.Nodes {
			e, exists := entries[n.ID]
			if !exists {
				e = &entry[P]{id: n.ID, payload: n.Payload, preds: mapset.NewThreadUnsafeSet[types.OpID]()}
				entries[n.ID] = e
			} else if !conf.equal(e.payload, n.Payload) {
				return types.Snapshot[P]{}, types.NewError(types.ErrIdentityCollision,
					"%s carries %v in one replica and %v in %s", n.ID, e.payload, n.Payload, snap.Replica)
			}
			for _, p := range n.Predecessors {
				e.preds.Add(p)
			}
		}
	}

	order, err := canonicalOrder(entries)
	if err != nil {
		return types.Snapshot[P]{}, err
	}

	nodes := make([]types.SnapshotNode[P], len(order))
	for i, id := range order {
		e := entries[id]
		nodes[i] = types.SnapshotNode[P]{ID: id, Predecessors: sortedIDs(e.preds), Payload: e.payload}
	}
	return types.Snapshot[P]{Replica: conf.replica, Nodes: nodes}, nil
}

// canonicalOrder runs Kahn's algorithm with a min-heap over OpIDs.
func canonicalOrder[P any](entries map[types.OpID]*entry[P]) ([]types.OpID, error) {
	indeg := make(map[types.OpID]int, len(entries))
	successors := make(map[types.OpID][]types.OpID, len(entries))

	for _, id := range sortedKeys(entries) {
		e := entries[id]
		for _, p := range sortedIDs(e.preds) {
			if p == id {
				return nil, types.NewError(types.ErrInconsistentCausalOrder, "%s depends on itself", id)
			}
			if _, ok := entries[p]; !ok {
				return nil, types.NewError(types.ErrUnknownPredecessor, "%s referenced by %s is in no replica", p, id)
			}
			successors[p] = append(successors[p], id)
		}
		indeg[id] = e.preds.Cardinality()
	}

	ready := &idMinHeap{}
	for id, d := range indeg {
		if d == 0 {
			*ready = append(*ready, id)
		}
	}
	heap.Init(ready)

	out := make([]types.OpID, 0, len(entries))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(types.OpID)
		out = append(out, id)
		for _, s := range successors[id] {
			indeg[s]--
			if indeg[s] == 0 {
				heap.Push(ready, s)
			}
		}
	}

	if len(out) == len(entries) {
		return out, nil
	}
	return nil, types.NewError(types.ErrInconsistentCausalOrder, "%s", strings.Join(findCycle(entries, indeg), " -> "))
}

// findCycle walks predecessor edges among the nodes Kahn's algorithm could
// not emit and returns one cycle as a stable witness.
func findCycle[P any](entries map[types.OpID]*entry[P], indeg map[types.OpID]int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	var stuck []types.OpID
	for id, d := range indeg {
		if d > 0 {
			stuck = append(stuck, id)
		}
	}
	slices.SortFunc(stuck, types.OpID.Compare)

	color := make(map[types.OpID]int, len(stuck))
	type frame struct {
		id    types.OpID
		preds []types.OpID
		next  int
	}

	for _, root := range stuck {
		if color[root] != white {
			continue
		}
		stack := []frame{{id: root, preds: sortedIDs(entries[root].preds)}}
		color[root] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(top.preds) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			p := top.preds[top.next]
			top.next++

			switch color[p] {
			case white:
				color[p] = gray
				stack = append(stack, frame{id: p, preds: sortedIDs(entries[p].preds)})
			case gray:
				var path []string
				on := false
				for _, f := range stack {
					if f.id == p {
						on = true
					}
					if on {
						path = append(path, f.id.String())
					}
				}
				return append(path, p.String())
			}
		}
	}
	return nil
}

// Equivalent reports whether two snapshots hold the same operations with the
// same payloads and predecessor sets, regardless of node order.
func Equivalent[P any](a, b types.Snapshot[P], opts ...Option[P]) bool {
	conf := options[P]{
		equal: func(a, b P) bool { return reflect.DeepEqual(a, b) },
	}
	for _, opt := range opts {
		opt(&conf)
	}

	if len(a.Nodes) != len(b.Nodes) {
		return false
	}
	index := make(map[types.OpID]types.SnapshotNode[P], len(a.Nodes))
	for _, n := range a.Nodes {
		index[n.ID] = n
	}
	for _, n := range b.Nodes {
		other, ok := index[n.ID]
		if !ok || !conf.equal(other.Payload, n.Payload) {
			return false
		}
		if !mapset.NewThreadUnsafeSet(other.Predecessors...).Equal(mapset.NewThreadUnsafeSet(n.Predecessors...)) {
			return false
		}
	}
	return true
}

// Diff returns the OpIDs present in b but not in a, in ascending order.
func Diff[P any](a, b types.Snapshot[P]) []types.OpID {
	have := mapset.NewThreadUnsafeSet(a.IDs()...)
	missing := mapset.NewThreadUnsafeSet(b.IDs()...).Difference(have).ToSlice()
	slices.SortFunc(missing, types.OpID.Compare)
	return missing
}

func sortedIDs(s mapset.Set[types.OpID]) []types.OpID {
	if s.Cardinality() == 0 {
		return nil
	}
	out := s.ToSlice()
	slices.SortFunc(out, types.OpID.Compare)
	return out
}

func sortedKeys[P any](entries map[types.OpID]*entry[P]) []types.OpID {
	out := make([]types.OpID, 0, len(entries))
	for id := range entries {
		out = append(out, id)
	}
	slices.SortFunc(out, types.OpID.Compare)
	return out
}

type idMinHeap []types.OpID

func (h idMinHeap) Len() int           { return len(h) }
func (h idMinHeap) Less(i, j int) bool { return h[i].Less(h[j]) }
func (h idMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idMinHeap) Push(x any)        { *h = append(*h, x.(types.OpID)) }
func (h *idMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
