package dag

import (
	"opdag/backend/types"
)

// View is an immutable point-in-time view of a Store. Inserts made after the
// view was taken are not visible through it. It is safe for concurrent
// read access.
type View[P any] struct {
	nodes      []types.Node[P]
	generation uint64
}

// Len returns the number of nodes in the view.
func (v *View[P]) Len() int { return len(v.nodes) }

// Generation returns the store generation the view was taken at.
func (v *View[P]) Generation() uint64 { return v.generation }

// Node returns a copy of the node at idx.
func (v *View[P]) Node(idx types.Index) (types.Node[P], error) {
	if !v.has(idx) {
		return types.Node[P]{}, types.NewError(types.ErrNotFound, "index %d", idx)
	}
	return cloneNode(v.nodes[idx]), nil
}

// Resolve maps an ordered history of indices to copies of its nodes.
func (v *View[P]) Resolve(order []types.Index) ([]types.Node[P], error) {
	out := make([]types.Node[P], len(order))
	for i, idx := range order {
		n, err := v.Node(idx)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// Payloads maps an ordered history of indices to its payloads.
func (v *View[P]) Payloads(order []types.Index) ([]P, error) {
	out := make([]P, len(order))
	for i, idx := range order {
		if !v.has(idx) {
			return nil, types.NewError(types.ErrNotFound, "index %d", idx)
		}
		out[i] = v.nodes[idx].Payload
	}
	return out, nil
}

// Ancestors returns every node reachable from start through predecessor
// edges, start included.
func (v *View[P]) Ancestors(start ...types.Index) (NodeSet, error) {
	seen := NewNodeSet()
	stack := make([]types.Index, 0, len(start))
	for _, s := range start {
		if !v.has(s) {
			return nil, types.NewError(types.ErrNotFound, "index %d", s)
		}
		stack = append(stack, s)
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Contains(n) {
			continue
		}
		seen.Add(n)
		for _, p := range v.nodes[n].Predecessors {
			if !v.has(p) {
				return nil, types.NewError(types.ErrUnknownPredecessor, "index %d referenced by %s", p, v.nodes[n].ID)
			}
			if !seen.Contains(p) {
				stack = append(stack, p)
			}
		}
	}
	return seen, nil
}

func (v *View[P]) has(idx types.Index) bool {
	return idx >= 0 && int(idx) < len(v.nodes)
}
