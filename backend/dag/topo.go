package dag

import (
	"strings"

	"opdag/backend/types"
)

// SortOption configures TopologicalOrder.
type SortOption func(*sortConfig)

type sortConfig struct {
	maxDepth int
}

// WithMaxDepth caps the length of the causal chain a traversal may follow.
// Zero means unbounded.
func WithMaxDepth(depth int) SortOption {
	return func(c *sortConfig) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

type frame struct {
	node types.Index
	next int // position of the next predecessor to visit
}

// TopologicalOrder linearizes every node reachable from start so that each
// node comes strictly after all of its predecessors. Each reachable node is
// emitted once, however many paths lead to it.
//
// start is consumed as a stack: its last element is visited first. Within a
// node, predecessors are visited in stored order. Output order of concurrent
// nodes follows from those two rules only, so it is stable for a fixed view
// and start sequence but carries no meaning beyond that.
//
// The walk is an iterative depth-first reverse postorder. A node on the
// current path is temporarily marked; meeting it again fails with
// ErrCycleDetected instead of looping.
func TopologicalOrder[P any](v *View[P], start []types.Index, opts ...SortOption) ([]types.Index, error) {
	conf := sortConfig{}
	for _, opt := range opts {
		opt(&conf)
	}

	permanent := make([]bool, len(v.nodes))
	temporary := make([]bool, len(v.nodes))
	out := make([]types.Index, 0, len(start))
	stack := make([]frame, 0, 16)

	for s := len(start) - 1; s >= 0; s-- {
		root := start[s]
		if !v.has(root) {
			return nil, types.NewError(types.ErrNotFound, "start index %d", root)
		}
		if permanent[root] {
			continue
		}

		temporary[root] = true
		stack = append(stack, frame{node: root})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			preds := v.nodes[top.node].Predecessors

			if top.next < len(preds) {
				p := preds[top.next]
				top.next++

				if !v.has(p) {
					return nil, types.NewError(types.ErrUnknownPredecessor, "index %d referenced by %s", p, v.nodes[top.node].ID)
				}
				if permanent[p] {
					continue
				}
				if temporary[p] {
					return nil, cycleError(v, stack, p)
				}
				if conf.maxDepth > 0 && len(stack) >= conf.maxDepth {
					return nil, types.NewError(types.ErrDepthExceeded, "causal chain longer than %d at %s", conf.maxDepth, v.nodes[p].ID)
				}

				temporary[p] = true
				stack = append(stack, frame{node: p})
				continue
			}

			temporary[top.node] = false
			permanent[top.node] = true
			out = append(out, top.node)
			stack = stack[:len(stack)-1]
		}
	}

	return out, nil
}

// cycleError reports the path from the revisited node down the current stack
// and back to it.
func cycleError[P any](v *View[P], stack []frame, revisited types.Index) error {
	from := 0
	for i, f := range stack {
		if f.node == revisited {
			from = i
			break
		}
	}

	path := make([]string, 0, len(stack)-from+1)
	for _, f := range stack[from:] {
		path = append(path, v.nodes[f.node].ID.String())
	}
	path = append(path, v.nodes[revisited].ID.String())

	return types.NewError(types.ErrCycleDetected, "%s", strings.Join(path, " -> "))
}

// IDs maps an ordered history to global identities.
func IDs[P any](v *View[P], order []types.Index) []types.OpID {
	out := make([]types.OpID, len(order))
	for i, idx := range order {
		out[i] = v.nodes[idx].ID
	}
	return out
}
