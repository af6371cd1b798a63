package reduce

import (
	mapset "github.com/deckarep/golang-set/v2"

	"opdag/backend/types"
)

// AddWinsSet is the causal variant of ORSet. A Remove(v) deletes only the
// Add(v) operations among its own causal ancestors, so an Add(v) concurrent
// with the Remove always survives, whatever order the traversal picked.
//
// The history must be closed under predecessors, as TopologicalOrder output
// is.
type AddWinsSet[T comparable] struct{}

// Name implements NodeReducer.
func (AddWinsSet[T]) Name() string { return "addwins" }

// ReduceNodes implements NodeReducer.
func (AddWinsSet[T]) ReduceNodes(history []types.Node[types.SetOp[T]]) (*Set[T], error) {
	byIndex := make(map[types.Index]types.Node[types.SetOp[T]], len(history))
	for _, n := range history {
		byIndex[n.Index] = n
	}

	// live[v] holds the Add(v) nodes no observed Remove(v) has cancelled
	live := make(map[T]mapset.Set[types.Index])
	for _, n := range history {
		op := n.Payload
		switch op.Kind {
		case types.SetAdd:
			if live[op.Value] == nil {
				live[op.Value] = mapset.NewThreadUnsafeSet[types.Index]()
			}
			live[op.Value].Add(n.Index)
		case types.SetRemove:
			tags, ok := live[op.Value]
			if !ok || tags.IsEmpty() {
				continue
			}
			observed, err := ancestors(byIndex, n)
			if err != nil {
				return nil, err
			}
			live[op.Value] = tags.Difference(observed)
		default:
			return nil, unknownKind(op)
		}
	}

	set := NewSet[T]()
	for _, n := range history {
		if n.Payload.Kind != types.SetAdd {
			continue
		}
		if tags := live[n.Payload.Value]; tags != nil && tags.Contains(n.Index) {
			set.Add(n.Payload.Value)
		}
	}
	return set, nil
}

func ancestors[P any](byIndex map[types.Index]types.Node[P], from types.Node[P]) (mapset.Set[types.Index], error) {
	seen := mapset.NewThreadUnsafeSet[types.Index]()
	stack := append([]types.Index(nil), from.Predecessors...)

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Contains(idx) {
			continue
		}
		n, ok := byIndex[idx]
		if !ok {
			return nil, types.NewError(types.ErrUnknownPredecessor, "index %d is not part of the history", idx)
		}
		seen.Add(idx)
		stack = append(stack, n.Predecessors...)
	}
	return seen, nil
}
