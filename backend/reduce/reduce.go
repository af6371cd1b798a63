// Package reduce folds an ordered operation history into a current value.
//
// Counter, Min and Max are commutative: any permutation of the history gives
// the same value. ORSet applies operations in the order given, so the outcome
// of concurrent Add and Remove of one value depends on the traversal order.
// AddWinsSet uses the causal edges instead and does not.
package reduce

import (
	"cmp"

	"golang.org/x/xerrors"

	"opdag/backend/types"
)

// Reducer folds the payloads of an ordered history.
type Reducer[P, S any] interface {
	Name() string
	Reduce(history []P) (S, error)
}

// NodeReducer folds an ordered history that still carries its causal edges.
type NodeReducer[P, S any] interface {
	Name() string
	ReduceNodes(history []types.Node[P]) (S, error)
}

// Payloads strips an ordered history down to its payloads.
func Payloads[P any](history []types.Node[P]) []P {
	out := make([]P, len(history))
	for i, n := range history {
		out[i] = n.Payload
	}
	return out
}

// -----------------------------------------------------------------------------
// Counter

// Counter sums numeric deltas. The empty history sums to 0.
type Counter struct{}

// Name implements Reducer.
func (Counter) Name() string { return "counter" }

// Reduce implements Reducer.
func (Counter) Reduce(history []int64) (int64, error) {
	var total int64
	for _, delta := range history {
		total += delta
	}
	return total, nil
}

// -----------------------------------------------------------------------------
// Min / Max

// Min returns the smallest payload.
type Min[T cmp.Ordered] struct{}

// Name implements Reducer.
func (Min[T]) Name() string { return "min" }

// Reduce implements Reducer. It fails with types.ErrEmptyHistory when there
// is nothing to compare.
func (Min[T]) Reduce(history []T) (T, error) {
	return extreme(history, func(candidate, best T) bool { return candidate < best })
}

// Max returns the largest payload.
type Max[T cmp.Ordered] struct{}

// Name implements Reducer.
func (Max[T]) Name() string { return "max" }

// Reduce implements Reducer. It fails with types.ErrEmptyHistory when there
// is nothing to compare.
func (Max[T]) Reduce(history []T) (T, error) {
	return extreme(history, func(candidate, best T) bool { return candidate > best })
}

func extreme[T cmp.Ordered](history []T, better func(candidate, best T) bool) (T, error) {
	var best T
	if len(history) == 0 {
		return best, types.NewError(types.ErrEmptyHistory, "%d operations", 0)
	}
	best = history[0]
	for _, v := range history[1:] {
		if better(v, best) {
			best = v
		}
	}
	return best, nil
}

// -----------------------------------------------------------------------------
// ORSet

// ORSet replays Add and Remove operations on a running set in history order.
// Remove of an absent value is a no-op.
//
// When Add(v) and Remove(v) are concurrent the one emitted last by the
// traversal wins.
type ORSet[T comparable] struct{}

// Name implements Reducer.
func (ORSet[T]) Name() string { return "orset" }

// Reduce implements Reducer.
func (ORSet[T]) Reduce(history []types.SetOp[T]) (*Set[T], error) {
	set := NewSet[T]()
	for _, op := range history {
		switch op.Kind {
		case types.SetAdd:
			set.Add(op.Value)
		case types.SetRemove:
			set.Remove(op.Value)
		default:
			return nil, unknownKind(op)
		}
	}
	return set, nil
}

// ReduceNodes implements NodeReducer.
func (r ORSet[T]) ReduceNodes(history []types.Node[types.SetOp[T]]) (*Set[T], error) {
	return r.Reduce(Payloads(history))
}

func unknownKind[T comparable](op types.SetOp[T]) error {
	return xerrors.Errorf("unknown set operation kind %q", op.Kind)
}
