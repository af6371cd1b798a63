package dag

import (
	"slices"

	"golang.org/x/xerrors"

	"opdag/backend/types"
)

// PredecessorOrder is the deterministic rule used to store, and therefore to
// traverse, a node's predecessor set. Two replicas must agree on it to agree
// on the relative order of concurrent operations.
type PredecessorOrder string

const (
	// OrderIDAscending sorts predecessors by OpID, smallest first.
	OrderIDAscending PredecessorOrder = "id-asc"
	// OrderIDDescending sorts predecessors by OpID, largest first.
	OrderIDDescending PredecessorOrder = "id-desc"
	// OrderInsertion sorts predecessors by local arena index.
	OrderInsertion PredecessorOrder = "insertion"
)

// ParsePredecessorOrder validates a configured order. The empty string
// selects OrderIDAscending.
func ParsePredecessorOrder(s string) (PredecessorOrder, error) {
	switch PredecessorOrder(s) {
	case "":
		return OrderIDAscending, nil
	case OrderIDAscending, OrderIDDescending, OrderInsertion:
		return PredecessorOrder(s), nil
	}
	return "", xerrors.Errorf("unknown predecessor order %q", s)
}

// sortPredecessors orders preds in place. idOf resolves an index to its OpID.
func (o PredecessorOrder) sortPredecessors(preds []types.Index, idOf func(types.Index) types.OpID) {
	switch o {
	case OrderInsertion:
		slices.Sort(preds)
	case OrderIDDescending:
		slices.SortFunc(preds, func(a, b types.Index) int {
			return idOf(b).Compare(idOf(a))
		})
	default:
		slices.SortFunc(preds, func(a, b types.Index) int {
			return idOf(a).Compare(idOf(b))
		})
	}
}
