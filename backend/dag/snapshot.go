package dag

import (
	"golang.org/x/xerrors"

	"opdag/backend/types"
)

// Snapshot exports the store with every reference re-keyed to its global id.
// Nodes keep arena order, so predecessors always precede their descendants.
func (s *Store[P]) Snapshot() types.Snapshot[P] {
	v := s.View()

	nodes := make([]types.SnapshotNode[P], len(v.nodes))
	for i, n := range v.nodes {
		var preds []types.OpID
		if len(n.Predecessors) > 0 {
			preds = make([]types.OpID, len(n.Predecessors))
			for j, p := range n.Predecessors {
				preds[j] = v.nodes[p].ID
			}
		}
		nodes[i] = types.SnapshotNode[P]{ID: n.ID, Predecessors: preds, Payload: n.Payload}
	}

	return types.Snapshot[P]{Replica: s.Origin(), Nodes: nodes}
}

// Import builds a store holding exactly the nodes of snap. The snapshot must
// list every predecessor before the nodes referencing it.
func Import[P any](snap types.Snapshot[P], ids IDSupplier, opts ...Option) (*Store[P], error) {
	store := NewStore[P](ids, opts...)

	for _, n := range snap.Nodes {
		preds := make([]types.Index, len(n.Predecessors))
		for j, p := range n.Predecessors {
			idx, ok := store.LookupID(p)
			if !ok {
				return nil, types.NewError(types.ErrUnknownPredecessor, "%s referenced by %s is not listed before it", p, n.ID)
			}
			preds[j] = idx
		}
		if _, err := store.InsertWithID(n.ID, n.Payload, preds...); err != nil {
			return nil, xerrors.Errorf("failed to import %s: %w", n.ID, err)
		}
	}

	return store, nil
}
