package dag

import (
	"slices"
	"sync"

	"golang.org/x/xerrors"

	"opdag/backend/types"
)

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	order PredecessorOrder
}

// WithPredecessorOrder sets the rule used to order each node's predecessors.
func WithPredecessorOrder(order PredecessorOrder) Option {
	return func(c *storeConfig) {
		if order != "" {
			c.order = order
		}
	}
}

// Store is the append-only arena holding one replica's operation DAG.
//
// A node may only reference nodes already in the arena, so every predecessor
// index is strictly smaller than the node's own index and no cycle can be
// built. Nodes are never removed: a node stays alive for as long as the store
// does, however many descendants reference it.
//
// Inserts take the write lock; every read takes the read lock.
type Store[P any] struct {
	mu          sync.RWMutex
	ids         IDSupplier
	order       PredecessorOrder
	nodes       []types.Node[P]
	byID        map[types.OpID]types.Index
	descendants []int // number of nodes listing each index as a predecessor
	generation  uint64
}

// NewStore returns an empty store drawing ids from ids.
func NewStore[P any](ids IDSupplier, opts ...Option) *Store[P] {
	conf := storeConfig{order: OrderIDAscending}
	for _, opt := range opts {
		opt(&conf)
	}

	return &Store[P]{
		ids:   ids,
		order: conf.order,
		byID:  make(map[types.OpID]types.Index),
	}
}

// Origin returns the replica id of the store's id supplier.
func (s *Store[P]) Origin() string { return s.ids.Origin() }

// Order returns the predecessor order of the store.
func (s *Store[P]) Order() PredecessorOrder { return s.order }

// Insert appends a new operation with a freshly assigned id.
func (s *Store[P]) Insert(payload P, preds ...types.Index) (types.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clean, err := s.checkPredecessors(preds)
	if err != nil {
		return -1, err
	}
	return s.appendLocked(s.ids.Next(), payload, clean), nil
}

// InsertWithID appends an operation that already carries a global id, as
// happens when importing another replica's history.
func (s *Store[P]) InsertWithID(id types.OpID, payload P, preds ...types.Index) (types.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.Seq == 0 {
		return -1, xerrors.Errorf("operation id %s has no sequence", id)
	}
	if existing, ok := s.byID[id]; ok {
		return -1, types.NewError(types.ErrDuplicateIdentity, "%s already stored at index %d", id, existing)
	}
	clean, err := s.checkPredecessors(preds)
	if err != nil {
		return -1, err
	}
	s.ids.Observe(id)
	return s.appendLocked(id, payload, clean), nil
}

// checkPredecessors rejects unknown references, collapses duplicates and
// sorts the result by the store's predecessor order.
func (s *Store[P]) checkPredecessors(preds []types.Index) ([]types.Index, error) {
	if len(preds) == 0 {
		return nil, nil
	}

	seen := NewNodeSet()
	clean := make([]types.Index, 0, len(preds))
	for _, p := range preds {
		if p < 0 || int(p) >= len(s.nodes) {
			return nil, types.NewError(types.ErrUnknownPredecessor, "index %d not in store of %d nodes", p, len(s.nodes))
		}
		if seen.Contains(p) {
			continue
		}
		seen.Add(p)
		clean = append(clean, p)
	}

	s.order.sortPredecessors(clean, func(i types.Index) types.OpID { return s.nodes[i].ID })
	return clean, nil
}

func (s *Store[P]) appendLocked(id types.OpID, payload P, preds []types.Index) types.Index {
	idx := types.Index(len(s.nodes))
	s.nodes = append(s.nodes, types.Node[P]{
		Index:        idx,
		ID:           id,
		Predecessors: preds,
		Payload:      payload,
	})
	s.byID[id] = idx
	s.descendants = append(s.descendants, 0)
	for _, p := range preds {
		s.descendants[p]++
	}
	s.generation++
	return idx
}

// Lookup returns a copy of the node stored at idx.
func (s *Store[P]) Lookup(idx types.Index) (types.Node[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx < 0 || int(idx) >= len(s.nodes) {
		return types.Node[P]{}, types.NewError(types.ErrNotFound, "index %d", idx)
	}
	return cloneNode(s.nodes[idx]), nil
}

// LookupID resolves a global id to its local index.
func (s *Store[P]) LookupID(id types.OpID) (types.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	return idx, ok
}

// Roots returns the nodes no other node depends on (the current heads).
func (s *Store[P]) Roots() NodeSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewNodeSet()
	for i, d := range s.descendants {
		if d == 0 {
			out.Add(types.Index(i))
		}
	}
	return out
}

// Sources returns the nodes without predecessors.
func (s *Store[P]) Sources() NodeSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewNodeSet()
	for _, n := range s.nodes {
		if len(n.Predecessors) == 0 {
			out.Add(n.Index)
		}
	}
	return out
}

// Ancestors returns every node reachable from start, start included.
func (s *Store[P]) Ancestors(start ...types.Index) (NodeSet, error) {
	return s.View().Ancestors(start...)
}

// Len returns the number of stored nodes.
func (s *Store[P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Generation increases with every insert. Cached traversals compare it to
// detect mutation.
func (s *Store[P]) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// View returns an immutable point-in-time view of the store.
func (s *Store[P]) View() *View[P] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.nodes)
	return &View[P]{nodes: s.nodes[:n:n], generation: s.generation}
}

// cloneNode detaches the predecessor slice from the arena so callers cannot
// rewrite stored edges.
func cloneNode[P any](n types.Node[P]) types.Node[P] {
	n.Predecessors = slices.Clone(n.Predecessors)
	return n
}
