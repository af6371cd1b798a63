package impl

import (
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"opdag/backend/dag"
	"opdag/backend/merge"
	"opdag/backend/replica"
	"opdag/backend/types"
)

var logIO = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// NewReplica creates a new replica.
//
// - implements replica.Factory
func NewReplica[P any](conf replica.Configuration) (replica.Replica[P], error) {
	ids, err := conf.NewIDSupplier()
	if err != nil {
		return nil, xerrors.Errorf("failed to create id supplier: %w", err)
	}

	order := conf.PredecessorOrder
	if order == "" {
		order = dag.OrderIDAscending
	}

	out := conf.LogOutput
	if out == nil {
		out = logIO
	}
	logger := newLogger(out, conf.LogLevel).With().Str("replica", ids.Origin()).Logger()

	var sortOpts []dag.SortOption
	if conf.MaxDepth > 0 {
		sortOpts = append(sortOpts, dag.WithMaxDepth(conf.MaxDepth))
	}

	r := instance[P]{
		conf:     conf,
		log:      logger,
		ids:      ids,
		order:    order,
		sortOpts: sortOpts,
		store:    dag.NewStore[P](ids, dag.WithPredecessorOrder(order)),
		orders:   newOrderCache(),
	}

	return &r, nil
}

// instance implements replica.Replica
//
// - implements replica.Replica
type instance[P any] struct {
	conf replica.Configuration
	log  zerolog.Logger

	ids      dag.IDSupplier
	order    dag.PredecessorOrder
	sortOpts []dag.SortOption

	// mu guards the store pointer: it is only written when a merge swaps in
	// the rebuilt store. The store locks its own content.
	mu     sync.RWMutex
	store  *dag.Store[P]
	orders *OrderCache
}

// ID implements replica.Replica
func (r *instance[P]) ID() string {
	return r.ids.Origin()
}

// Len implements replica.Replica
func (r *instance[P]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.store.Len()
}

// CreateNode implements replica.Replica
func (r *instance[P]) CreateNode(payload P, preds ...types.OpID) (types.OpID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	indices, err := r.resolve(preds, types.ErrUnknownPredecessor)
	if err != nil {
		r.log.Debug().Err(err).Msg("rejected operation")
		return types.OpID{}, err
	}

	idx, err := r.store.Insert(payload, indices...)
	if err != nil {
		r.log.Debug().Err(err).Msg("rejected operation")
		return types.OpID{}, err
	}

	node, err := r.store.Lookup(idx)
	if err != nil {
		return types.OpID{}, xerrors.Errorf("failed to read back operation %d: %w", idx, err)
	}

	nodesCreatedTotal.Inc()
	nodesGauge.WithLabelValues(r.ID()).Set(float64(r.store.Len()))
	r.log.Debug().Msgf("created %s with %d predecessors", node.ID, len(node.Predecessors))

	return node.ID, nil
}

// Node implements replica.Replica
func (r *instance[P]) Node(id types.OpID) (types.Node[P], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.store.LookupID(id)
	if !ok {
		return types.Node[P]{}, types.NewError(types.ErrNotFound, "operation %s", id)
	}
	return r.store.Lookup(idx)
}

// Heads implements replica.Replica
func (r *instance[P]) Heads() []types.OpID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedIDs(dag.Sorted(r.store.Roots()))
}

// Sources implements replica.Replica
func (r *instance[P]) Sources() []types.OpID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedIDs(dag.Sorted(r.store.Sources()))
}

// TopologicalOrder implements replica.Replica
func (r *instance[P]) TopologicalOrder(start ...types.OpID) ([]types.Node[P], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(start) == 0 {
		start = r.sortedIDs(dag.Sorted(r.store.Roots()))
	}
	indices, err := r.resolve(start, types.ErrNotFound)
	if err != nil {
		r.log.Debug().Err(err).Msg("rejected traversal")
		return nil, err
	}

	view := r.store.View()

	order, ok := r.orders.Get(indices, view.Generation())
	if ok {
		traversalsTotal.WithLabelValues("hit").Inc()
	} else {
		traversalsTotal.WithLabelValues("miss").Inc()

		order, err = dag.TopologicalOrder(view, indices, r.sortOpts...)
		if err != nil {
			r.log.Debug().Err(err).Msgf("failed to order %d start operations", len(indices))
			return nil, xerrors.Errorf("failed to order history: %w", err)
		}
		r.orders.Set(indices, view.Generation(), order)
	}

	return view.Resolve(order)
}

// ExportSnapshot implements replica.Replica
func (r *instance[P]) ExportSnapshot() types.Snapshot[P] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.store.Snapshot()
}

// Merge implements replica.Replica. The merge itself runs on immutable
// snapshots without holding the write lock; the lock is only taken to swap in
// the rebuilt store, and the merge is redone if local operations were created
// in between.
func (r *instance[P]) Merge(remote types.Snapshot[P]) (int, error) {
	for {
		r.mu.RLock()
		current := r.store
		generation := current.Generation()
		local := current.Snapshot()
		r.mu.RUnlock()

		merged, err := merge.Merge(local, remote)
		if err != nil {
			mergesTotal.WithLabelValues("failed").Inc()
			r.log.Debug().Err(err).Msgf("failed to merge %s", remote)
			return 0, xerrors.Errorf("failed to merge %s: %w", remote, err)
		}

		if merge.Equivalent(local, merged) {
			mergesTotal.WithLabelValues("noop").Inc()
			r.log.Debug().Msgf("nothing new in %s", remote)
			return 0, nil
		}

		rebuilt, err := dag.Import(merged, r.ids, dag.WithPredecessorOrder(r.order))
		if err != nil {
			mergesTotal.WithLabelValues("failed").Inc()
			r.log.Debug().Err(err).Msgf("failed to rebuild after merging %s", remote)
			return 0, xerrors.Errorf("failed to rebuild merged history: %w", err)
		}

		r.mu.Lock()
		if r.store != current || current.Generation() != generation {
			r.mu.Unlock()
			r.log.Debug().Msg("history changed during merge, retrying")
			continue
		}
		r.store = rebuilt
		r.orders.Reset()
		r.mu.Unlock()

		// zero when the remote only contributed edges between known operations
		added := len(merged.Nodes) - len(local.Nodes)

		mergesTotal.WithLabelValues("merged").Inc()
		mergedNodesTotal.Add(float64(added))
		nodesGauge.WithLabelValues(r.ID()).Set(float64(rebuilt.Len()))
		r.log.Info().Msgf("merged %d new operations from %s", added, remote)

		return added, nil
	}
}

// resolve maps global ids to local indices, failing with kind on the first
// unknown id.
func (r *instance[P]) resolve(ids []types.OpID, kind error) ([]types.Index, error) {
	indices := make([]types.Index, 0, len(ids))
	for _, id := range ids {
		idx, ok := r.store.LookupID(id)
		if !ok {
			return nil, types.NewError(kind, "unknown operation %s", id)
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

func (r *instance[P]) sortedIDs(indices []types.Index) []types.OpID {
	ids := make([]types.OpID, 0, len(indices))
	for _, idx := range indices {
		node, err := r.store.Lookup(idx)
		if err != nil {
			continue
		}
		ids = append(ids, node.ID)
	}
	slices.SortFunc(ids, types.OpID.Compare)
	return ids
}

// Helper functions

func newLogger(io io.Writer, level zerolog.Level) zerolog.Logger {
	logger := zerolog.New(io).With().Timestamp().Logger()
	return logger.Level(level)
}
