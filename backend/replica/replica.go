package replica

import (
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"opdag/backend/dag"
	"opdag/backend/reduce"
	"opdag/backend/types"
)

// Factory creates a replica from a configuration.
type Factory[P any] func(conf Configuration) (Replica[P], error)

// Replica is one participant's operation DAG together with the operations the
// rest of the system uses to grow, read and reconcile it.
type Replica[P any] interface {
	// ID returns the replica id stamped on every operation it creates.
	ID() string

	// CreateNode records a new operation depending on preds and returns its
	// global id. Every predecessor must already be known to the replica.
	CreateNode(payload P, preds ...types.OpID) (types.OpID, error)

	// Node returns the operation with the given id.
	Node(id types.OpID) (types.Node[P], error)

	// Heads returns the operations nothing depends on yet, sorted by id.
	Heads() []types.OpID

	// Sources returns the operations without predecessors, sorted by id.
	Sources() []types.OpID

	// Len returns the number of stored operations.
	Len() int

	// TopologicalOrder returns every operation reachable from start, each
	// after all of its predecessors. With no start the heads are used.
	// Node indices in the result are only meaningful within that result.
	TopologicalOrder(start ...types.OpID) ([]types.Node[P], error)

	// ExportSnapshot returns a point-in-time export of the whole DAG.
	ExportSnapshot() types.Snapshot[P]

	// Merge folds a remote snapshot into the replica and returns the number
	// of operations that were new. Predecessor edges the remote recorded on
	// known operations are kept even when no operation is new.
	Merge(remote types.Snapshot[P]) (int, error)
}

// IDScheme selects how a replica id is generated when none is configured.
type IDScheme string

const (
	IDSchemeXID  IDScheme = "xid"
	IDSchemeUUID IDScheme = "uuid"
)

// Configuration of a replica.
type Configuration struct {
	// ReplicaID is the origin stamped on created operations. Generated from
	// IDScheme when empty.
	ReplicaID string
	IDScheme  IDScheme

	// PredecessorOrder fixes the traversal order of concurrent operations.
	// All replicas that must agree on replay order must use the same value.
	PredecessorOrder dag.PredecessorOrder

	// MaxDepth caps the causal chain length a traversal follows. Zero means
	// unbounded.
	MaxDepth int

	LogOutput io.Writer
	LogLevel  zerolog.Level
}

// NewIDSupplier returns the id supplier described by the configuration.
func (c Configuration) NewIDSupplier() (dag.IDSupplier, error) {
	origin := c.ReplicaID
	if origin == "" {
		switch c.IDScheme {
		case "", IDSchemeXID:
			origin = dag.NewXIDOrigin()
		case IDSchemeUUID:
			origin = dag.NewUUIDOrigin()
		default:
			return nil, xerrors.Errorf("unknown id scheme %q", c.IDScheme)
		}
	}
	return dag.NewSequenceSupplier(origin), nil
}

// Reduce folds the payloads of the history reachable from start.
func Reduce[P, S any](r Replica[P], reducer reduce.Reducer[P, S], start ...types.OpID) (S, error) {
	var zero S

	history, err := r.TopologicalOrder(start...)
	if err != nil {
		return zero, err
	}
	value, err := reducer.Reduce(reduce.Payloads(history))
	if err != nil {
		return zero, xerrors.Errorf("failed to reduce with %s: %w", reducer.Name(), err)
	}
	return value, nil
}

// ReduceNodes folds the history reachable from start with a reducer that
// needs the causal edges.
func ReduceNodes[P, S any](r Replica[P], reducer reduce.NodeReducer[P, S], start ...types.OpID) (S, error) {
	var zero S

	history, err := r.TopologicalOrder(start...)
	if err != nil {
		return zero, err
	}
	value, err := reducer.ReduceNodes(history)
	if err != nil {
		return zero, xerrors.Errorf("failed to reduce with %s: %w", reducer.Name(), err)
	}
	return value, nil
}
