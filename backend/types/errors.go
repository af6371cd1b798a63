package types

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// ErrUnknownPredecessor is returned when a node references a predecessor
	// that is not in the store.
	ErrUnknownPredecessor = xerrors.New("unknown predecessor")

	// ErrCycleDetected is returned when traversal finds a back-edge. The store
	// cannot build one, so it always means a broken invariant upstream.
	ErrCycleDetected = xerrors.New("cycle detected")

	// ErrInconsistentCausalOrder is returned by merge when replicas disagree
	// about the causal direction between two operations.
	ErrInconsistentCausalOrder = xerrors.New("inconsistent causal order")

	// ErrEmptyHistory is returned by min/max over an empty history.
	ErrEmptyHistory = xerrors.New("empty history")

	ErrNotFound          = xerrors.New("node not found")
	ErrDuplicateIdentity = xerrors.New("duplicate operation id")
	ErrIdentityCollision = xerrors.New("operation id collision")
	ErrDepthExceeded     = xerrors.New("traversal depth exceeded")
)

// DAGError wraps a sentinel kind with the details of one failure.
type DAGError struct {
	Kind error
	Msg  string
}

func (e *DAGError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *DAGError) Unwrap() error { return e.Kind }

// NewError returns a DAGError of the given kind.
func NewError(kind error, format string, args ...any) error {
	return &DAGError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
