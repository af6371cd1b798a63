package types

// Index is the arena position of a node inside one replica's store. It is the
// node identity within a replica and is meaningless anywhere else.
type Index int

// OpID is the replica-independent identity of an operation.
//
// Origin names the replica that created the operation and Seq is that
// replica's local sequence number. The text form is "Seq@Origin".
type OpID struct {
	Origin string
	Seq    uint64 // Starts from 1
}

// Node is one causally-situated operation stored in a DAG.
//
// Predecessors are local indices, all strictly smaller than Index.
type Node[P any] struct {
	Index        Index
	ID           OpID
	Predecessors []Index
	Payload      P
}

// SnapshotNode is the export form of a node: every reference is a global
// OpID so the node can be moved to another replica.
type SnapshotNode[P any] struct {
	ID           OpID   `json:"id"`
	Predecessors []OpID `json:"predecessors,omitempty"`
	Payload      P      `json:"payload"`
}

// Snapshot describes a point-in-time export of a replica DAG. Nodes are
// listed so that every predecessor appears before the nodes referencing it.
type Snapshot[P any] struct {
	Replica string            `json:"replica"`
	Nodes   []SnapshotNode[P] `json:"nodes"`
}

// SetOpKind tags an observed-remove set operation.
type SetOpKind string

const (
	SetAdd    SetOpKind = "add"
	SetRemove SetOpKind = "remove"
)

// SetOp is the payload of an observed-remove set operation.
type SetOp[T comparable] struct {
	Kind  SetOpKind `json:"kind"`
	Value T         `json:"value"`
}
