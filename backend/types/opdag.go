package types

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// -----------------------------------------------------------------------------
// OpID

// String returns the "Seq@Origin" form of the identity.
func (id OpID) String() string {
	return strconv.FormatUint(id.Seq, 10) + "@" + id.Origin
}

// IsZero reports whether the identity was never assigned.
func (id OpID) IsZero() bool {
	return id.Seq == 0 && id.Origin == ""
}

// Compare orders identities by origin, then by sequence.
func (id OpID) Compare(other OpID) int {
	if c := strings.Compare(id.Origin, other.Origin); c != 0 {
		return c
	}
	switch {
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	}
	return 0
}

// Less reports whether id sorts before other.
func (id OpID) Less(other OpID) bool {
	return id.Compare(other) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (id OpID) MarshalText() ([]byte, error) {
	if id.Seq == 0 {
		return nil, xerrors.Errorf("operation id %q has no sequence", id.String())
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *OpID) UnmarshalText(text []byte) error {
	parsed, err := ParseOpID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseOpID parses the "Seq@Origin" form.
func ParseOpID(s string) (OpID, error) {
	seq, origin, ok := strings.Cut(s, "@")
	if !ok || origin == "" {
		return OpID{}, xerrors.Errorf("malformed operation id %q", s)
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil || n == 0 {
		return OpID{}, xerrors.Errorf("malformed operation id %q: bad sequence", s)
	}
	return OpID{Origin: origin, Seq: n}, nil
}

// -----------------------------------------------------------------------------
// Snapshot

// String implements fmt.Stringer.
func (s Snapshot[P]) String() string {
	return fmt.Sprintf("snapshot{%s, %d nodes}", s.Replica, len(s.Nodes))
}

// IDs returns the identities in snapshot order.
func (s Snapshot[P]) IDs() []OpID {
	ids := make([]OpID, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// -----------------------------------------------------------------------------
// SetOp

// Add returns an operation inserting v.
func Add[T comparable](v T) SetOp[T] {
	return SetOp[T]{Kind: SetAdd, Value: v}
}

// Remove returns an operation deleting v.
func Remove[T comparable](v T) SetOp[T] {
	return SetOp[T]{Kind: SetRemove, Value: v}
}

// String implements fmt.Stringer.
func (op SetOp[T]) String() string {
	return fmt.Sprintf("%s(%v)", op.Kind, op.Value)
}
