package dag

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"opdag/backend/types"
)

// NodeSet is a set of local node identities. Membership is by index only,
// so two nodes carrying equal payloads are still distinct members.
type NodeSet = mapset.Set[types.Index]

// NewNodeSet returns a set holding the given indices. The set is not safe
// for concurrent use; callers own it exclusively.
func NewNodeSet(indices ...types.Index) NodeSet {
	return mapset.NewThreadUnsafeSet(indices...)
}

// Sorted returns the members of s in ascending index order.
func Sorted(s NodeSet) []types.Index {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}
