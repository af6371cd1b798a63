package reduce

import (
	"cmp"
	"slices"
)

// Set represents a collection of unique elements that remembers the order in
// which elements were added.
type Set[T comparable] struct {
	data  map[T]uint64
	clock uint64
}

// NewSet creates and returns a new empty set.
func NewSet[T comparable]() *Set[T] {
	return &Set[T]{data: make(map[T]uint64)}
}

// Add adds an element to the set.
func (s *Set[T]) Add(value T) {
	if _, exists := s.data[value]; exists {
		return
	}
	s.clock++
	s.data[value] = s.clock
}

// Remove removes an element from the set.
func (s *Set[T]) Remove(value T) {
	delete(s.data, value)
}

// Contains checks if an element is in the set.
func (s *Set[T]) Contains(value T) bool {
	_, exists := s.data[value]
	return exists
}

// Size returns the number of elements in the set.
func (s *Set[T]) Size() int {
	return len(s.data)
}

// Values returns all elements in the order they were added.
func (s *Set[T]) Values() []T {
	keys := make([]T, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b T) int {
		return cmp.Compare(s.data[a], s.data[b])
	})
	return keys
}
