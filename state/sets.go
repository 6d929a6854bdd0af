package state

import (
	"cmp"
	"slices"
	"sync"
)

// ConcurrentSet is safe for concurrent insertion.
type ConcurrentSet[T cmp.Ordered] struct {
	mu    sync.Mutex
	items map[T]struct{}
}

func NewConcurrentSet[T cmp.Ordered]() *ConcurrentSet[T] {
	return &ConcurrentSet[T]{items: make(map[T]struct{})}
}

// Insert adds v and reports whether it was absent.
func (s *ConcurrentSet[T]) Insert(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[v]; ok {
		return false
	}
	s.items[v] = struct{}{}
	return true
}

func (s *ConcurrentSet[T]) Contains(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[v]
	return ok
}

func (s *ConcurrentSet[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sorted returns a sorted snapshot of the set.
func (s *ConcurrentSet[T]) Sorted() []T {
	s.mu.Lock()
	out := make([]T, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out
}
