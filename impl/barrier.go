package impl

import (
	"context"
	"slices"
	"sync"

	"github.com/encodeous/pbgp/state"
)

// Barrier is a reusable rendezvous for n goroutines.
type Barrier struct {
	mu    sync.Mutex
	n     int
	count int
	gen   chan struct{}
}

func NewBarrier(n int) *Barrier {
	return &Barrier{n: n, gen: make(chan struct{})}
}

// Wait blocks until n callers have arrived in the current generation.
// A caller that gives up on ctx still counts as arrived, so the group should be torn down afterwards.
func (b *Barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen = make(chan struct{})
		b.mu.Unlock()
		close(gen)
		return nil
	}
	b.mu.Unlock()

	select {
	case <-gen:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// SharedSync exchanges changed sets between participants that share memory.
type SharedSync struct {
	barrier *Barrier
	n       int

	mu     sync.Mutex
	rounds map[uint32]*syncRound
}

type syncRound struct {
	changed map[state.VertexId]struct{}
	read    int
}

func NewSharedSync(n int) *SharedSync {
	return &SharedSync{
		barrier: NewBarrier(n),
		n:       n,
		rounds:  make(map[uint32]*syncRound),
	}
}

func (s *SharedSync) get(round uint32) *syncRound {
	r, ok := s.rounds[round]
	if !ok {
		r = &syncRound{changed: make(map[state.VertexId]struct{})}
		s.rounds[round] = r
	}
	return r
}

// Exchange returns the sorted union of the sets every participant passed for round.
func (s *SharedSync) Exchange(ctx context.Context, round uint32, changed []state.VertexId) ([]state.VertexId, error) {
	s.mu.Lock()
	r := s.get(round)
	for _, v := range changed {
		r.changed[v] = struct{}{}
	}
	s.mu.Unlock()

	if err := s.barrier.Wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]state.VertexId, 0, len(r.changed))
	for v := range r.changed {
		out = append(out, v)
	}
	r.read++
	if r.read == s.n {
		delete(s.rounds, round)
	}
	slices.Sort(out)
	return out, nil
}
