package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/pbgp/mpc"
	"github.com/encodeous/pbgp/state"
)

// RoundSync exchanges the changed set of a round between all participants.
// Exchange returns only once every participant has contributed its set, so it doubles as the round barrier.
type RoundSync interface {
	Exchange(ctx context.Context, round uint32, changed []state.VertexId) ([]state.VertexId, error)
}

// LocalSync is the RoundSync of a single process.
type LocalSync struct{}

func (LocalSync) Exchange(_ context.Context, _ uint32, changed []state.VertexId) ([]state.VertexId, error) {
	out := slices.Clone(changed)
	slices.Sort(out)
	return slices.Compact(out), nil
}

// MessageSync runs the exchange over the participants' transport. Every participant sends one KindSync message
// per changed vertex to everyone, followed by a KindSyncEnd message carrying the count.
type MessageSync struct {
	tr      mpc.Transport
	n       int
	timeout time.Duration

	mu     sync.Mutex
	rounds map[uint32]*syncRound
}

type syncRound struct {
	changed map[state.VertexId]struct{}
	got     map[state.PeerIndex]int
	want    map[state.PeerIndex]int
	done    chan struct{}
	closed  bool
}

func NewMessageSync(tr mpc.Transport, n int, timeout time.Duration) *MessageSync {
	return &MessageSync{
		tr:      tr,
		n:       n,
		timeout: timeout,
		rounds:  make(map[uint32]*syncRound),
	}
}

func (m *MessageSync) get(round uint32) *syncRound {
	r, ok := m.rounds[round]
	if !ok {
		r = &syncRound{
			changed: make(map[state.VertexId]struct{}),
			got:     make(map[state.PeerIndex]int),
			want:    make(map[state.PeerIndex]int),
			done:    make(chan struct{}),
		}
		m.rounds[round] = r
	}
	return r
}

func (r *syncRound) complete(n int) bool {
	if len(r.want) < n {
		return false
	}
	for p, w := range r.want {
		if r.got[p] != w {
			return false
		}
	}
	return true
}

// Deliver records a sync message received from the transport.
func (m *MessageSync) Deliver(msg mpc.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.get(msg.Key.Round)
	if r.closed {
		return
	}
	switch msg.Key.Kind {
	case mpc.KindSync:
		r.changed[msg.Key.Vertex] = struct{}{}
		r.got[msg.From]++
	case mpc.KindSyncEnd:
		r.want[msg.From] = int(msg.Value)
	default:
		return
	}
	if r.complete(m.n) {
		r.closed = true
		close(r.done)
	}
}

func (m *MessageSync) Exchange(ctx context.Context, round uint32, changed []state.VertexId) ([]state.VertexId, error) {
	for i := 1; i <= m.n; i++ {
		to := state.PeerIndex(i)
		for _, v := range changed {
			if err := m.tr.Send(to, mpc.GateKey{Kind: mpc.KindSync, Round: round, Vertex: v}, 0); err != nil {
				return nil, fmt.Errorf("round %d sync to %d: %w", round, to, err)
			}
		}
		if err := m.tr.Send(to, mpc.GateKey{Kind: mpc.KindSyncEnd, Round: round}, int64(len(changed))); err != nil {
			return nil, fmt.Errorf("round %d sync to %d: %w", round, to, err)
		}
	}

	m.mu.Lock()
	r := m.get(round)
	m.mu.Unlock()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-timer.C:
		return nil, fmt.Errorf("round %d sync: %w", round, mpc.ErrPeerUnresponsive)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.VertexId, 0, len(r.changed))
	for v := range r.changed {
		out = append(out, v)
	}
	delete(m.rounds, round)
	slices.Sort(out)
	return out, nil
}
