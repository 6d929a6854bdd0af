package impl

import (
	"errors"
	"fmt"
	"sync"

	"github.com/encodeous/pbgp/mpc"
	"github.com/encodeous/pbgp/state"
)

var ErrEndpointClosed = errors.New("endpoint closed")

// MemNetwork connects the participants of a group running in one process.
type MemNetwork struct {
	mu        sync.RWMutex
	endpoints map[state.PeerIndex]*MemEndpoint
	isolated  map[state.PeerIndex]bool
}

func NewMemNetwork(n int) *MemNetwork {
	m := &MemNetwork{
		endpoints: make(map[state.PeerIndex]*MemEndpoint),
		isolated:  make(map[state.PeerIndex]bool),
	}
	for i := 1; i <= n; i++ {
		idx := state.PeerIndex(i)
		m.endpoints[idx] = &MemEndpoint{
			net:   m,
			self:  idx,
			queue: make(chan mpc.Message, MemQueueSize),
			done:  make(chan struct{}),
		}
	}
	return m
}

func (m *MemNetwork) Endpoint(idx state.PeerIndex) *MemEndpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.endpoints[idx]
}

// Isolate silently drops every message to or from idx.
func (m *MemNetwork) Isolate(idx state.PeerIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isolated[idx] = true
}

func (m *MemNetwork) Close() error {
	m.mu.RLock()
	eps := make([]*MemEndpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		eps = append(eps, ep)
	}
	m.mu.RUnlock()
	for _, ep := range eps {
		_ = ep.Close()
	}
	return nil
}

func (m *MemNetwork) route(from, to state.PeerIndex) (*MemEndpoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ep, ok := m.endpoints[to]
	if !ok {
		return nil, false, fmt.Errorf("participant %d is not on the network", to)
	}
	return ep, m.isolated[from] || m.isolated[to], nil
}

// MemEndpoint is one participant's view of a MemNetwork. Messages are queued until a handler is set.
type MemEndpoint struct {
	net   *MemNetwork
	self  state.PeerIndex
	queue chan mpc.Message

	start sync.Once
	stop  sync.Once
	done  chan struct{}
	wg    sync.WaitGroup
}

func (e *MemEndpoint) Self() state.PeerIndex {
	return e.self
}

func (e *MemEndpoint) Send(to state.PeerIndex, key mpc.GateKey, value int64) error {
	dst, dropped, err := e.net.route(e.self, to)
	if err != nil {
		return err
	}
	if dropped {
		return nil
	}
	select {
	case dst.queue <- mpc.Message{From: e.self, Key: key, Value: value}:
		return nil
	case <-dst.done:
		return fmt.Errorf("send to %d: %w", to, ErrEndpointClosed)
	case <-e.done:
		return ErrEndpointClosed
	}
}

// SetHandler starts delivering queued messages to h. Only the first handler is used.
func (e *MemEndpoint) SetHandler(h func(mpc.Message)) {
	e.start.Do(func() {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case m := <-e.queue:
					h(m)
				case <-e.done:
					return
				}
			}
		}()
	})
}

func (e *MemEndpoint) Close() error {
	e.stop.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
	return nil
}
