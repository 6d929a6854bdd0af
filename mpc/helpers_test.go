package mpc

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/pbgp/state"
	"github.com/encodeous/tint"
	"github.com/stretchr/testify/require"
)

func testLogger(prefix string) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:        slog.LevelInfo,
		CustomPrefix: prefix,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == "time" {
				return slog.Attr{}
			}
			return attr
		},
	}))
}

// loopNet delivers every message synchronously to the receiver's handler.
type loopNet struct {
	mu       sync.RWMutex
	handlers map[state.PeerIndex]func(Message)
	// drop, if set, discards matching messages
	drop func(from, to state.PeerIndex, key GateKey) bool
}

type loopEndpoint struct {
	net  *loopNet
	self state.PeerIndex
}

func (e *loopEndpoint) Self() state.PeerIndex {
	return e.self
}

func (e *loopEndpoint) Send(to state.PeerIndex, key GateKey, value int64) error {
	e.net.mu.RLock()
	h, ok := e.net.handlers[to]
	drop := e.net.drop
	e.net.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no participant %d", to)
	}
	if drop != nil && drop(e.self, to, key) {
		return nil
	}
	h(Message{From: e.self, Key: key, Value: value})
	return nil
}

func (e *loopEndpoint) SetHandler(h func(Message)) {
	e.net.mu.Lock()
	e.net.handlers[e.self] = h
	e.net.mu.Unlock()
}

func (e *loopEndpoint) Close() error {
	return nil
}

type testGroup struct {
	net *loopNet
	evs []*Evaluator
}

func newTestGroup(t *testing.T, n int, mod func(*Config)) *testGroup {
	g := &testGroup{net: &loopNet{handlers: make(map[state.PeerIndex]func(Message))}}
	for i := 1; i <= n; i++ {
		cfg := Config{
			Self:    state.PeerIndex(i),
			N:       n,
			Dealer:  1,
			Timeout: 5 * time.Second,
			Workers: 2,
			Seed:    &[32]byte{byte(i)},
		}
		if mod != nil {
			mod(&cfg)
		}
		ep := &loopEndpoint{net: g.net, self: cfg.Self}
		ev, err := NewEvaluator(cfg, ep, testLogger(fmt.Sprintf("p%d", i)))
		require.NoError(t, err)
		ep.SetHandler(ev.Deliver)
		ev.Start()
		g.evs = append(g.evs, ev)
	}
	return g
}

func (g *testGroup) Stop() {
	for _, ev := range g.evs {
		ev.Stop()
	}
}

type outcome[T any] struct {
	idx int
	val T
	err error
}

// evalAll evaluates the same circuit body on every participant and collects one result from each.
func evalAll[T any](t *testing.T, g *testGroup, round uint32, vertex state.VertexId, body func(c *Circuit, done func(T))) ([]T, []error) {
	out := make(chan outcome[T], len(g.evs))
	for i, ev := range g.evs {
		c := ev.NewCircuit(round, vertex, func(err error) {
			out <- outcome[T]{idx: i, err: err}
		})
		ev.Submit(func() {
			body(c, func(v T) {
				out <- outcome[T]{idx: i, val: v}
			})
		})
	}
	vals := make([]T, len(g.evs))
	errs := make([]error, len(g.evs))
	for range g.evs {
		select {
		case o := <-out:
			vals[o.idx], errs[o.idx] = o.val, o.err
		case <-time.After(20 * time.Second):
			t.Fatal("timed out waiting for circuit")
		}
	}
	return vals, errs
}

func requireAgree[T comparable](t *testing.T, vals []T, errs []error) T {
	for i, err := range errs {
		require.NoError(t, err, "participant %d", i+1)
	}
	for i := range vals {
		require.Equal(t, vals[0], vals[i], "participant %d disagrees", i+1)
	}
	return vals[0]
}
