package mpc

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/pbgp/perf"
	"github.com/encodeous/pbgp/state"
)

// Circuit is the gate sequence evaluated for one vertex in one round.
// Gates are issued one after another: each asynchronous gate hands its result to a continuation,
// which issues the next gate. Keys are derived from the step counter, so every participant names
// the same gate identically.
type Circuit struct {
	ev     *Evaluator
	Round  uint32
	Vertex state.VertexId
	step   uint32

	mu     sync.Mutex
	values map[GateKey]Shared

	fail   func(error)
	failed atomic.Bool
	log    *slog.Logger
}

func (c *Circuit) nextStep() uint32 {
	c.step++
	return c.step
}

func (c *Circuit) key(kind GateKind, step uint32, slot int) GateKey {
	return GateKey{Kind: kind, Round: c.Round, Vertex: c.Vertex, Step: step, Slot: uint16(slot)}
}

func (c *Circuit) store(key GateKey, s Shared) {
	c.mu.Lock()
	c.values[key] = s
	c.mu.Unlock()
}

// Value returns the share produced by the gate named key.
func (c *Circuit) Value(key GateKey) (Shared, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.values[key]
	return s, ok
}

// Fail aborts the circuit. Only the first fault is reported.
func (c *Circuit) Fail(err error) {
	if c.failed.CompareAndSwap(false, true) {
		c.log.Error("circuit failed", "err", err)
		c.fail(err)
	}
}

func (c *Circuit) Failed() bool {
	return c.failed.Load()
}

// Const is a public constant viewed as a degree 0 sharing.
func (c *Circuit) Const(v Element) Shared {
	return Shared{v}
}

func (c *Circuit) Add(a, b Shared) Shared {
	return Shared{a.v.Add(b.v)}
}

func (c *Circuit) Sub(a, b Shared) Shared {
	return Shared{a.v.Sub(b.v)}
}

func (c *Circuit) AddConst(a Shared, v Element) Shared {
	return Shared{a.v.Add(v)}
}

func (c *Circuit) MulConst(a Shared, v Element) Shared {
	return Shared{a.v.Mul(v)}
}

// await registers one continuation per slot of step and calls k once all of them have resumed.
func (c *Circuit) await(kind GateKind, step uint32, count int, combine func([]Element) (Element, error), k func([]Element)) {
	out := make([]Element, count)
	remaining := atomic.Int32{}
	remaining.Store(int32(count))
	start := time.Now()
	for i := range count {
		c.ev.inbox.Await(c.key(kind, step, i), func(frags []Element, err error) {
			if err != nil {
				c.Fail(err)
				return
			}
			v, err := combine(frags)
			if err != nil {
				c.Fail(err)
				return
			}
			out[i] = v
			if remaining.Add(-1) != 0 || c.Failed() {
				return
			}
			perf.GateLatency.Add(float64(time.Since(start).Microseconds()))
			k(out)
		})
	}
}

// awaitShared is await for gates whose results stay secret. Results are recorded in the circuit state.
func (c *Circuit) awaitShared(kind GateKind, step uint32, count int, combine func([]Element) (Element, error), k func([]Shared)) {
	c.await(kind, step, count, combine, func(vals []Element) {
		out := make([]Shared, len(vals))
		for i, v := range vals {
			out[i] = Shared{v}
			c.store(c.key(kind, step, i), out[i])
		}
		k(out)
	})
}

// MultiplyBatch multiplies every pair in one communication round.
// Each participant re-shares its local product, which has twice the sharing degree, and recombines
// the fragments it receives into a fresh degree t share of the product.
func (c *Circuit) MultiplyBatch(ops [][2]Shared, k func([]Shared)) {
	if c.Failed() {
		return
	}
	step := c.nextStep()
	if len(ops) == 0 {
		k(nil)
		return
	}
	c.awaitShared(KindMul, step, len(ops), c.ev.scheme.Reconstruct, k)
	for i, op := range ops {
		shares, err := c.ev.scheme.Share(op[0].v.Mul(op[1].v), c.ev.rnd)
		if err != nil {
			c.Fail(err)
			return
		}
		if err := c.ev.scatter(c.key(KindMul, step, i), shares); err != nil {
			c.Fail(err)
			return
		}
	}
	perf.MulGates.Add(float64(len(ops)))
}

func (c *Circuit) Multiply(a, b Shared, k func(Shared)) {
	c.MultiplyBatch([][2]Shared{{a, b}}, func(out []Shared) {
		k(out[0])
	})
}

// Input receives count values shared by the dealer. deal only runs on the dealer.
func (c *Circuit) Input(count int, deal func() ([]Element, error), k func([]Shared)) {
	if c.Failed() {
		return
	}
	step := c.nextStep()
	c.awaitShared(KindInput, step, count, func(frags []Element) (Element, error) {
		return frags[0], nil
	}, k)
	if !c.ev.IsDealer() {
		return
	}
	vals, err := deal()
	if err == nil && len(vals) != count {
		err = fmt.Errorf("dealer produced %d inputs, want %d", len(vals), count)
	}
	if err != nil {
		c.Fail(err)
		return
	}
	for i, v := range vals {
		shares, err := c.ev.scheme.Share(v, c.ev.rnd)
		if err != nil {
			c.Fail(err)
			return
		}
		if err := c.ev.scatter(c.key(KindInput, step, i), shares); err != nil {
			c.Fail(err)
			return
		}
	}
}

// Distribute publishes this participant's share of s and reconstructs the value once every share has arrived.
func (c *Circuit) Distribute(s Shared, k func(Revealed)) {
	if c.Failed() {
		return
	}
	step := c.nextStep()
	c.await(KindReveal, step, 1, c.ev.scheme.Reconstruct, func(out []Element) {
		k(Revealed{out[0]})
	})
	if err := c.ev.broadcast(c.key(KindReveal, step, 0), s.v); err != nil {
		c.Fail(err)
		return
	}
	perf.RevealGates.Add(1)
}
