package mpc

import (
	"fmt"
	"testing"
	"time"

	"github.com/encodeous/pbgp/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewEvaluator_Validation(t *testing.T) {
	tr := &loopEndpoint{net: &loopNet{handlers: map[state.PeerIndex]func(Message){}}, self: 1}
	_, err := NewEvaluator(Config{Self: 1, N: 2, Dealer: 1}, tr, testLogger("p1"))
	assert.Error(t, err)
	_, err = NewEvaluator(Config{Self: 4, N: 3, Dealer: 1}, tr, testLogger("p1"))
	assert.Error(t, err)
	_, err = NewEvaluator(Config{Self: 1, N: 3, Dealer: 0}, tr, testLogger("p1"))
	assert.Error(t, err)
	ev, err := NewEvaluator(Config{Self: 2, N: 3, Dealer: 1}, tr, testLogger("p2"))
	require.NoError(t, err)
	assert.Equal(t, state.GateTimeout, ev.Timeout)
	assert.Positive(t, ev.Workers)
	assert.False(t, ev.IsDealer())
	ev.Stop()
}

func TestEvaluator_MultiplyAndLinear(t *testing.T) {
	defer goleak.VerifyNone(t)
	for _, n := range []int{3, 4, 5} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			g := newTestGroup(t, n, nil)
			defer g.Stop()
			vals, errs := evalAll(t, g, 1, 0, func(c *Circuit, done func(int64)) {
				c.Input(2, func() ([]Element, error) {
					return []Element{6, FromInt64(-7)}, nil
				}, func(in []Shared) {
					c.Multiply(in[0], in[1], func(p Shared) {
						// 6 * -7 * 2 + 6 - (-7) + 100
						r := c.AddConst(c.Sub(c.Add(c.MulConst(p, 2), in[0]), in[1]), 100)
						c.Distribute(r, func(r Revealed) {
							done(r.Value().Int64())
						})
					})
				})
			})
			assert.Equal(t, int64(-84+6+7+100), requireAgree(t, vals, errs))
			for _, ev := range g.evs {
				assert.Eventually(t, func() bool { return ev.Pending() == 0 }, time.Second, 5*time.Millisecond)
			}
		})
	}
}

func TestEvaluator_MultiplyBatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := newTestGroup(t, 3, nil)
	defer g.Stop()
	vals, errs := evalAll(t, g, 1, 3, func(c *Circuit, done func([3]int64)) {
		c.Input(3, func() ([]Element, error) {
			return []Element{2, 3, 5}, nil
		}, func(in []Shared) {
			c.MultiplyBatch([][2]Shared{{in[0], in[1]}, {in[1], in[2]}, {in[0], in[2]}}, func(p []Shared) {
				var out [3]int64
				var reveal func(i int)
				reveal = func(i int) {
					if i == len(p) {
						done(out)
						return
					}
					c.Distribute(p[i], func(r Revealed) {
						out[i] = r.Value().Int64()
						reveal(i + 1)
					})
				}
				reveal(0)
			})
		})
	})
	assert.Equal(t, [3]int64{6, 15, 10}, requireAgree(t, vals, errs))
}

func TestEvaluator_ProductsAreStoredNotRevealed(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := newTestGroup(t, 3, nil)
	defer g.Stop()
	circuits := make(chan *Circuit, 3)
	_, errs := evalAll(t, g, 2, 1, func(c *Circuit, done func(bool)) {
		c.Input(1, func() ([]Element, error) {
			return []Element{9}, nil
		}, func(in []Shared) {
			c.Multiply(in[0], in[0], func(Shared) {
				circuits <- c
				done(true)
			})
		})
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	close(circuits)
	shares := make([]Element, 0, 3)
	byParticipant := map[state.PeerIndex]Element{}
	for c := range circuits {
		s, ok := c.Value(GateKey{Kind: KindMul, Round: 2, Vertex: 1, Step: 2})
		require.True(t, ok)
		byParticipant[c.ev.Self] = s.v
		_, ok = c.Value(GateKey{Kind: KindReveal, Round: 2, Vertex: 1, Step: 2})
		assert.False(t, ok)
	}
	for i := 1; i <= 3; i++ {
		shares = append(shares, byParticipant[state.PeerIndex(i)])
	}
	v, err := g.evs[0].Scheme().Reconstruct(shares)
	require.NoError(t, err)
	assert.Equal(t, Element(81), v)
}

func TestEvaluator_CompareLeq(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := newTestGroup(t, 3, func(cfg *Config) { cfg.SelfCheck = true })
	defer g.Stop()
	ranks := []uint32{0, 1, 2, 7, 1000, state.MaxRank - 1, state.MaxRank}
	vertex := state.VertexId(0)
	for _, a := range ranks {
		for _, b := range ranks {
			vertex++
			vals, errs := evalAll(t, g, 1, vertex, func(c *Circuit, done func(bool)) {
				c.CompareLeq(a, b, done)
			})
			assert.Equal(t, a <= b, requireAgree(t, vals, errs), "%d <= %d", a, b)
		}
	}
}

func TestEvaluator_CompareRejectsOversizedRank(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := newTestGroup(t, 3, func(cfg *Config) { cfg.Timeout = 200 * time.Millisecond })
	defer g.Stop()
	_, errs := evalAll(t, g, 1, 1, func(c *Circuit, done func(bool)) {
		c.CompareLeq(state.MaxRank+1, 1, done)
	})
	for _, err := range errs {
		assert.Error(t, err)
	}
}

func TestEvaluator_AccumulateBest(t *testing.T) {
	defer goleak.VerifyNone(t)
	tests := []struct {
		name  string
		cands []Candidate
		want  state.VertexId
	}{
		{"empty", nil, state.Undefined},
		{"no route", []Candidate{{Vertex: state.Undefined}}, state.Undefined},
		{"current only", []Candidate{{Vertex: 4, Rank: 3}}, 4},
		{"first route", []Candidate{{Vertex: state.Undefined}, {Vertex: 7, Rank: 3}}, 7},
		{"keeps current", []Candidate{{Vertex: 2, Rank: 9}, {Vertex: 3, Rank: 4}, {Vertex: 5, Rank: 1}}, 2},
		{"highest wins", []Candidate{{Vertex: 2, Rank: 5}, {Vertex: 3, Rank: 9}, {Vertex: 4, Rank: 8}, {Vertex: 5, Rank: 1}}, 3},
		{"ties keep earlier", []Candidate{{Vertex: 2, Rank: 5}, {Vertex: 3, Rank: 9}, {Vertex: 4, Rank: 9}}, 3},
		{"tie with current", []Candidate{{Vertex: 6, Rank: 9}, {Vertex: 3, Rank: 9}}, 6},
		{"vertex zero", []Candidate{{Vertex: state.Undefined}, {Vertex: 0, Rank: 1}}, 0},
	}
	for _, selfCheck := range []bool{false, true} {
		g := newTestGroup(t, 3, func(cfg *Config) { cfg.SelfCheck = selfCheck })
		for i, tc := range tests {
			t.Run(fmt.Sprintf("%s/check=%v", tc.name, selfCheck), func(t *testing.T) {
				vals, errs := evalAll(t, g, 3, state.VertexId(i), func(c *Circuit, done func(state.VertexId)) {
					c.AccumulateBest(tc.cands, done)
				})
				assert.Equal(t, tc.want, requireAgree(t, vals, errs))
			})
		}
		g.Stop()
	}
}

func TestEvaluator_PeerUnresponsive(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := newTestGroup(t, 3, func(cfg *Config) { cfg.Timeout = 100 * time.Millisecond })
	defer g.Stop()
	g.net.drop = func(from, to state.PeerIndex, key GateKey) bool {
		return from == 3 && key.Kind == KindMul
	}
	_, errs := evalAll(t, g, 1, 1, func(c *Circuit, done func(bool)) {
		c.CompareLeq(1, 2, done)
	})
	for i, err := range errs {
		assert.ErrorIs(t, err, ErrPeerUnresponsive, "participant %d", i+1)
	}
}

func TestEvaluator_SubmitAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := newTestGroup(t, 3, nil)
	g.Stop()
	ran := make(chan struct{}, 1)
	g.evs[0].Submit(func() { ran <- struct{}{} })
	select {
	case <-ran:
		t.Fatal("task ran after stop")
	case <-time.After(20 * time.Millisecond):
	}
	g.Stop()
}

func TestEvaluator_GateAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := newTestGroup(t, 3, nil)
	g.Stop()
	var got error
	c := g.evs[0].NewCircuit(0, 1, func(err error) { got = err })
	c.Distribute(c.Const(1), func(Revealed) { t.Error("revealed after stop") })
	assert.ErrorIs(t, got, ErrEvaluatorStopped)
	assert.True(t, c.Failed())
}

func TestEvaluator_DeliverIgnoresSync(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := newTestGroup(t, 3, nil)
	defer g.Stop()
	g.evs[0].Deliver(Message{From: 2, Key: GateKey{Kind: KindSync, Round: 1, Vertex: 3}})
	assert.Equal(t, 0, g.evs[0].Pending())
}
