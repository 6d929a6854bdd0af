package mpc

import (
	"context"
	"fmt"
	"io"

	"github.com/encodeous/pbgp/state"
)

// Stride spaces the blinded encodings of consecutive ranks, the jitter added to a rank stays below it.
const Stride = Modulus >> 20

// blind encodes rank as rank*Stride plus a random jitter below Stride, which preserves the order of ranks.
func blind(rank uint32, rnd io.Reader) (Element, error) {
	if rank > state.MaxRank {
		return 0, fmt.Errorf("rank %d exceeds %d", rank, state.MaxRank)
	}
	j, err := RandomElement(rnd)
	if err != nil {
		return 0, err
	}
	return Element(uint64(rank)*Stride + uint64(j)%Stride), nil
}

// half is 1 when v lies in the upper half of the field, which is the low bit of 2v.
func half(v Element) Element {
	return v.Add(v).Lsb()
}

// compareBits produces the dealer inputs for [a <= b]: w and x locate the blinded b and a in the field,
// y locates their difference.
func (e *Evaluator) compareBits(a, b uint32) ([]Element, error) {
	ea, err := blind(a, e.rnd)
	if err != nil {
		return nil, err
	}
	eb := ea
	if a != b {
		if eb, err = blind(b, e.rnd); err != nil {
			return nil, err
		}
	}
	return []Element{half(eb), half(ea), half(eb.Sub(ea))}, nil
}

// leq evaluates 1 - x + wx - y + wy + xy - 2wxy over the dealt bits, in two multiplication rounds.
func (c *Circuit) leq(w, x, y Shared, k func(Shared)) {
	c.MultiplyBatch([][2]Shared{{x, y}, {w, x}, {w, y}}, func(p []Shared) {
		xy, wx, wy := p[0], p[1], p[2]
		c.Multiply(xy, w, func(wxy Shared) {
			r := c.Const(1)
			r = c.Sub(r, x)
			r = c.Add(r, wx)
			r = c.Sub(r, y)
			r = c.Add(r, wy)
			r = c.Add(r, xy)
			r = c.Sub(r, c.MulConst(wxy, 2))
			k(r)
		})
	})
}

// sharedLeq computes a sharing of [a <= b] from dealer inputs. Ranks are only read on the dealer.
func (c *Circuit) sharedLeq(a, b uint32, k func(Shared)) {
	c.Input(3, func() ([]Element, error) {
		return c.ev.compareBits(a, b)
	}, func(bits []Shared) {
		c.leq(bits[0], bits[1], bits[2], k)
	})
}

// consistencyFault reports a revealed value that disagrees with the dealer's plaintext.
func (c *Circuit) consistencyFault(what string, got, want any) {
	c.log.Log(context.Background(), LevelFatal, "protocol consistency fault",
		"err", ErrProtocolConsistency, "check", what, "revealed", got, "expected", want)
}

// check reveals s and, on the dealer, compares it against want. Every participant must reach the same checks.
func (c *Circuit) check(what string, s Shared, want bool, k func()) {
	if !c.ev.SelfCheck {
		k()
		return
	}
	c.Distribute(s, func(r Revealed) {
		if c.ev.IsDealer() && r.Bool() != want {
			c.consistencyFault(what, r.Bool(), want)
		}
		k()
	})
}

// CompareLeq reveals whether rank a is at most rank b.
func (c *Circuit) CompareLeq(a, b uint32, k func(bool)) {
	c.sharedLeq(a, b, func(s Shared) {
		c.Distribute(s, func(r Revealed) {
			if c.ev.SelfCheck && c.ev.IsDealer() && r.Bool() != (a <= b) {
				c.consistencyFault("compare_leq", r.Bool(), a <= b)
			}
			k(r.Bool())
		})
	})
}

// AccumulateBest selects the candidate with the highest rank and reveals only the winner.
// cands[0] is the vertex's current next hop. For every other candidate the circuit keeps:
// eq, 1 while the current hop has won every comparison so far,
// neq = 1 - eq,
// best, the encoded id of the winner so far, updated as keep*best + (1-keep)*id.
func (c *Circuit) AccumulateBest(cands []Candidate, k func(state.VertexId)) {
	if len(cands) == 0 {
		k(state.Undefined)
		return
	}
	best := c.Const(EncodeVertex(cands[0].Vertex))
	eq := c.Const(1)
	neq := c.Const(0)
	bestRank := cands[0].Rank

	var fold func(i int)
	fold = func(i int) {
		if i == len(cands) {
			c.Distribute(best, func(r Revealed) {
				winner := DecodeVertex(r)
				c.check("changed", neq, winner != cands[0].Vertex, func() {
					k(winner)
				})
			})
			return
		}
		cand := cands[i]
		prev := bestRank
		bestRank = max(bestRank, cand.Rank)
		c.sharedLeq(cand.Rank, prev, func(keep Shared) {
			c.check("keep", keep, cand.Rank <= prev, func() {
				c.MultiplyBatch([][2]Shared{{eq, keep}, {keep, best}}, func(p []Shared) {
					id := EncodeVertex(cand.Vertex)
					eq = p[0]
					neq = c.AddConst(c.MulConst(eq, Element(1).Neg()), 1)
					best = c.Add(p[1], c.AddConst(c.MulConst(keep, id.Neg()), id))
					fold(i + 1)
				})
			})
		})
	}
	fold(1)
}
