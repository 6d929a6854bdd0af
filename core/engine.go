package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/pbgp/mpc"
	"github.com/encodeous/pbgp/perf"
	"github.com/encodeous/pbgp/state"
	"go.uber.org/multierr"
)

// Selector picks the next hop of a vertex. cands[0] is the current next hop, k receives the winner.
type Selector interface {
	Select(round uint32, v state.VertexId, cands []mpc.Candidate, k func(state.VertexId, error))
}

// MpcSelector selects over secret-shared ranks, revealing only the winner.
type MpcSelector struct {
	Evaluator *mpc.Evaluator
}

func (m *MpcSelector) Select(round uint32, v state.VertexId, cands []mpc.Candidate, k func(state.VertexId, error)) {
	c := m.Evaluator.NewCircuit(round, v, func(err error) {
		k(state.Undefined, err)
	})
	c.AccumulateBest(cands, func(winner state.VertexId) {
		k(winner, nil)
	})
}

// PlainSelector is the plaintext reference: the highest rank wins, ties keep the earlier candidate.
type PlainSelector struct{}

func (PlainSelector) Select(_ uint32, _ state.VertexId, cands []mpc.Candidate, k func(state.VertexId, error)) {
	if len(cands) == 0 {
		k(state.Undefined, nil)
		return
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Rank > best.Rank {
			best = c
		}
	}
	k(best.Vertex, nil)
}

// RouteEvent is published whenever a vertex changes its next hop.
type RouteEvent struct {
	Round  uint32
	Vertex state.VertexId
	From   state.VertexId
	To     state.VertexId
}

type EngineConfig struct {
	Graph       *state.Graph
	Destination state.VertexId
	Owned       state.VertexRange
	Selector    Selector
	Sync        RoundSync
	// Exec runs a vertex task, defaults to running it inline
	Exec func(func())
	// Dispatch runs round bookkeeping, which must not overlap with itself. Defaults to inline.
	Dispatch func(func())
	Fault    func(error)
	Trace    func(RouteEvent)
	Log      *slog.Logger
}

// Engine propagates routes towards the destination round by round until no vertex changes its next hop.
type Engine struct {
	cfg    EngineConfig
	ctx    context.Context
	done   func()
	rounds atomic.Int32
	halted atomic.Bool
	log    *slog.Logger
}

type roundState struct {
	round    uint32
	affected []state.VertexId
	changed  map[state.VertexId]struct{}
	// hops is every next hop as of round start
	hops      []state.VertexId
	next      *state.ConcurrentSet[state.VertexId]
	remaining atomic.Int64
	start     time.Time

	mu     sync.Mutex
	faults error
}

func (rs *roundState) fault(err error) {
	rs.mu.Lock()
	rs.faults = multierr.Append(rs.faults, err)
	rs.mu.Unlock()
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Graph == nil || !cfg.Graph.Contains(cfg.Destination) {
		return nil, fmt.Errorf("destination %d is not in the graph", cfg.Destination)
	}
	if cfg.Selector == nil || cfg.Sync == nil {
		return nil, errors.New("engine needs a selector and a round sync")
	}
	if cfg.Exec == nil {
		cfg.Exec = func(f func()) { f() }
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = func(f func()) { f() }
	}
	if cfg.Fault == nil {
		cfg.Fault = func(error) {}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Engine{cfg: cfg, log: cfg.Log}, nil
}

// Rounds is the number of rounds that changed at least one route.
func (e *Engine) Rounds() int {
	return int(e.rounds.Load())
}

// Start clears every route and seeds round 0 with the destination. done runs once, when the fixpoint is reached.
func (e *Engine) Start(ctx context.Context, done func()) {
	e.cfg.Graph.ResetRoutes()
	e.StartFrom(ctx, []state.VertexId{e.cfg.Destination}, done)
}

// StartFrom runs the propagation as if every vertex in changed had just changed its route.
func (e *Engine) StartFrom(ctx context.Context, changed []state.VertexId, done func()) {
	e.ctx = ctx
	var once sync.Once
	e.done = func() {
		once.Do(done)
	}
	set := make(map[state.VertexId]struct{}, len(changed))
	for _, v := range changed {
		set[v] = struct{}{}
	}
	affected := e.neighbours(changed)
	e.cfg.Dispatch(func() {
		e.startRound(0, affected, set)
	})
}

func (e *Engine) neighbours(changed []state.VertexId) []state.VertexId {
	seen := make(map[state.VertexId]struct{})
	out := make([]state.VertexId, 0)
	for _, v := range changed {
		vert := e.cfg.Graph.Vertex(v)
		if vert == nil {
			continue
		}
		for _, n := range vert.Neighbours {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	slices.Sort(out)
	return out
}

func (e *Engine) fail(err error) {
	if e.halted.CompareAndSwap(false, true) {
		e.cfg.Fault(err)
	}
}

func (e *Engine) startRound(round uint32, affected []state.VertexId, changed map[state.VertexId]struct{}) {
	if e.halted.Load() {
		return
	}
	if err := e.ctx.Err(); err != nil {
		e.fail(context.Cause(e.ctx))
		return
	}
	rs := &roundState{
		round:    round,
		affected: affected,
		changed:  changed,
		hops:     e.cfg.Graph.NextHops(),
		next:     state.NewConcurrentSet[state.VertexId](),
		start:    time.Now(),
	}
	tasks := make([]state.VertexId, 0, len(affected))
	for _, v := range affected {
		if v != e.cfg.Destination && e.cfg.Owned.Contains(v) {
			tasks = append(tasks, v)
		}
	}
	if state.DBG_log_rounds {
		e.log.Debug("round start", "round", round, "affected", len(affected), "tasks", len(tasks), "changed", len(changed))
	}
	if len(tasks) == 0 {
		e.cfg.Dispatch(func() {
			e.finalize(rs)
		})
		return
	}
	rs.remaining.Store(int64(len(tasks)))
	for _, v := range tasks {
		e.cfg.Exec(func() {
			e.evaluate(rs, v)
		})
	}
}

// leadsTo follows the snapshot next hops from u and reports whether the chain passes through v.
func leadsTo(hops []state.VertexId, u, v state.VertexId) bool {
	for range len(hops) {
		if u == v {
			return true
		}
		if u == state.Undefined {
			return false
		}
		u = hops[u]
	}
	return false
}

// reroutes extends changed with every vertex whose next-hop chain passes through a changed vertex.
// Those vertices keep their next hop but now advertise a different path.
func reroutes(hops []state.VertexId, changed []state.VertexId) []state.VertexId {
	const (
		unknown = iota
		through
		clean
	)
	mark := make([]uint8, len(hops))
	for _, v := range changed {
		mark[v] = through
	}
	path := make([]state.VertexId, 0)
	for x := range hops {
		path = path[:0]
		u := state.VertexId(x)
		res := uint8(clean)
		// bounded, a transient loop may never reach a marked vertex
		for range len(hops) + 1 {
			if u == state.Undefined {
				break
			}
			if mark[u] != unknown {
				res = mark[u]
				break
			}
			path = append(path, u)
			u = hops[u]
		}
		for _, p := range path {
			mark[p] = res
		}
	}
	out := make([]state.VertexId, 0, len(changed))
	for v, m := range mark {
		if m == through {
			out = append(out, state.VertexId(v))
		}
	}
	return out
}

// offers lists the neighbours of v that changed last round and can offer a loop-free route.
func (e *Engine) offers(rs *roundState, v *state.Vertex) []state.VertexId {
	out := make([]state.VertexId, 0)
	for _, u := range v.Neighbours {
		if _, ok := rs.changed[u]; !ok || u == v.NextHop {
			continue
		}
		if u != e.cfg.Destination && rs.hops[u] == state.Undefined {
			continue
		}
		if leadsTo(rs.hops, u, v.Id) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (e *Engine) evaluate(rs *roundState, id state.VertexId) {
	v := e.cfg.Graph.Vertex(id)
	offers := e.offers(rs, v)
	if len(offers) == 0 {
		e.complete(rs)
		return
	}
	cands := make([]mpc.Candidate, 0, len(offers)+1)
	cands = append(cands, mpc.Candidate{Vertex: v.NextHop, Rank: v.Rank(v.NextHop)})
	for _, u := range offers {
		cands = append(cands, mpc.Candidate{Vertex: u, Rank: v.Rank(u)})
	}
	perf.VerticesEvaluated.Add(1)

	var resumed atomic.Bool
	e.cfg.Selector.Select(rs.round, id, cands, func(winner state.VertexId, err error) {
		if !resumed.CompareAndSwap(false, true) {
			return
		}
		if err != nil {
			rs.fault(fmt.Errorf("vertex %d: %w", id, err))
		} else if winner != v.NextHop {
			// a defined route is never withdrawn, so Undefined here is a bad reveal
			if winner == state.Undefined || !v.HasNeighbour(winner) {
				rs.fault(fmt.Errorf("vertex %d selected %s, which is not a neighbour", id, winner))
			} else {
				e.change(rs, v, winner)
			}
		}
		e.complete(rs)
	})
}

func (e *Engine) change(rs *roundState, v *state.Vertex, winner state.VertexId) {
	ev := RouteEvent{Round: rs.round, Vertex: v.Id, From: v.NextHop, To: winner}
	v.NextHop = winner
	rs.next.Insert(v.Id)
	perf.RoutesChanged.Add(1)
	if state.DBG_log_route_changes {
		e.log.Debug("route changed", "round", ev.Round, "vertex", ev.Vertex, "from", ev.From, "to", ev.To)
	}
	if e.cfg.Trace != nil {
		e.cfg.Trace(ev)
	}
}

func (e *Engine) complete(rs *roundState) {
	if rs.remaining.Add(-1) == 0 {
		e.cfg.Dispatch(func() {
			e.finalize(rs)
		})
	}
}

func (e *Engine) finalize(rs *roundState) {
	rs.mu.Lock()
	faults := rs.faults
	rs.mu.Unlock()
	if faults != nil {
		e.log.Error("round failed", "round", rs.round, "err", faults)
		e.fail(fmt.Errorf("round %d: %w", rs.round, faults))
		return
	}
	changed := rs.next.Sorted()
	go func() {
		synced, err := e.cfg.Sync.Exchange(e.ctx, rs.round, changed)
		if err != nil {
			e.fail(fmt.Errorf("round %d: %w", rs.round, err))
			return
		}
		e.cfg.Dispatch(func() {
			e.advance(rs, synced)
		})
	}()
}

func (e *Engine) advance(rs *roundState, synced []state.VertexId) {
	elapsed := time.Since(rs.start)
	perf.RoundLatency.Add(float64(elapsed.Milliseconds()))
	if state.DBG_log_rounds {
		e.log.Debug("round end", "round", rs.round, "changed", len(synced), "elapsed", elapsed)
	}
	if len(synced) == 0 {
		e.log.Info("fixpoint reached", "rounds", e.Rounds())
		e.done()
		return
	}
	e.rounds.Add(1)
	changed := reroutes(e.cfg.Graph.NextHops(), synced)
	set := make(map[state.VertexId]struct{}, len(changed))
	for _, v := range changed {
		set[v] = struct{}{}
	}
	e.startRound(rs.round+1, e.neighbours(changed), set)
}
