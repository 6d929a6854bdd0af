package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/pbgp/mpc"
	"github.com/encodeous/pbgp/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table(pairs ...state.VertexId) state.RouteTable {
	rt := make(state.RouteTable, 0)
	for i := 0; i < len(pairs); i += 2 {
		rt = append(rt, state.MakePair(pairs[i], pairs[i+1]))
	}
	return rt
}

func TestRunPlain_Scenario(t *testing.T) {
	g := loadGraph(t, "testdata/scenario.txt")
	out, err := RunPlain(context.Background(), g, 0, state.VertexRange{}, testLogger())
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(table(1, 0, 2, 0, 3, 1), out.Table))
	assert.Equal(t, 2, out.Rounds)
	assert.Equal(t, "digraph G {\n1 -> 0\n2 -> 0\n3 -> 1\n}\n", out.Table.String())
}

func TestRunPlain_LoopFilter(t *testing.T) {
	g := loadGraph(t, "testdata/diamond.txt")
	out, err := RunPlain(context.Background(), g, 0, state.VertexRange{}, testLogger())
	require.NoError(t, err)
	// 1 prefers its customer 3 once 3 has a route that avoids 1, 2 must not follow 3 back to itself
	assert.Empty(t, cmp.Diff(table(1, 3, 2, 0, 3, 2), out.Table))
	assert.Equal(t, 3, out.Rounds)
}

// reevaluate offers every neighbour again on a converged graph and reports how many rounds changed a route.
func reevaluate(t *testing.T, g *state.Graph) int {
	e, err := NewEngine(EngineConfig{Graph: g, Selector: PlainSelector{}, Sync: LocalSync{}, Log: testLogger()})
	require.NoError(t, err)
	all := make([]state.VertexId, g.Len())
	for i := range all {
		all[i] = state.VertexId(i)
	}
	done := make(chan struct{})
	e.StartFrom(context.Background(), all, func() { close(done) })
	<-done
	return e.Rounds()
}

func TestRunPlain_Idempotent(t *testing.T) {
	for _, path := range []string{"testdata/scenario.txt", "testdata/diamond.txt"} {
		t.Run(path, func(t *testing.T) {
			g := loadGraph(t, path)
			first, err := RunPlain(context.Background(), g, 0, state.VertexRange{}, testLogger())
			require.NoError(t, err)
			assert.Equal(t, 0, reevaluate(t, g))
			assert.Empty(t, cmp.Diff(first.Table, g.Table()))
		})
	}
}

func TestRunPlain_IdempotentRandom(t *testing.T) {
	for seed := range uint64(300) {
		g, err := state.ParseGraph(strings.NewReader(randomTopology(seed, 30)))
		require.NoError(t, err)
		first, err := RunPlain(context.Background(), g, 0, state.VertexRange{}, testLogger())
		require.NoError(t, err, "seed %d", seed)
		require.Equal(t, 0, reevaluate(t, g), "seed %d: re-evaluation changed routes", seed)
		require.Empty(t, cmp.Diff(first.Table, g.Table()), "seed %d", seed)
	}
}

func TestReroutes(t *testing.T) {
	u := state.Undefined
	// 1 -> 0, 2 -> 1, 3 -> 2, 4 -> 0, 5 and 6 loop, 7 has no route
	hops := []state.VertexId{u, 0, 1, 2, 0, 6, 5, u}
	assert.Equal(t, []state.VertexId{1, 2, 3}, reroutes(hops, []state.VertexId{1}))
	assert.Equal(t, []state.VertexId{0, 1, 2, 3, 4}, reroutes(hops, []state.VertexId{0}))
	assert.Equal(t, []state.VertexId{3, 5, 6}, reroutes(hops, []state.VertexId{3, 6}))
	assert.Equal(t, []state.VertexId{7}, reroutes(hops, []state.VertexId{7}))
	assert.Empty(t, reroutes(hops, nil))
}

func TestRunPlain_RestartClearsRoutes(t *testing.T) {
	g := loadGraph(t, "testdata/scenario.txt")
	_, err := RunPlain(context.Background(), g, 0, state.VertexRange{}, testLogger())
	require.NoError(t, err)
	out, err := RunPlain(context.Background(), g, 0, state.VertexRange{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Rounds)
	assert.Empty(t, cmp.Diff(table(1, 0, 2, 0, 3, 1), out.Table))
}

func TestRunPlain_Converges(t *testing.T) {
	for seed := range uint64(20) {
		topo := randomTopology(seed, 30)
		g, err := state.ParseGraph(strings.NewReader(topo))
		require.NoError(t, err)
		out, err := RunPlain(context.Background(), g, 0, state.VertexRange{}, testLogger())
		require.NoError(t, err, "seed %d", seed)
		// the graph is connected, so everyone has a route
		assert.Len(t, out.Table, g.Len()-1, "seed %d", seed)
		for _, p := range out.Table {
			assert.True(t, g.Vertex(p.V1).HasNeighbour(p.V2), "seed %d: %d routes via a stranger", seed, p.V1)
		}

		again, err := state.ParseGraph(strings.NewReader(topo))
		require.NoError(t, err)
		out2, err := RunPlain(context.Background(), again, 0, state.VertexRange{}, testLogger())
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(out, out2), "seed %d", seed)
	}
}

func TestRunPlain_OwnedRange(t *testing.T) {
	g := loadGraph(t, "testdata/scenario.txt")
	out, err := RunPlain(context.Background(), g, 0, state.VertexRange{Start: 0, End: 3}, testLogger())
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(table(1, 0, 2, 0), out.Table))
}

func TestRunPlain_IsolatedDestination(t *testing.T) {
	g2 := state.NewGraph(5)
	require.NoError(t, g2.Connect(1, 0, state.Provider))
	require.NoError(t, g2.AssignPreferences())
	out, err := RunPlain(context.Background(), g2, 4, state.VertexRange{}, testLogger())
	require.NoError(t, err)
	assert.Empty(t, out.Table)
	assert.Equal(t, 0, out.Rounds)
}

func TestNewEngine_Validation(t *testing.T) {
	g := loadGraph(t, "testdata/scenario.txt")
	_, err := NewEngine(EngineConfig{Graph: g, Destination: 9, Selector: PlainSelector{}, Sync: LocalSync{}})
	assert.Error(t, err)
	_, err = NewEngine(EngineConfig{Graph: g, Destination: 0})
	assert.Error(t, err)
}

type failingSelector struct {
	err error
}

func (f failingSelector) Select(_ uint32, v state.VertexId, _ []mpc.Candidate, k func(state.VertexId, error)) {
	go k(state.Undefined, f.err)
}

func TestEngine_FaultAbortsRound(t *testing.T) {
	g := loadGraph(t, "testdata/scenario.txt")
	faults := make(chan error, 1)
	e, err := NewEngine(EngineConfig{
		Graph:    g,
		Selector: failingSelector{mpc.ErrPeerUnresponsive},
		Sync:     LocalSync{},
		Fault:    func(err error) { faults <- err },
		Log:      testLogger(),
	})
	require.NoError(t, err)
	e.Start(context.Background(), func() { t.Error("fixpoint reached after a fault") })
	select {
	case err := <-faults:
		assert.ErrorIs(t, err, mpc.ErrPeerUnresponsive)
		assert.Contains(t, err.Error(), "round 0")
	case <-time.After(time.Second):
		t.Fatal("fault was not reported")
	}
	assert.Equal(t, state.Undefined, g.Vertex(1).NextHop)
}

type withdrawSelector struct{}

func (withdrawSelector) Select(_ uint32, _ state.VertexId, _ []mpc.Candidate, k func(state.VertexId, error)) {
	k(state.Undefined, nil)
}

func TestEngine_UndefinedWinnerIsFault(t *testing.T) {
	g := loadGraph(t, "testdata/diamond.txt")
	_, err := RunPlain(context.Background(), g, 0, state.VertexRange{}, testLogger())
	require.NoError(t, err)

	faults := make(chan error, 1)
	e, err := NewEngine(EngineConfig{
		Graph:    g,
		Selector: withdrawSelector{},
		Sync:     LocalSync{},
		Fault:    func(err error) { faults <- err },
		Log:      testLogger(),
	})
	require.NoError(t, err)
	all := []state.VertexId{0, 1, 2, 3}
	// 1 routes via 3 and is offered 0 again
	e.StartFrom(context.Background(), all, func() { t.Error("fixpoint reached after a fault") })
	select {
	case err := <-faults:
		assert.ErrorContains(t, err, "vertex 1 selected undefined")
	case <-time.After(time.Second):
		t.Fatal("fault was not reported")
	}
	assert.Equal(t, state.VertexId(3), g.Vertex(1).NextHop)
}

func TestEngine_Cancelled(t *testing.T) {
	g := loadGraph(t, "testdata/scenario.txt")
	ctx, cancel := context.WithCancelCause(context.Background())
	cause := errors.New("stop")
	cancel(cause)
	_, err := RunPlain(ctx, g, 0, state.VertexRange{}, testLogger())
	assert.ErrorIs(t, err, cause)
}

func TestLeadsTo(t *testing.T) {
	hops := []state.VertexId{state.Undefined, 0, 1, 2}
	assert.True(t, leadsTo(hops, 3, 1))
	assert.True(t, leadsTo(hops, 1, 1))
	assert.False(t, leadsTo(hops, 1, 3))
	cyc := []state.VertexId{1, 0}
	assert.False(t, leadsTo(cyc, 0, 5))
}

func TestPlainSelector(t *testing.T) {
	var got state.VertexId
	PlainSelector{}.Select(0, 0, []mpc.Candidate{{Vertex: 4, Rank: 2}, {Vertex: 5, Rank: 7}, {Vertex: 6, Rank: 7}, {Vertex: 7, Rank: 1}},
		func(v state.VertexId, err error) {
			require.NoError(t, err)
			got = v
		})
	assert.Equal(t, state.VertexId(5), got)
}
