package core

import (
	"context"
	"log/slog"

	"github.com/encodeous/pbgp/state"
)

// RunPlain computes the fixpoint in plaintext. It follows the same rounds as the private computation.
func RunPlain(ctx context.Context, g *state.Graph, dst state.VertexId, owned state.VertexRange, log *slog.Logger) (Outcome, error) {
	res := make(chan error, 1)
	e, err := NewEngine(EngineConfig{
		Graph:       g,
		Destination: dst,
		Owned:       owned,
		Selector:    PlainSelector{},
		Sync:        LocalSync{},
		Fault: func(err error) {
			res <- err
		},
		Log: log,
	})
	if err != nil {
		return Outcome{}, err
	}
	e.Start(ctx, func() {
		res <- nil
	})
	select {
	case err := <-res:
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Table: g.Table(), Rounds: e.Rounds()}, nil
	case <-ctx.Done():
		return Outcome{}, context.Cause(ctx)
	}
}
