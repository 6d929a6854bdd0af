package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/encodeous/pbgp/impl"
	"github.com/encodeous/pbgp/mpc"
	"github.com/encodeous/pbgp/state"
	"golang.org/x/sync/errgroup"
)

// SimConfig describes a whole group run inside one process.
type SimConfig struct {
	Central state.CentralCfg
	// Local is copied for every participant, Index is filled in
	Local    state.LocalCfg
	LogLevel slog.Level
	// Isolate cuts these participants off the in-memory network
	Isolate []state.PeerIndex
	// Seeds makes the sharing randomness of each participant reproducible
	Seeds bool
	// Trace receives the route events of participant 1
	Trace chan<- interface{}
}

// Simulate runs every participant of the group over an in-memory network and returns their outcomes by index.
func Simulate(ctx context.Context, cfg SimConfig) ([]Outcome, error) {
	n := cfg.Central.N()
	network := impl.NewMemNetwork(n)
	defer network.Close()
	for _, idx := range cfg.Isolate {
		network.Isolate(idx)
	}
	shared := impl.NewSharedSync(n)

	outcomes := make([]Outcome, n)
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range cfg.Central.Participants {
		local := cfg.Local
		local.Index = p.Index
		if local.LogPath != "" {
			local.LogPath = fmt.Sprintf("%s.p%d", cfg.Local.LogPath, p.Index)
		}
		aux := map[string]any{
			AuxTransport: mpc.Transport(network.Endpoint(p.Index)),
			AuxSync:      RoundSync(shared),
		}
		if cfg.Seeds {
			aux[AuxSeed] = &[32]byte{byte(p.Index)}
		}
		if cfg.Trace != nil && p.Index == 1 {
			aux[AuxTrace] = cfg.Trace
		}
		g.Go(func() error {
			out, err := Start(gctx, cfg.Central, local, cfg.LogLevel, aux, nil)
			if err != nil {
				return fmt.Errorf("participant %d: %w", p.Index, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := 1; i < n; i++ {
		if outcomes[i].Table.String() != outcomes[0].Table.String() {
			return outcomes, fmt.Errorf("participants %d and %d disagree on the routing table",
				cfg.Central.Participants[0].Index, cfg.Central.Participants[i].Index)
		}
	}
	return outcomes, nil
}
