package core

import (
	"errors"
	"fmt"

	"github.com/encodeous/pbgp/impl"
	"github.com/encodeous/pbgp/mpc"
	"github.com/encodeous/pbgp/state"
	"go.uber.org/multierr"
)

const (
	// AuxTransport replaces the TCP transport, it must hold an mpc.Transport.
	AuxTransport = "transport"
	// AuxSync replaces the message based round sync, it must hold a RoundSync.
	AuxSync = "sync"
	// AuxSeed seeds the sharing randomness of this participant, it must hold a *[32]byte.
	AuxSeed = "seed"
)

// ErrConverged ends a participant once its engine reaches the fixpoint.
var ErrConverged = errors.New("fixpoint reached")

// MpcPeer connects this participant to the rest of the group and runs its circuit evaluator.
type MpcPeer struct {
	Transport mpc.Transport
	Evaluator *mpc.Evaluator
	Sync      RoundSync
	msgSync   *MessageSync
}

func (m *MpcPeer) Init(s *state.State) error {
	s.Log.Debug("init mpc peer")
	tr, ok := state.Aux[mpc.Transport](s.Env, AuxTransport)
	if !ok {
		self, err := s.GetParticipant(s.Index)
		if err != nil {
			return err
		}
		tcp, err := impl.ListenTCP(s.Context, s.Session, s.Index, self.Addr, s.Log)
		if err != nil {
			return err
		}
		if err := tcp.Connect(s.Context, s.Peers(s.Index)); err != nil {
			return multierr.Append(err, tcp.Close())
		}
		tr = tcp
	}
	m.Transport = tr

	seed, _ := state.Aux[*[32]byte](s.Env, AuxSeed)
	ev, err := mpc.NewEvaluator(mpc.Config{
		Self:      s.Index,
		N:         s.N(),
		Dealer:    s.Dealer,
		Timeout:   s.GateTimeout,
		Workers:   s.Workers,
		SelfCheck: s.SelfCheck,
		Seed:      seed,
	}, tr, s.Log)
	if err != nil {
		return err
	}
	m.Evaluator = ev

	if rs, ok := state.Aux[RoundSync](s.Env, AuxSync); ok {
		m.Sync = rs
	} else {
		m.msgSync = NewMessageSync(tr, s.N(), s.SyncTimeout)
		m.Sync = m.msgSync
	}

	ev.Start()
	tr.SetHandler(m.route)
	return nil
}

func (m *MpcPeer) route(msg mpc.Message) {
	if msg.Key.Kind.IsSync() {
		if m.msgSync != nil {
			m.msgSync.Deliver(msg)
		}
		return
	}
	m.Evaluator.Deliver(msg)
}

func (m *MpcPeer) Cleanup(s *state.State) error {
	if m.Evaluator != nil {
		m.Evaluator.Stop()
	}
	if m.Transport != nil {
		return m.Transport.Close()
	}
	return nil
}

// BGPProcess loads the topology and drives the fixpoint engine over the group's evaluator.
type BGPProcess struct {
	Engine *Engine
	Table  state.RouteTable
}

func (p *BGPProcess) Init(s *state.State) error {
	s.Log.Debug("init bgp process")
	g, err := state.LoadGraph(s.CentralCfg.Graph)
	if err != nil {
		return err
	}
	for _, skipped := range g.Skipped {
		s.Log.Warn("skipped malformed topology line", "err", skipped)
	}
	if err := state.GraphValidator(g, &s.CentralCfg, &s.LocalCfg); err != nil {
		return err
	}
	s.Graph = g
	s.Log.Info("loaded topology", "vertices", g.Len(), "destination", s.Destination)

	peer := Get[*MpcPeer](s)
	trace := Get[*Trace](s)
	p.Engine, err = NewEngine(EngineConfig{
		Graph:       g,
		Destination: s.Destination,
		Owned:       s.Owned,
		Selector:    &MpcSelector{Evaluator: peer.Evaluator},
		Sync:        peer.Sync,
		Exec:        peer.Evaluator.Submit,
		Dispatch: func(f func()) {
			s.Dispatch(func(s *state.State) error {
				f()
				return nil
			})
		},
		Fault: func(err error) {
			s.Cancel(err)
		},
		Trace: trace.Publish,
		Log:   s.Log,
	})
	if err != nil {
		return err
	}
	s.RepeatTask(func(s *state.State) error {
		s.Log.Info("computing", "rounds", p.Engine.Rounds(), "pending_gates", peer.Evaluator.Pending())
		return nil
	}, state.ProgressInterval)
	// the engine finishes on the main loop
	p.Engine.Start(s.Context, func() {
		p.Table = g.Table()
		s.Cancel(ErrConverged)
	})
	return nil
}

func (p *BGPProcess) Cleanup(s *state.State) error {
	return nil
}

// Outcome is what a participant reports after reaching the fixpoint.
type Outcome struct {
	Table  state.RouteTable
	Rounds int
}

func (o Outcome) String() string {
	return fmt.Sprintf("%d rounds\n%s", o.Rounds, o.Table)
}
