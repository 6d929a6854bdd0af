//go:build integration

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/encodeous/pbgp/core"
	"github.com/encodeous/pbgp/state"
)

type Signal chan bool

func NewSignal() Signal {
	return make(chan bool)
}
func (s Signal) Trigger() {
	select {
	case <-s:
	default:
		close(s)
	}
}
func (s Signal) Triggered() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}

// Harness runs a group of participants in this process, connected over loopback TCP.
type Harness struct {
	Central state.CentralCfg
	Local   []state.LocalCfg
	// Hold keeps a participant from starting until its signal is triggered
	Hold map[state.PeerIndex]Signal
	// Skip leaves these participants out, the others will fail to connect
	Skip     map[state.PeerIndex]bool
	LogLevel slog.Level

	mu     sync.Mutex
	States []*state.State
}

func freePort() (uint16, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return uint16(ln.Addr().(*net.TCPAddr).Port), nil
}

// NewHarness creates a group of n participants computing routes to vertex 0 of graph.
func NewHarness(n int, graph string) (*Harness, error) {
	abs, err := filepath.Abs(graph)
	if err != nil {
		return nil, err
	}
	h := &Harness{
		Central:  state.NewLocalGroup(n, 0),
		Hold:     make(map[state.PeerIndex]Signal),
		Skip:     make(map[state.PeerIndex]bool),
		LogLevel: slog.LevelWarn,
		States:   make([]*state.State, n),
	}
	h.Central.Graph = abs
	h.Central.GateTimeout = 5 * time.Second
	for i := range h.Central.Participants {
		port, err := freePort()
		if err != nil {
			return nil, err
		}
		p := &h.Central.Participants[i]
		p.Addr = netip.AddrPortFrom(p.Addr.Addr(), port)
		h.Local = append(h.Local, state.LocalCfg{Index: p.Index, Workers: 2})
	}
	return h, nil
}

// Pending is the number of gates participant idx left unfinished, it is valid once Run has returned.
func (h *Harness) Pending(idx state.PeerIndex) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.States[idx-1]
	if s == nil {
		return 0
	}
	peer := core.Get[*core.MpcPeer](s)
	if peer.Evaluator == nil {
		return 0
	}
	return peer.Evaluator.Pending()
}

// Run starts every participant that is not skipped and waits for all of them to finish.
// Results are indexed by participant, skipped participants have a zero outcome and no error.
func (h *Harness) Run(ctx context.Context) ([]core.Outcome, []error) {
	n := h.Central.N()
	outs := make([]core.Outcome, n)
	errs := make([]error, n)
	wg := sync.WaitGroup{}
	for i, p := range h.Central.Participants {
		if h.Skip[p.Index] {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if hold, ok := h.Hold[p.Index]; ok {
				select {
				case <-hold:
				case <-ctx.Done():
					errs[i] = context.Cause(ctx)
					return
				}
			}
			labels := pprof.Labels("pbgp participant", fmt.Sprint(p.Index))
			pprof.Do(ctx, labels, func(ctx context.Context) {
				var s *state.State
				outs[i], errs[i] = core.Start(ctx, h.Central, h.Local[i], h.LogLevel, nil, &s)
				h.mu.Lock()
				h.States[i] = s
				h.mu.Unlock()
			})
		}()
	}
	wg.Wait()
	return outs, errs
}
