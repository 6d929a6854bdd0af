package mpc

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/encodeous/pbgp/perf"
	"github.com/encodeous/pbgp/state"
	"github.com/gammazero/workerpool"
)

type Config struct {
	Self      state.PeerIndex
	N         int
	Dealer    state.PeerIndex
	Timeout   time.Duration
	Workers   int // defaults to GOMAXPROCS
	SelfCheck bool
	Seed      *[32]byte // seeds the sharing randomness, nil for a random seed
}

// Evaluator runs circuits for one participant. Every gate continuation runs on its worker pool.
type Evaluator struct {
	Config
	scheme *Scheme
	tr     Transport
	inbox  *Inbox
	pool   *workerpool.WorkerPool
	rnd    io.Reader
	log    *slog.Logger

	mu      sync.RWMutex
	stopped bool
}

func NewEvaluator(cfg Config, tr Transport, log *slog.Logger) (*Evaluator, error) {
	scheme, err := NewScheme(cfg.N)
	if err != nil {
		return nil, err
	}
	if cfg.Self < 1 || int(cfg.Self) > cfg.N {
		return nil, fmt.Errorf("participant %d is outside [1, %d]", cfg.Self, cfg.N)
	}
	if cfg.Dealer < 1 || int(cfg.Dealer) > cfg.N {
		return nil, fmt.Errorf("dealer %d is outside [1, %d]", cfg.Dealer, cfg.N)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = state.GateTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	rnd, err := NewStream(cfg.Seed)
	if err != nil {
		return nil, err
	}
	e := &Evaluator{
		Config: cfg,
		scheme: scheme,
		tr:     tr,
		pool:   workerpool.New(cfg.Workers),
		rnd:    rnd,
		log:    log,
	}
	e.inbox = NewInbox(cfg.N, cfg.Timeout, e.Submit, log)
	return e, nil
}

func (e *Evaluator) Start() {
	e.inbox.Start()
}

// Stop waits for running tasks. Tasks submitted afterwards are dropped.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()
	e.pool.StopWait()
	e.inbox.Stop()
}

// Submit queues a task on the worker pool.
func (e *Evaluator) Submit(task func()) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return
	}
	e.pool.Submit(task)
}

// Deliver hands a circuit fragment received from the transport to the inbox.
func (e *Evaluator) Deliver(m Message) {
	if m.Key.Kind.IsSync() {
		e.log.Warn("evaluator received a sync message", "key", m.Key, "peer", m.From)
		return
	}
	if state.DBG_log_gates {
		e.log.Debug("recv fragment", "key", m.Key, "peer", m.From)
	}
	perf.FragmentsReceived.Add(1)
	e.inbox.Deliver(m.From, m.Key, FromInt64(m.Value))
}

func (e *Evaluator) Scheme() *Scheme {
	return e.scheme
}

func (e *Evaluator) IsDealer() bool {
	return e.Self == e.Dealer
}

// Pending is the number of gates waiting for fragments or for a continuation.
func (e *Evaluator) Pending() int {
	return e.inbox.Pending()
}

func (e *Evaluator) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

// scatter sends shares[i] to participant i+1.
func (e *Evaluator) scatter(key GateKey, shares []Element) error {
	if e.isStopped() {
		return ErrEvaluatorStopped
	}
	for i, sh := range shares {
		if err := e.tr.Send(state.PeerIndex(i+1), key, sh.Int64()); err != nil {
			return fmt.Errorf("send %s to %d: %w", key, i+1, err)
		}
	}
	perf.FragmentsSent.Add(float64(len(shares)))
	return nil
}

// broadcast sends the same value to every participant.
func (e *Evaluator) broadcast(key GateKey, v Element) error {
	if e.isStopped() {
		return ErrEvaluatorStopped
	}
	for i := 1; i <= e.N; i++ {
		if err := e.tr.Send(state.PeerIndex(i), key, v.Int64()); err != nil {
			return fmt.Errorf("send %s to %d: %w", key, i, err)
		}
	}
	perf.FragmentsSent.Add(float64(e.N))
	return nil
}

// NewCircuit starts an empty circuit for vertex in round. fail is called at most once, with the first gate fault.
func (e *Evaluator) NewCircuit(round uint32, vertex state.VertexId, fail func(error)) *Circuit {
	return &Circuit{
		ev:     e,
		Round:  round,
		Vertex: vertex,
		values: make(map[GateKey]Shared),
		fail:   fail,
		log:    e.log.With("round", round, "vertex", vertex),
	}
}
