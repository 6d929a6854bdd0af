package mpc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/pbgp/state"
	"github.com/jellydator/ttlcache/v3"
)

type pending struct {
	frags  []Element
	have   []bool
	count  int
	want   int
	resume func([]Element, error)
	fired  bool
}

// Inbox assembles gate fragments and resumes the continuation waiting on each key exactly once.
// Fragments may arrive before the continuation is installed and are buffered until then.
type Inbox struct {
	mu      sync.Mutex
	n       int
	entries map[GateKey]*pending
	// expiry tracks how long each entry has been waiting
	expiry *ttlcache.Cache[GateKey, *pending]
	exec   func(func())
	log    *slog.Logger
	unsub  func()
	done   chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
}

// NewInbox creates an inbox for n participants. Continuations are run through exec.
func NewInbox(n int, timeout time.Duration, exec func(func()), log *slog.Logger) *Inbox {
	ib := &Inbox{
		n:       n,
		entries: make(map[GateKey]*pending),
		expiry: ttlcache.New[GateKey, *pending](
			ttlcache.WithTTL[GateKey, *pending](timeout),
			ttlcache.WithDisableTouchOnHit[GateKey, *pending](),
		),
		exec: exec,
		log:  log,
		done: make(chan struct{}),
	}
	ib.unsub = ib.expiry.OnEviction(ib.onExpire)
	return ib
}

func (ib *Inbox) Start() {
	if !ib.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		ib.expiry.Start()
		close(ib.done)
	}()
}

// Stop halts expiry. Continuations still pending are abandoned.
func (ib *Inbox) Stop() {
	ib.stopOnce.Do(func() {
		defer ib.unsub()
		if !ib.started.Load() {
			return
		}
		// Start may not have reached the cache loop yet
		for {
			ib.expiry.Stop()
			select {
			case <-ib.done:
				return
			case <-time.After(time.Millisecond):
			}
		}
	})
}

// Pending is the number of keys with buffered fragments or an installed continuation.
func (ib *Inbox) Pending() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return len(ib.entries)
}

func (ib *Inbox) expected(kind GateKind) int {
	if kind == KindInput {
		return 1
	}
	return ib.n
}

func (ib *Inbox) entry(key GateKey) *pending {
	p, ok := ib.entries[key]
	if !ok {
		want := ib.expected(key.Kind)
		p = &pending{
			frags: make([]Element, want),
			have:  make([]bool, want),
			want:  want,
		}
		ib.entries[key] = p
		ib.expiry.Set(key, p, ttlcache.DefaultTTL)
	}
	return p
}

// take completes the entry if it is ready, the caller must hold mu.
func (ib *Inbox) take(key GateKey, p *pending) func() {
	if p.fired || p.resume == nil || p.count != p.want {
		return nil
	}
	p.fired = true
	delete(ib.entries, key)
	ib.expiry.Delete(key)
	resume, frags := p.resume, p.frags
	return func() {
		resume(frags, nil)
	}
}

// Deliver records one fragment. A KindInput fragment occupies the single slot, others are indexed by sender.
func (ib *Inbox) Deliver(from state.PeerIndex, key GateKey, v Element) {
	slot := 0
	if key.Kind != KindInput {
		slot = int(from) - 1
	}
	if slot < 0 || slot >= ib.expected(key.Kind) {
		ib.log.Warn("dropping fragment from unknown participant", "key", key, "peer", from)
		return
	}

	ib.mu.Lock()
	p := ib.entry(key)
	if p.have[slot] {
		ib.mu.Unlock()
		ib.log.Warn("dropping duplicate fragment", "key", key, "peer", from)
		return
	}
	p.have[slot] = true
	p.frags[slot] = v
	p.count++
	run := ib.take(key, p)
	ib.mu.Unlock()

	if run != nil {
		ib.exec(run)
	}
}

// Await installs the continuation for key. It receives the fragments ordered by participant, or an error.
func (ib *Inbox) Await(key GateKey, resume func([]Element, error)) {
	ib.mu.Lock()
	p := ib.entry(key)
	if p.resume != nil {
		ib.mu.Unlock()
		ib.exec(func() {
			resume(nil, ErrDuplicateGate)
		})
		return
	}
	p.resume = resume
	// the timeout runs from the moment someone waits on the gate
	ib.expiry.Set(key, p, ttlcache.DefaultTTL)
	run := ib.take(key, p)
	ib.mu.Unlock()

	if run != nil {
		ib.exec(run)
	}
}

func (ib *Inbox) onExpire(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[GateKey, *pending]) {
	if reason != ttlcache.EvictionReasonExpired {
		return
	}
	key, p := item.Key(), item.Value()

	ib.mu.Lock()
	if p.fired || ib.entries[key] != p {
		ib.mu.Unlock()
		return
	}
	p.fired = true
	delete(ib.entries, key)
	resume, have := p.resume, p.count
	ib.mu.Unlock()

	if resume == nil {
		ib.log.Debug("dropping stale fragments", "key", key, "have", have)
		return
	}
	err := &UnresponsiveError{Key: key, Have: have, Want: p.want}
	ib.exec(func() {
		resume(nil, err)
	})
}
