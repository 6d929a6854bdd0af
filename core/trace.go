package core

import (
	"sync"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/pbgp/state"
)

// AuxTrace is the aux config key of a channel that receives every RouteEvent.
const AuxTrace = "trace"

// Trace fans route events out to listeners. A listener registered through AuxTrace receives nothing
// once Cleanup returns, so its owner may close it after the participant stops.
type Trace struct {
	broadcast.Broadcaster
	listener chan<- interface{}
	mu       sync.RWMutex
	closed   bool
}

func (n *Trace) Init(s *state.State) error {
	n.Broadcaster = broadcast.NewBroadcaster(1024)
	if ch, ok := state.Aux[chan<- interface{}](s.Env, AuxTrace); ok {
		n.Register(ch)
		n.listener = ch
	}
	return nil
}

// Publish submits ev to every listener. Events published after cleanup are dropped.
func (n *Trace) Publish(ev RouteEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	n.Submit(ev)
}

func (n *Trace) Cleanup(s *state.State) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if n.listener != nil {
		// processed by the broadcast loop after any event it is still delivering
		n.Unregister(n.listener)
	}
	return n.Broadcaster.Close()
}
