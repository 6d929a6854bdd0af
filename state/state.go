package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	Modules map[string]NyModule
	// ModuleOrder is the order modules were initialized in, cleanup runs in reverse
	ModuleOrder []string
	Graph       *Graph
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	CentralCfg
	LocalCfg
	Context   context.Context
	Cancel    context.CancelCauseFunc
	Log       *slog.Logger
	AuxConfig map[string]any
	Started   atomic.Bool
	Stopping  atomic.Bool
}

// Label is the short participant name used as the log prefix.
func (e *Env) Label() string {
	return fmt.Sprintf("p%d", e.Index)
}

// Aux returns the auxiliary value stored under key, if it has type T.
func Aux[T any](e *Env, key string) (T, bool) {
	var zero T
	if e.AuxConfig == nil {
		return zero, false
	}
	v, ok := e.AuxConfig[key].(T)
	return v, ok
}
