package mpc

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrMalformedShareSet   = errors.New("malformed share set")
	ErrPeerUnresponsive    = errors.New("peer unresponsive")
	ErrProtocolConsistency = errors.New("protocol consistency fault")
	ErrDuplicateGate       = errors.New("gate already pending")
	ErrEvaluatorStopped    = errors.New("evaluator stopped")
)

// LevelFatal is logged for faults that indicate a broken protocol run.
const LevelFatal = slog.LevelError + 4

// UnresponsiveError reports a gate whose fragments did not all arrive in time.
type UnresponsiveError struct {
	Key  GateKey
	Have int
	Want int
}

func (e *UnresponsiveError) Error() string {
	return fmt.Sprintf("peer unresponsive: gate %s has %d of %d fragments", e.Key, e.Have, e.Want)
}

func (e *UnresponsiveError) Is(target error) bool {
	return target == ErrPeerUnresponsive
}
