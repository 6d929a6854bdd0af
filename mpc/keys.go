package mpc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/encodeous/pbgp/state"
)

// MaxKeyLength bounds the text form of a GateKey on the wire.
const MaxKeyLength = 64

type GateKind uint8

const (
	KindInput   GateKind = iota + 1 // operand dealt by the dealer, one fragment
	KindMul                         // degree reduction of a product, one fragment per participant
	KindReveal                      // share published for reconstruction, one fragment per participant
	KindSync                        // member of a participant's changed set
	KindSyncEnd                     // end of a participant's changed set, value is its size
)

var kindNames = map[GateKind]string{
	KindInput:   "in",
	KindMul:     "mul",
	KindReveal:  "rev",
	KindSync:    "sync",
	KindSyncEnd: "end",
}

func (k GateKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsSync reports whether the kind belongs to round synchronisation rather than a circuit.
func (k GateKind) IsSync() bool {
	return k == KindSync || k == KindSyncEnd
}

// GateKey identifies one gate result. The same logical gate always produces the same key on every participant.
type GateKey struct {
	Kind   GateKind
	Round  uint32
	Vertex state.VertexId
	Step   uint32
	Slot   uint16
}

// String is the wire form: kind/round/vertex/step/slot.
func (k GateKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%d/%d", k.Kind, k.Round, k.Vertex, k.Step, k.Slot)
}

func ParseGateKey(s string) (GateKey, error) {
	if len(s) > MaxKeyLength {
		return GateKey{}, fmt.Errorf("gate key of length %d exceeds %d", len(s), MaxKeyLength)
	}
	parts := strings.Split(s, "/")
	if len(parts) != 5 {
		return GateKey{}, fmt.Errorf("malformed gate key %q", s)
	}
	var key GateKey
	for kind, name := range kindNames {
		if name == parts[0] {
			key.Kind = kind
		}
	}
	if key.Kind == 0 {
		return GateKey{}, fmt.Errorf("unknown gate kind in %q", s)
	}
	round, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return GateKey{}, fmt.Errorf("bad round in %q: %w", s, err)
	}
	vertex, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		return GateKey{}, fmt.Errorf("bad vertex in %q: %w", s, err)
	}
	step, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return GateKey{}, fmt.Errorf("bad step in %q: %w", s, err)
	}
	slot, err := strconv.ParseUint(parts[4], 10, 16)
	if err != nil {
		return GateKey{}, fmt.Errorf("bad slot in %q: %w", s, err)
	}
	key.Round = uint32(round)
	key.Vertex = state.VertexId(vertex)
	key.Step = uint32(step)
	key.Slot = uint16(slot)
	return key, nil
}

// Message is one fragment received from a participant.
type Message struct {
	From  state.PeerIndex
	Key   GateKey
	Value int64
}

// Transport delivers fragments between participants. Sending to Self loops back.
type Transport interface {
	Self() state.PeerIndex
	Send(to state.PeerIndex, key GateKey, value int64) error
	// SetHandler must be called before any peer sends to this transport.
	SetHandler(h func(Message))
	Close() error
}
