package state

import (
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ParticipantCfg is the central description of one computation participant.
type ParticipantCfg struct {
	Index PeerIndex
	Addr  netip.AddrPort
}

// CentralCfg is shared verbatim by every participant of a group.
type CentralCfg struct {
	Session      uuid.UUID
	Participants []ParticipantCfg
	Dealer       PeerIndex     `yaml:",omitempty"` // participant that owns the preference data and deals inputs
	Graph        string        // path to the edge list
	Destination  VertexId      // vertex every route leads to
	GateTimeout  time.Duration `yaml:"gate_timeout,omitempty"`
	SyncTimeout  time.Duration `yaml:"sync_timeout,omitempty"` // how long a round waits for every participant's changed set
	SelfCheck    bool          `yaml:"self_check,omitempty"`   // cross-check revealed comparison bits against plaintext, development only
}

// LocalCfg represents local participant-level configuration
type LocalCfg struct {
	Index   PeerIndex
	Workers int         `yaml:",omitempty"` // worker pool size, defaults to GOMAXPROCS
	Owned   VertexRange `yaml:",omitempty"` // vertices evaluated by this group, defaults to all
	LogPath string      `yaml:"log_path,omitempty"`
}

func (c *CentralCfg) N() int {
	return len(c.Participants)
}

func (c *CentralCfg) GetParticipant(idx PeerIndex) (ParticipantCfg, error) {
	i := slices.IndexFunc(c.Participants, func(p ParticipantCfg) bool {
		return p.Index == idx
	})
	if i == -1 {
		return ParticipantCfg{}, fmt.Errorf("participant %d not found", idx)
	}
	return c.Participants[i], nil
}

// Peers returns every participant except self, ordered by index.
func (c *CentralCfg) Peers(self PeerIndex) []ParticipantCfg {
	peers := make([]ParticipantCfg, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.Index != self {
			peers = append(peers, p)
		}
	}
	slices.SortFunc(peers, func(a, b ParticipantCfg) int {
		return int(a.Index) - int(b.Index)
	})
	return peers
}

// ExpandCentralConfig fills in defaults.
func ExpandCentralConfig(cfg *CentralCfg) {
	if cfg.Dealer == 0 {
		cfg.Dealer = DefaultDealer
	}
	if cfg.GateTimeout == 0 {
		cfg.GateTimeout = GateTimeout
	}
	if cfg.SyncTimeout == 0 {
		cfg.SyncTimeout = SyncTimeout
	}
	slices.SortFunc(cfg.Participants, func(a, b ParticipantCfg) int {
		return int(a.Index) - int(b.Index)
	})
}

// NewLocalGroup builds a central config for n participants listening on consecutive loopback ports.
func NewLocalGroup(n int, basePort uint16) CentralCfg {
	cfg := CentralCfg{
		Session: uuid.New(),
	}
	for i := 1; i <= n; i++ {
		cfg.Participants = append(cfg.Participants, ParticipantCfg{
			Index: PeerIndex(i),
			Addr:  netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), basePort+uint16(i-1)),
		})
	}
	ExpandCentralConfig(&cfg)
	return cfg
}
