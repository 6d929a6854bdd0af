package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func CentralConfigValidator(cfg *CentralCfg) error {
	n := cfg.N()
	if n < MinParticipants {
		return fmt.Errorf("a group needs at least %d participants, got %d", MinParticipants, n)
	}
	seen := make(map[PeerIndex]bool)
	addrs := make(map[string]PeerIndex)
	for _, p := range cfg.Participants {
		if p.Index < 1 || int(p.Index) > n {
			return fmt.Errorf("participant index %d must be within [1, %d]", p.Index, n)
		}
		if seen[p.Index] {
			return fmt.Errorf("duplicate participant index %d", p.Index)
		}
		seen[p.Index] = true
		if p.Addr.IsValid() {
			if other, ok := addrs[p.Addr.String()]; ok {
				return fmt.Errorf("participants %d and %d share address %s", other, p.Index, p.Addr)
			}
			addrs[p.Addr.String()] = p.Index
		}
	}
	if cfg.Dealer < 1 || int(cfg.Dealer) > n {
		return fmt.Errorf("dealer %d is not a participant", cfg.Dealer)
	}
	if cfg.GateTimeout <= 0 {
		return fmt.Errorf("gate_timeout must be positive, got %s", cfg.GateTimeout)
	}
	if cfg.SyncTimeout <= 0 {
		return fmt.Errorf("sync_timeout must be positive, got %s", cfg.SyncTimeout)
	}
	if cfg.Destination < 0 {
		return fmt.Errorf("destination %d is not a vertex", cfg.Destination)
	}
	return nil
}

// NetworkConfigValidator checks that every participant can be reached over the network.
func NetworkConfigValidator(cfg *CentralCfg) error {
	for _, p := range cfg.Participants {
		if !p.Addr.IsValid() {
			return fmt.Errorf("participant %d has no address", p.Index)
		}
	}
	return nil
}

func LocalConfigValidator(local *LocalCfg, central *CentralCfg) error {
	if _, err := central.GetParticipant(local.Index); err != nil {
		return err
	}
	if local.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", local.Workers)
	}
	if !local.Owned.IsZero() && (local.Owned.Start < 0 || local.Owned.End <= local.Owned.Start) {
		return fmt.Errorf("owned range [%d, %d) is empty or negative", local.Owned.Start, local.Owned.End)
	}
	if local.LogPath != "" {
		if err := PathValidator(local.LogPath); err != nil {
			return fmt.Errorf("log_path: %w", err)
		}
	}
	return nil
}

// GraphValidator checks that a loaded graph fits the configuration.
func GraphValidator(g *Graph, central *CentralCfg, local *LocalCfg) error {
	if !g.Contains(central.Destination) {
		return fmt.Errorf("destination %d is outside the graph of %d vertices", central.Destination, g.Len())
	}
	if !local.Owned.IsZero() && int(local.Owned.End) > g.Len() {
		return fmt.Errorf("owned range [%d, %d) exceeds the graph of %d vertices", local.Owned.Start, local.Owned.End, g.Len())
	}
	return nil
}
