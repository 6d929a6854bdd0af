package state

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validCentral() CentralCfg {
	return NewLocalGroup(3, 40000)
}

func TestCentralConfigValidator_Valid(t *testing.T) {
	cfg := validCentral()
	assert.NoError(t, CentralConfigValidator(&cfg))
	assert.NoError(t, NetworkConfigValidator(&cfg))
}

func TestCentralConfigValidator_TooFewParticipants(t *testing.T) {
	cfg := NewLocalGroup(2, 40000)
	assert.ErrorContains(t, CentralConfigValidator(&cfg), "at least 3")
}

func TestCentralConfigValidator_DuplicateIndex(t *testing.T) {
	cfg := validCentral()
	cfg.Participants[2].Index = 2
	assert.ErrorContains(t, CentralConfigValidator(&cfg), "duplicate participant index 2")
}

func TestCentralConfigValidator_IndexOutOfRange(t *testing.T) {
	cfg := validCentral()
	cfg.Participants[0].Index = 7
	assert.Error(t, CentralConfigValidator(&cfg))
}

func TestCentralConfigValidator_SharedAddress(t *testing.T) {
	cfg := validCentral()
	cfg.Participants[1].Addr = cfg.Participants[0].Addr
	assert.ErrorContains(t, CentralConfigValidator(&cfg), "share address")
}

func TestCentralConfigValidator_Dealer(t *testing.T) {
	cfg := validCentral()
	cfg.Dealer = 4
	assert.ErrorContains(t, CentralConfigValidator(&cfg), "dealer")
}

func TestCentralConfigValidator_Timeout(t *testing.T) {
	cfg := validCentral()
	cfg.GateTimeout = -time.Second
	assert.ErrorContains(t, CentralConfigValidator(&cfg), "gate_timeout")

	cfg = validCentral()
	cfg.SyncTimeout = 0
	assert.ErrorContains(t, CentralConfigValidator(&cfg), "sync_timeout")
}

func TestNetworkConfigValidator_MissingAddr(t *testing.T) {
	cfg := validCentral()
	cfg.Participants[1].Addr = netip.AddrPort{}
	assert.NoError(t, CentralConfigValidator(&cfg))
	assert.Error(t, NetworkConfigValidator(&cfg))
}

func TestLocalConfigValidator(t *testing.T) {
	cfg := validCentral()
	assert.NoError(t, LocalConfigValidator(&LocalCfg{Index: 2}, &cfg))
	assert.Error(t, LocalConfigValidator(&LocalCfg{Index: 5}, &cfg))
	assert.Error(t, LocalConfigValidator(&LocalCfg{Index: 1, Workers: -1}, &cfg))
	assert.Error(t, LocalConfigValidator(&LocalCfg{Index: 1, Owned: VertexRange{Start: 4, End: 2}}, &cfg))
	assert.NoError(t, LocalConfigValidator(&LocalCfg{Index: 1, Owned: VertexRange{Start: 0, End: 2}}, &cfg))
}

func TestGraphValidator(t *testing.T) {
	cfg := validCentral()
	g := NewGraph(4)
	assert.NoError(t, GraphValidator(g, &cfg, &LocalCfg{Index: 1}))
	cfg.Destination = 4
	assert.Error(t, GraphValidator(g, &cfg, &LocalCfg{Index: 1}))
	cfg.Destination = 0
	assert.Error(t, GraphValidator(g, &cfg, &LocalCfg{Index: 1, Owned: VertexRange{Start: 0, End: 9}}))
}
