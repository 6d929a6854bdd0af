package state

import "time"

const (
	// Undefined is the next hop of a vertex without a route.
	Undefined VertexId = -1

	// PrefSkipModulus is skipped by the preference counter: ranks are never multiples of it.
	PrefSkipModulus = 3

	// MaxRank bounds preference ranks so that their blinded encodings stay below the field modulus.
	MaxRank = 1<<20 - 1

	MaxVertices = 1 << 24

	// MaxIdGap bounds how many vertex ids a topology may leave unused, ids are expected to be dense.
	MaxIdGap = 1 << 12
)

var (
	// GateTimeout is how long a gate may wait for its fragments before the group is considered faulted.
	GateTimeout = time.Second * 10
	SyncTimeout = time.Second * 30
	// ProgressInterval is how often a running participant logs its progress
	ProgressInterval = time.Second * 5

	DialRetries = uint64(8)
	DialBackoff = time.Millisecond * 50
	DefaultPort = 57180

	DefaultDealer = PeerIndex(1)
	// MinParticipants is the smallest group that can multiply a degree-t sharing and still reconstruct.
	MinParticipants = 3
)

// debug flags, set by the cli
var (
	DBG_log_rounds        = false
	DBG_log_gates         = false
	DBG_log_route_changes = false
	DBG_trace             = false
	DBG_debug             = false
)

var (
	NodeConfigPath    = "node.yaml"
	CentralConfigPath = "central.yaml"
)
