package mpc

import "github.com/encodeous/pbgp/state"

// Shared is this participant's share of a secret value. It can only be turned into plaintext through Circuit.Distribute.
type Shared struct {
	v Element
}

// Revealed is a value reconstructed from every participant's share.
type Revealed struct {
	v Element
}

func (r Revealed) Value() Element {
	return r.v
}

// Bool interprets a revealed 0/1 value.
func (r Revealed) Bool() bool {
	return r.v != 0
}

// EncodeVertex maps a vertex id to a public field constant, Undefined becomes 0.
func EncodeVertex(v state.VertexId) Element {
	return FromInt64(int64(v) + 1)
}

// DecodeVertex inverts EncodeVertex. Values that cannot name a vertex decode to Undefined.
func DecodeVertex(r Revealed) state.VertexId {
	v := r.v
	if v == 0 || uint64(v) > state.MaxVertices {
		return state.Undefined
	}
	return state.VertexId(v - 1)
}

// Candidate is a route offer together with the preference the evaluating vertex assigns it.
type Candidate struct {
	Vertex state.VertexId
	Rank   uint32
}
