package state

import (
	"fmt"
	"slices"
	"strings"
)

type VertexId int32

func (v VertexId) String() string {
	if v == Undefined {
		return "undefined"
	}
	return fmt.Sprintf("%d", int32(v))
}

// PeerIndex identifies a computation participant, which is also its Shamir evaluation point.
type PeerIndex int

// Relationship is the role a neighbour plays from the point of view of the vertex holding the edge.
type Relationship uint8

const (
	Customer Relationship = iota
	Peer
	Provider
)

// Complement is the relationship seen from the other end of the edge.
func (r Relationship) Complement() Relationship {
	return Provider - r
}

func (r Relationship) String() string {
	switch r {
	case Customer:
		return "customer"
	case Peer:
		return "peer"
	case Provider:
		return "provider"
	}
	return fmt.Sprintf("relationship(%d)", uint8(r))
}

// Vertex is a simulated autonomous system.
type Vertex struct {
	Id           VertexId
	Neighbours   []VertexId
	Relationship map[VertexId]Relationship
	// Preference is the rank of routes offered by each neighbour, higher is better. Ranks are unique per vertex and never 0.
	Preference map[VertexId]uint32
	NextHop    VertexId
}

// Rank returns the preference of routes through n, where the Undefined hop ranks 0.
func (v *Vertex) Rank(n VertexId) uint32 {
	if n == Undefined {
		return 0
	}
	return v.Preference[n]
}

func (v *Vertex) HasNeighbour(n VertexId) bool {
	_, ok := v.Relationship[n]
	return ok
}

// Graph topology is immutable after load. Only Vertex.NextHop changes while the engine runs.
type Graph struct {
	Vertices []*Vertex
	// Skipped holds one error per malformed line dropped while loading.
	Skipped []error
}

func NewGraph(size int) *Graph {
	g := &Graph{Vertices: make([]*Vertex, size)}
	for i := range g.Vertices {
		g.Vertices[i] = &Vertex{
			Id:           VertexId(i),
			Relationship: make(map[VertexId]Relationship),
			Preference:   make(map[VertexId]uint32),
			NextHop:      Undefined,
		}
	}
	return g
}

func (g *Graph) Len() int {
	return len(g.Vertices)
}

func (g *Graph) Contains(id VertexId) bool {
	return id >= 0 && int(id) < len(g.Vertices)
}

func (g *Graph) Vertex(id VertexId) *Vertex {
	if !g.Contains(id) {
		return nil
	}
	return g.Vertices[id]
}

// Connect adds the edge a-b, where rel is b's role from a's point of view.
func (g *Graph) Connect(a, b VertexId, rel Relationship) error {
	if !g.Contains(a) || !g.Contains(b) {
		return fmt.Errorf("edge %d - %d is outside the graph", a, b)
	}
	if a == b {
		return fmt.Errorf("self loop on %d", a)
	}
	if rel > Provider {
		return fmt.Errorf("unknown relationship code %d", rel)
	}
	va, vb := g.Vertices[a], g.Vertices[b]
	if va.HasNeighbour(b) {
		return fmt.Errorf("duplicate edge %d - %d", a, b)
	}
	va.Relationship[b] = rel
	vb.Relationship[a] = rel.Complement()
	va.Neighbours = insertSorted(va.Neighbours, b)
	vb.Neighbours = insertSorted(vb.Neighbours, a)
	return nil
}

func insertSorted(s []VertexId, v VertexId) []VertexId {
	idx, _ := slices.BinarySearch(s, v)
	return slices.Insert(s, idx, v)
}

// AssignPreferences ranks every vertex's neighbours. Providers get the lowest ranks and customers the highest,
// ties go to the lower id. The counter skips multiples of PrefSkipModulus.
func (g *Graph) AssignPreferences() error {
	for _, v := range g.Vertices {
		counter := uint32(0)
		next := func() uint32 {
			counter++
			if counter%PrefSkipModulus == 0 {
				counter++
			}
			return counter
		}
		clear(v.Preference)
		for _, rel := range []Relationship{Provider, Peer, Customer} {
			for _, n := range v.Neighbours {
				if v.Relationship[n] == rel {
					v.Preference[n] = next()
				}
			}
		}
		if counter > MaxRank {
			return fmt.Errorf("vertex %d has too many neighbours to rank (%d)", v.Id, len(v.Neighbours))
		}
	}
	return nil
}

// NextHops copies the current next hop of every vertex.
func (g *Graph) NextHops() []VertexId {
	hops := make([]VertexId, len(g.Vertices))
	for i, v := range g.Vertices {
		hops[i] = v.NextHop
	}
	return hops
}

// ResetRoutes clears every next hop.
func (g *Graph) ResetRoutes() {
	for _, v := range g.Vertices {
		v.NextHop = Undefined
	}
}

// Table returns the routing decisions of all vertices with a defined next hop.
func (g *Graph) Table() RouteTable {
	rt := make(RouteTable, 0)
	for _, v := range g.Vertices {
		if v.NextHop != Undefined {
			rt = append(rt, MakePair(v.Id, v.NextHop))
		}
	}
	SortPairs(rt)
	return rt
}

// RouteTable maps vertex -> next hop, ordered by vertex.
type RouteTable []Pair[VertexId, VertexId]

func (rt RouteTable) Lookup(v VertexId) VertexId {
	idx, ok := slices.BinarySearchFunc(rt, v, func(p Pair[VertexId, VertexId], v VertexId) int {
		return int(p.V1) - int(v)
	})
	if !ok {
		return Undefined
	}
	return rt[idx].V2
}

func (rt RouteTable) String() string {
	sb := strings.Builder{}
	sb.WriteString("digraph G {\n")
	for _, p := range rt {
		sb.WriteString(fmt.Sprintf("%d -> %d\n", p.V1, p.V2))
	}
	sb.WriteString("}\n")
	return sb.String()
}

// VertexRange is a half-open range of vertex ids [Start, End). The zero value covers every vertex.
type VertexRange struct {
	Start VertexId `yaml:"start"`
	End   VertexId `yaml:"end"`
}

func (r VertexRange) IsZero() bool {
	return r.Start == 0 && r.End == 0
}

func (r VertexRange) Contains(v VertexId) bool {
	if r.IsZero() {
		return true
	}
	return v >= r.Start && v < r.End
}
