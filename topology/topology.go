package topology

import (
	"sort"

	"github.com/elliotchance/orderedmap/v3"
)

// Topology owns the node and edge collections. Every edge's endpoints
// reference existing nodes; nodes are never removed.
//
// Edges are kept in insertion order. Route relies on that order to break
// score ties, so two topologies built from the same declarations in the
// same order always route identically.
type Topology struct {
	params Params
	nodes  map[NodeID]*Node
	edges  *orderedmap.OrderedMap[EdgeKey, *Edge]
}

// New creates an empty topology using the given parameters.
func New(params Params) *Topology {
	return &Topology{
		params: params,
		nodes:  make(map[NodeID]*Node),
		edges:  orderedmap.NewOrderedMap[EdgeKey, *Edge](),
	}
}

// Params returns the parameters in effect.
func (t *Topology) Params() Params {
	return t.params
}

// SetParams replaces the parameters. Existing nodes and edges keep their
// values; new defaults apply only to elements created afterwards.
func (t *Topology) SetParams(params Params) {
	t.params = params
}

// Node returns a copy of the node with the given id.
func (t *Topology) Node(id NodeID) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Edge returns a copy of the edge for the ordered pair.
func (t *Topology) Edge(from, to NodeID) (Edge, bool) {
	e, ok := t.edges.Get(EdgeKey{From: from, To: to})
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// NodeCount returns the number of nodes.
func (t *Topology) NodeCount() int {
	return len(t.nodes)
}

// EdgeCount returns the number of edges.
func (t *Topology) EdgeCount() int {
	return t.edges.Len()
}

// eachEdge visits edges in insertion order until fn returns false.
func (t *Topology) eachEdge(fn func(*Edge) bool) {
	for el := t.edges.Front(); el != nil; el = el.Next() {
		if !fn(el.Value) {
			return
		}
	}
}

// Snapshot is a detached copy of the graph for display.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Snapshot copies the current graph. Nodes are sorted by scope, then name;
// edges keep insertion order.
func (t *Topology) Snapshot() Snapshot {
	snap := Snapshot{
		Nodes: make([]Node, 0, len(t.nodes)),
		Edges: make([]Edge, 0, t.edges.Len()),
	}
	for _, n := range t.nodes {
		snap.Nodes = append(snap.Nodes, *n)
	}
	sort.Slice(snap.Nodes, func(i, j int) bool {
		a, b := snap.Nodes[i].ID, snap.Nodes[j].ID
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		return a.Name < b.Name
	})
	t.eachEdge(func(e *Edge) bool {
		snap.Edges = append(snap.Edges, *e)
		return true
	})
	return snap
}
