// Package topology implements the adaptive routing graph: nodes for event
// origins and agent actions, directed edges between them, and the
// growth/decay optimizer that reinforces busy paths and prunes idle ones.
//
// Everything in this package is synchronous and performs no I/O. A Topology
// is not safe for concurrent use; callers serialize access (see package
// engine).
package topology

import "fmt"

// NodeID is the structural identity of a node. Origin nodes use
// {sourceType, eventType}; destination nodes use {targetAgentRole, actionType}.
type NodeID struct {
	Scope string `json:"scope"`
	Name  string `json:"name"`
}

// String renders the id as "scope:name".
func (id NodeID) String() string {
	return id.Scope + ":" + id.Name
}

// MarshalText lets NodeID act as a JSON object key and string value.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// OriginID derives the id of the node that emits events of the given kind.
func OriginID(sourceType, eventType string) NodeID {
	return NodeID{Scope: sourceType, Name: eventType}
}

// DestinationID derives the id of the node that consumes an agent action.
func DestinationID(targetAgentRole, actionType string) NodeID {
	return NodeID{Scope: targetAgentRole, Name: actionType}
}

// NodeType classifies a node.
type NodeType string

const (
	NodeTypeService  NodeType = "service"
	NodeTypeEndpoint NodeType = "endpoint"
	NodeTypeAgent    NodeType = "agent"
	NodeTypeExternal NodeType = "external"
)

// IsValid reports whether t is a known node type.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTypeService, NodeTypeEndpoint, NodeTypeAgent, NodeTypeExternal:
		return true
	default:
		return false
	}
}

// Node is a logical endpoint in the routing graph.
type Node struct {
	ID          NodeID   `json:"id"`
	Type        NodeType `json:"type"`
	Latency     float64  `json:"latency"`     // ms
	CostPerGB   float64  `json:"costPerGB"`   // currency per GB
	Reliability float64  `json:"reliability"` // 0.0-1.0
	Capacity    float64  `json:"capacity"`    // requests/sec
}

// EdgeKey identifies the single edge allowed per ordered pair of nodes.
type EdgeKey struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}

// String renders the key as "from->to".
func (k EdgeKey) String() string {
	return k.From.String() + "->" + k.To.String()
}

// Edge is a directed, weighted routing path.
type Edge struct {
	From     NodeID  `json:"from"`
	To       NodeID  `json:"to"`
	Traffic  float64 `json:"traffic"`  // events observed in the last batch
	Latency  float64 `json:"latency"`  // ms of hop overhead
	Cost     float64 `json:"cost"`     // $/hour
	Strength float64 `json:"strength"` // 0.0-1.0, mutated only by Optimize
}

// Key returns the edge's identity.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{From: e.From, To: e.To}
}

// Source describes the event-producing side of a declaration.
type Source struct {
	SourceType string `json:"sourceType" yaml:"sourceType"`
	EventType  string `json:"eventType" yaml:"eventType"`
}

// Target describes the action-consuming side of a declaration.
type Target struct {
	TargetAgentRole string `json:"targetAgentRole" yaml:"targetAgentRole"`
	ActionType      string `json:"actionType" yaml:"actionType"`
}

// Declaration associates an event class with the agent action that handles it.
type Declaration struct {
	From Source `json:"from" yaml:"from"`
	To   Target `json:"to" yaml:"to"`
}

// FromID returns the origin node id of the declaration.
func (d Declaration) FromID() NodeID {
	return OriginID(d.From.SourceType, d.From.EventType)
}

// ToID returns the destination node id of the declaration.
func (d Declaration) ToID() NodeID {
	return DestinationID(d.To.TargetAgentRole, d.To.ActionType)
}

// Event is a single observation from the event bus. Only SourceType and
// EventType take part in routing; Payload is carried for callers.
type Event struct {
	SourceType string         `json:"sourceType"`
	EventType  string         `json:"eventType"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// OriginID returns the id of the node that emitted the event.
func (e Event) OriginID() NodeID {
	return OriginID(e.SourceType, e.EventType)
}

// String implements fmt.Stringer.
func (e Event) String() string {
	return fmt.Sprintf("%s/%s", e.SourceType, e.EventType)
}
