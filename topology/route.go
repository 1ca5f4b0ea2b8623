package topology

// Candidate is one scored outgoing edge considered by Route.
type Candidate struct {
	Edge              Edge    `json:"edge"`
	TargetReliability float64 `json:"targetReliability"`
	Score             float64 `json:"score"`
}

// RouteCandidates scores every edge leaving the event's origin node, in
// insertion order. A missing target node scores with the fallback
// reliability rather than as fully trusted.
func (t *Topology) RouteCandidates(ev Event) []Candidate {
	from := ev.OriginID()
	var out []Candidate
	t.eachEdge(func(e *Edge) bool {
		if e.From != from {
			return true
		}
		rel := t.params.FallbackReliability
		if target, ok := t.nodes[e.To]; ok {
			rel = target.Reliability
		}
		out = append(out, Candidate{
			Edge:              *e,
			TargetReliability: rel,
			Score:             e.Strength * (1 / e.Latency) * rel,
		})
		return true
	})
	return out
}

// Route returns the best direct hop for the event as [from, to], or an
// empty path when the origin has no outgoing edges. Equal scores resolve to
// the edge inserted first.
func (t *Topology) Route(ev Event) []NodeID {
	candidates := t.RouteCandidates(ev)
	if len(candidates) == 0 {
		return []NodeID{}
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[best].Score {
			best = i
		}
	}
	e := candidates[best].Edge
	return []NodeID{e.From, e.To}
}
