package topology

// Stats is an aggregate view for dashboards. Latency and cost are averaged
// over edges, reliability over nodes.
type Stats struct {
	NodeCount      int     `json:"nodeCount"`
	EdgeCount      int     `json:"edgeCount"`
	AvgLatency     float64 `json:"avgLatency"`
	AvgCost        float64 `json:"avgCost"`
	AvgReliability float64 `json:"avgReliability"`
}

// Stats computes the aggregate. Averages over an empty collection are 0.
func (t *Topology) Stats() Stats {
	s := Stats{
		NodeCount: len(t.nodes),
		EdgeCount: t.edges.Len(),
	}

	var latency, cost float64
	t.eachEdge(func(e *Edge) bool {
		latency += e.Latency
		cost += e.Cost
		return true
	})
	if s.EdgeCount > 0 {
		s.AvgLatency = latency / float64(s.EdgeCount)
		s.AvgCost = cost / float64(s.EdgeCount)
	}

	var reliability float64
	for _, n := range t.nodes {
		reliability += n.Reliability
	}
	if s.NodeCount > 0 {
		s.AvgReliability = reliability / float64(s.NodeCount)
	}
	return s
}
