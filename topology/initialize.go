package topology

// InitReport counts what an Initialize call added.
type InitReport struct {
	NodesCreated int `json:"nodesCreated"`
	EdgesCreated int `json:"edgesCreated"`
}

// Initialize adds the nodes and edges named by the declarations. It only
// fills in what is missing: existing nodes and edges, including their
// strength and traffic, are left untouched, so repeated calls with the same
// declarations are no-ops.
//
// Declarations are not validated here.
func (t *Topology) Initialize(decls []Declaration) InitReport {
	var report InitReport
	for _, d := range decls {
		from, to := d.FromID(), d.ToID()

		if _, ok := t.nodes[from]; !ok {
			t.nodes[from] = t.params.Origin.node(from)
			report.NodesCreated++
		}
		if _, ok := t.nodes[to]; !ok {
			t.nodes[to] = t.params.Destination.node(to)
			report.NodesCreated++
		}

		key := EdgeKey{From: from, To: to}
		if t.edges.Has(key) {
			continue
		}
		t.edges.Set(key, &Edge{
			From:     from,
			To:       to,
			Traffic:  0,
			Latency:  t.params.Edge.Latency,
			Cost:     t.params.Edge.Cost,
			Strength: t.params.InitialStrength,
		})
		report.EdgesCreated++
	}
	return report
}
