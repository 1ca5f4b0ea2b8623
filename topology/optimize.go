package topology

import "math"

// OptimizeReport summarizes one optimization cycle. Grown, Decayed and Flat
// count edges by how they were treated; the classification cannot change
// between iterations because traffic is fixed for the whole cycle.
type OptimizeReport struct {
	Events        int       `json:"events"`
	ActiveOrigins int       `json:"activeOrigins"`
	Grown         int       `json:"grown"`
	Decayed       int       `json:"decayed"`
	Flat          int       `json:"flat"`
	Pruned        []EdgeKey `json:"pruned,omitempty"`
}

type edgePhase uint8

const (
	phaseFlat edgePhase = iota
	phaseGrow
	phaseDecay
)

// Optimize runs one cycle over the latest event batch: it overwrites every
// edge's traffic with the batch tally for its origin, applies the fixed
// number of growth/decay iterations against that snapshot, then prunes
// edges whose strength fell below the floor.
func (t *Topology) Optimize(events []Event) OptimizeReport {
	report := OptimizeReport{Events: len(events)}

	tally := make(map[NodeID]int, len(events))
	for _, ev := range events {
		tally[ev.OriginID()]++
	}
	report.ActiveOrigins = len(tally)

	t.eachEdge(func(e *Edge) bool {
		e.Traffic = float64(tally[e.From])
		switch t.phase(e) {
		case phaseGrow:
			report.Grown++
		case phaseDecay:
			report.Decayed++
		default:
			report.Flat++
		}
		return true
	})

	for i := 0; i < t.params.Iterations; i++ {
		t.eachEdge(func(e *Edge) bool {
			t.step(e)
			return true
		})
	}

	report.Pruned = t.prune()
	return report
}

// phase decides how an edge is treated this cycle. Decay fires only at
// exactly zero traffic. An edge with traffic whose target is below the
// reliability floor, or missing, stays flat.
func (t *Topology) phase(e *Edge) edgePhase {
	if e.Traffic == 0 {
		return phaseDecay
	}
	target, ok := t.nodes[e.To]
	if e.Traffic > 0 && ok && target.Reliability >= t.params.MinReliability {
		return phaseGrow
	}
	return phaseFlat
}

// efficiency is 1/(latency + cost*CostScale); the scale makes $0.001/hr
// weigh as one millisecond.
func (t *Topology) efficiency(e *Edge) float64 {
	return 1 / (e.Latency + e.Cost*t.params.CostScale)
}

func (t *Topology) step(e *Edge) {
	switch t.phase(e) {
	case phaseGrow:
		growth := t.params.GrowthRate * t.efficiency(e) * (e.Traffic / t.params.TrafficScale)
		e.Strength = math.Min(1.0, e.Strength+growth)
	case phaseDecay:
		e.Strength = math.Max(0, e.Strength-t.params.DecayRate)
	}
}

// prune deletes every edge with strength strictly below the threshold and
// returns their keys in insertion order. A pruned edge is gone; only a later
// Initialize can recreate it, at the initial strength.
func (t *Topology) prune() []EdgeKey {
	var doomed []EdgeKey
	t.eachEdge(func(e *Edge) bool {
		if e.Strength < t.params.PruneThreshold {
			doomed = append(doomed, e.Key())
		}
		return true
	})
	for _, key := range doomed {
		t.edges.Delete(key)
	}
	return doomed
}
