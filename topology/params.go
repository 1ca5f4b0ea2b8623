package topology

import (
	"errors"
	"fmt"
)

// Documented defaults. Changing them changes the numeric behavior of
// Optimize and Route.
const (
	DefaultIterations          = 10
	DefaultGrowthRate          = 0.1
	DefaultDecayRate           = 0.05
	DefaultMinReliability      = 0.95
	DefaultPruneThreshold      = 0.1
	DefaultCostScale           = 1000.0
	DefaultTrafficScale        = 100.0
	DefaultInitialStrength     = 0.5
	DefaultFallbackReliability = 0.5
)

// ErrInvalidParams is wrapped by every Params.Validate failure.
var ErrInvalidParams = errors.New("invalid topology parameters")

// NodeDefaults are applied to a node the first time it is referenced.
type NodeDefaults struct {
	Type        NodeType `yaml:"type" json:"type"`
	Latency     float64  `yaml:"latency" json:"latency"`
	CostPerGB   float64  `yaml:"cost_per_gb" json:"cost_per_gb"`
	Reliability float64  `yaml:"reliability" json:"reliability"`
	Capacity    float64  `yaml:"capacity" json:"capacity"`
}

func (d NodeDefaults) node(id NodeID) *Node {
	return &Node{
		ID:          id,
		Type:        d.Type,
		Latency:     d.Latency,
		CostPerGB:   d.CostPerGB,
		Reliability: d.Reliability,
		Capacity:    d.Capacity,
	}
}

func (d NodeDefaults) validate(role string) error {
	if !d.Type.IsValid() {
		return fmt.Errorf("%w: %s node type %q", ErrInvalidParams, role, d.Type)
	}
	if d.Latency < 0 || d.CostPerGB < 0 || d.Capacity < 0 {
		return fmt.Errorf("%w: %s node latency, cost and capacity must be >= 0", ErrInvalidParams, role)
	}
	if d.Reliability < 0 || d.Reliability > 1 {
		return fmt.Errorf("%w: %s node reliability %v outside [0,1]", ErrInvalidParams, role, d.Reliability)
	}
	return nil
}

// EdgeDefaults are applied to an edge when it is created.
type EdgeDefaults struct {
	Latency float64 `yaml:"latency" json:"latency"`
	Cost    float64 `yaml:"cost" json:"cost"`
}

// Params groups every tunable of the optimizer and router.
type Params struct {
	Iterations          int     `yaml:"iterations" json:"iterations" split_words:"true"`
	GrowthRate          float64 `yaml:"growth_rate" json:"growth_rate" split_words:"true"`
	DecayRate           float64 `yaml:"decay_rate" json:"decay_rate" split_words:"true"`
	MinReliability      float64 `yaml:"min_reliability" json:"min_reliability" split_words:"true"`
	PruneThreshold      float64 `yaml:"prune_threshold" json:"prune_threshold" split_words:"true"`
	CostScale           float64 `yaml:"cost_scale" json:"cost_scale" split_words:"true"`
	TrafficScale        float64 `yaml:"traffic_scale" json:"traffic_scale" split_words:"true"`
	InitialStrength     float64 `yaml:"initial_strength" json:"initial_strength" split_words:"true"`
	FallbackReliability float64 `yaml:"fallback_reliability" json:"fallback_reliability" split_words:"true"`

	Origin      NodeDefaults `yaml:"origin" json:"origin"`
	Destination NodeDefaults `yaml:"destination" json:"destination"`
	Edge        EdgeDefaults `yaml:"edge" json:"edge"`
}

// DefaultParams returns the documented defaults. Sources are modeled as
// higher-capacity infrastructure and destinations as lighter consumers; the
// 80ms edge latency is a pessimistic hop overhead.
func DefaultParams() Params {
	return Params{
		Iterations:          DefaultIterations,
		GrowthRate:          DefaultGrowthRate,
		DecayRate:           DefaultDecayRate,
		MinReliability:      DefaultMinReliability,
		PruneThreshold:      DefaultPruneThreshold,
		CostScale:           DefaultCostScale,
		TrafficScale:        DefaultTrafficScale,
		InitialStrength:     DefaultInitialStrength,
		FallbackReliability: DefaultFallbackReliability,
		Origin: NodeDefaults{
			Type:        NodeTypeService,
			Latency:     50,
			CostPerGB:   0.01,
			Reliability: 0.99,
			Capacity:    1000,
		},
		Destination: NodeDefaults{
			Type:        NodeTypeAgent,
			Latency:     30,
			CostPerGB:   0.005,
			Reliability: 0.98,
			Capacity:    500,
		},
		Edge: EdgeDefaults{
			Latency: 80,
			Cost:    0.001,
		},
	}
}

// Validate checks that every parameter is in range.
func (p Params) Validate() error {
	if p.Iterations < 0 {
		return fmt.Errorf("%w: iterations must be >= 0, got %d", ErrInvalidParams, p.Iterations)
	}
	if p.GrowthRate < 0 || p.DecayRate < 0 {
		return fmt.Errorf("%w: growth and decay rates must be >= 0", ErrInvalidParams)
	}
	for name, v := range map[string]float64{
		"min_reliability":      p.MinReliability,
		"prune_threshold":      p.PruneThreshold,
		"initial_strength":     p.InitialStrength,
		"fallback_reliability": p.FallbackReliability,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v outside [0,1]", ErrInvalidParams, name, v)
		}
	}
	if p.CostScale < 0 {
		return fmt.Errorf("%w: cost_scale must be >= 0", ErrInvalidParams)
	}
	if p.TrafficScale <= 0 {
		return fmt.Errorf("%w: traffic_scale must be > 0", ErrInvalidParams)
	}
	if p.Edge.Latency < 0 || p.Edge.Cost < 0 {
		return fmt.Errorf("%w: edge latency and cost must be >= 0", ErrInvalidParams)
	}
	if err := p.Origin.validate("origin"); err != nil {
		return err
	}
	return p.Destination.validate("destination")
}
