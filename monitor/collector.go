// Package monitor exposes topology health over HTTP: Prometheus metrics, a
// liveness check, and read-only JSON views of the running graph.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/najoast/physarum/topology"
)

const namespace = "physarum"

// Collector records engine activity as Prometheus metrics. It satisfies
// engine.Observer and owns its registry, so several collectors can live in
// one process (tests do this).
type Collector struct {
	registry *prometheus.Registry

	nodes          prometheus.Gauge
	edges          prometheus.Gauge
	avgLatency     prometheus.Gauge
	avgCost        prometheus.Gauge
	avgReliability prometheus.Gauge

	optimizeCycles   prometheus.Counter
	optimizeDuration prometheus.Histogram
	eventsObserved   prometheus.Counter
	edgesGrown       prometheus.Counter
	edgesPruned      prometheus.Counter
	edgesCreated     prometheus.Counter
	routes           *prometheus.CounterVec
}

// NewCollector creates a Collector with every metric registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topology_nodes",
			Help:      "Number of nodes in the topology",
		}),
		edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topology_edges",
			Help:      "Number of edges in the topology",
		}),
		avgLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topology_avg_latency_ms",
			Help:      "Mean edge latency in milliseconds",
		}),
		avgCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topology_avg_cost",
			Help:      "Mean edge cost",
		}),
		avgReliability: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topology_avg_reliability",
			Help:      "Mean node reliability",
		}),

		optimizeCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimize_cycles_total",
			Help:      "Total number of optimize cycles run",
		}),
		optimizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimize_duration_seconds",
			Help:      "Duration of optimize cycles",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		eventsObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_observed_total",
			Help:      "Total number of events fed to optimize cycles",
		}),
		edgesGrown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_grown_total",
			Help:      "Edge growth decisions across optimize cycles",
		}),
		edgesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_pruned_total",
			Help:      "Total number of edges removed for falling below the prune threshold",
		}),
		edgesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_created_total",
			Help:      "Total number of edges created from declarations",
		}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Route lookups by result",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		c.nodes, c.edges, c.avgLatency, c.avgCost, c.avgReliability,
		c.optimizeCycles, c.optimizeDuration, c.eventsObserved,
		c.edgesGrown, c.edgesPruned, c.edgesCreated, c.routes,
	)
	return c
}

// ObserveInit records edges created by a declaration pass.
func (c *Collector) ObserveInit(report topology.InitReport) {
	c.edgesCreated.Add(float64(report.EdgesCreated))
}

// ObserveOptimize records one optimize cycle.
func (c *Collector) ObserveOptimize(report topology.OptimizeReport, elapsed time.Duration) {
	c.optimizeCycles.Inc()
	c.optimizeDuration.Observe(elapsed.Seconds())
	c.eventsObserved.Add(float64(report.Events))
	c.edgesGrown.Add(float64(report.Grown))
	c.edgesPruned.Add(float64(len(report.Pruned)))
}

// ObserveStats updates the topology gauges.
func (c *Collector) ObserveStats(s topology.Stats) {
	c.nodes.Set(float64(s.NodeCount))
	c.edges.Set(float64(s.EdgeCount))
	c.avgLatency.Set(s.AvgLatency)
	c.avgCost.Set(s.AvgCost)
	c.avgReliability.Set(s.AvgReliability)
}

// ObserveRoute counts a route lookup.
func (c *Collector) ObserveRoute(found bool) {
	result := "empty"
	if found {
		result = "found"
	}
	c.routes.WithLabelValues(result).Inc()
}

// RegisterIntake exports event intake counters read from fn at scrape time,
// typically events.Batch.Counters.
func (c *Collector) RegisterIntake(fn func() (published, dropped uint64)) {
	c.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events accepted into the pending batch",
		}, func() float64 {
			published, _ := fn()
			return float64(published)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the pending batch was full",
		}, func() float64 {
			_, dropped := fn()
			return float64(dropped)
		}),
	)
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
