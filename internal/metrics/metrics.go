// Package metrics counts generated nodes, groups and descriptors on a
// private Prometheus registry that can be exported as a textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the generation counters of one run.
type Recorder struct {
	registry *prometheus.Registry

	NodesGenerated     *prometheus.CounterVec
	NodesSkipped       *prometheus.CounterVec
	GroupsGenerated    *prometheus.CounterVec
	GroupsSkipped      *prometheus.CounterVec
	GroupsClamped      *prometheus.CounterVec
	PhasesWritten      *prometheus.CounterVec
	DescriptorsWritten *prometheus.CounterVec
	IterationsTotal    prometheus.Counter
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		NodesGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctgen",
			Subsystem: "orchestrator",
			Name:      "nodes_generated_total",
			Help:      "Total communication nodes that produced traffic",
		}, []string{"mode"}),

		NodesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctgen",
			Subsystem: "orchestrator",
			Name:      "nodes_skipped_total",
			Help:      "Total communication nodes skipped",
		}, []string{"mode", "reason"}),

		GroupsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctgen",
			Subsystem: "orchestrator",
			Name:      "groups_generated_total",
			Help:      "Total host groups written to the sink",
		}, []string{"mode"}),

		GroupsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctgen",
			Subsystem: "orchestrator",
			Name:      "groups_skipped_total",
			Help:      "Total host groups skipped after a synthesis error",
		}, []string{"mode"}),

		GroupsClamped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctgen",
			Subsystem: "orchestrator",
			Name:      "groups_clamped_total",
			Help:      "Total host groups dropped by the group limit",
		}, []string{"mode"}),

		PhasesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctgen",
			Subsystem: "sink",
			Name:      "phases_written_total",
			Help:      "Total phases written",
		}, []string{"mode"}),

		DescriptorsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctgen",
			Subsystem: "sink",
			Name:      "descriptors_written_total",
			Help:      "Total rdma_send descriptors written",
		}, []string{"mode"}),

		IterationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctgen",
			Subsystem: "runner",
			Name:      "iterations_total",
			Help:      "Total iterations generated",
		}),
	}
}

// WriteTextfile writes all counters in the Prometheus text format, for the
// node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
