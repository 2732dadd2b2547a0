// Package orchestrator walks a communication tree and generates the traces
// of every host group of every node.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/metrics"
	"github.com/scttfrdmn/collective-traffic-gen/internal/sink"
	"github.com/scttfrdmn/collective-traffic-gen/internal/topology"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// Defaults for Options.
const (
	DefaultMaxGroups  = 1000
	DefaultPortBase   = 1000
	DefaultPortStride = 1000
)

// Skip reasons reported for nodes that emit no traffic.
const (
	SkipNoHosts   = "no_hosts"
	SkipPartition = "partition"
	SkipNoGroups  = "no_groups"
)

// Options tunes a traffic generation pass.
type Options struct {
	// Workers bounds the groups of one node synthesized concurrently.
	Workers int
	// MaxGroups caps the groups generated per node.
	MaxGroups int
	// PortBase and PortStride give the first port of iteration i as
	// PortBase + i*PortStride.
	PortBase   int
	PortStride int
}

// DefaultOptions returns the sequential reference settings.
func DefaultOptions() Options {
	return Options{
		Workers:    1,
		MaxGroups:  DefaultMaxGroups,
		PortBase:   DefaultPortBase,
		PortStride: DefaultPortStride,
	}
}

// Orchestrator generates traces for built trees.
type Orchestrator struct {
	sink    sink.Sink
	logger  *slog.Logger
	metrics *metrics.Recorder
	opts    Options
}

// New creates an orchestrator writing to s. A nil recorder disables metrics.
func New(s sink.Sink, logger *slog.Logger, recorder *metrics.Recorder, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxGroups < 1 {
		opts.MaxGroups = DefaultMaxGroups
	}
	return &Orchestrator{sink: s, logger: logger, metrics: recorder, opts: opts}
}

// TraceRecord describes one written trace.
type TraceRecord struct {
	Iteration   int        `json:"iteration" yaml:"iteration" toml:"iteration"`
	NodeID      string     `json:"node" yaml:"node" toml:"node"`
	Mode        types.Mode `json:"mode" yaml:"mode" toml:"mode"`
	Group       int        `json:"group" yaml:"group" toml:"group"`
	Port        int        `json:"port" yaml:"port" toml:"port"`
	Phases      int        `json:"phases" yaml:"phases" toml:"phases"`
	Descriptors int        `json:"descriptors" yaml:"descriptors" toml:"descriptors"`
	Location    string     `json:"location" yaml:"location" toml:"location"`
}

// NodeReport summarizes the traffic of one node.
type NodeReport struct {
	NodeID        string     `json:"node" yaml:"node" toml:"node"`
	Kind          types.Kind `json:"kind" yaml:"kind" toml:"kind"`
	Mode          types.Mode `json:"mode" yaml:"mode" toml:"mode"`
	Layer         int        `json:"layer" yaml:"layer" toml:"layer"`
	Groups        int        `json:"groups" yaml:"groups" toml:"groups"`
	GroupsSkipped int        `json:"groups_skipped" yaml:"groups_skipped" toml:"groups_skipped"`
	GroupsClamped int        `json:"groups_clamped" yaml:"groups_clamped" toml:"groups_clamped"`
	SkipReason    string     `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty" toml:"skip_reason,omitempty"`
}

// IterationReport is the outcome of one Generate call.
type IterationReport struct {
	Iteration int           `json:"iteration" yaml:"iteration" toml:"iteration"`
	FirstPort int           `json:"first_port" yaml:"first_port" toml:"first_port"`
	NextPort  int           `json:"next_port" yaml:"next_port" toml:"next_port"`
	Nodes     []NodeReport  `json:"nodes" yaml:"nodes" toml:"nodes"`
	Traces    []TraceRecord `json:"traces" yaml:"traces" toml:"traces"`
}

// Descriptors returns the number of descriptors written in the iteration.
func (r *IterationReport) Descriptors() int {
	n := 0
	for _, t := range r.Traces {
		n += t.Descriptors
	}
	return n
}

// groupJob is one group scheduled for synthesis.
type groupJob struct {
	group int
	port  int
	seed  uint64
}

type groupResult struct {
	phases []types.Phase
	err    error
}

// Generate walks tree in topological order and writes the traces of every
// group. Ports are handed out sequentially from PortBase + iteration*PortStride.
// Partition and synthesis failures skip the node or group; sink failures
// abort the pass.
func (o *Orchestrator) Generate(ctx context.Context, gc *topology.Context, tree *topology.Tree) (*IterationReport, error) {
	port := o.opts.PortBase + tree.Iteration*o.opts.PortStride
	report := &IterationReport{Iteration: tree.Iteration, FirstPort: port}

	for _, idx := range tree.TopologicalOrder() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		node := tree.Node(idx)
		nr, next, err := o.generateNode(ctx, gc, tree.Iteration, node, port, report)
		report.Nodes = append(report.Nodes, nr)
		port = next
		if err != nil {
			report.NextPort = port
			return report, err
		}
	}

	report.NextPort = port
	return report, nil
}

func (o *Orchestrator) generateNode(ctx context.Context, gc *topology.Context, iteration int,
	node *topology.Node, port int, report *IterationReport) (NodeReport, int, error) {

	mode := node.Kind.Mode(gc.Model)
	nr := NodeReport{NodeID: node.ID, Kind: node.Kind, Mode: mode, Layer: node.Layer}
	logger := o.logger.With("iteration", iteration, "node", node.ID, "mode", string(mode))

	if hosts := HostsFromHops(node.SimulatedHops, node.Args.HostCount); len(hosts) == 0 {
		logger.Debug("Skipping node without valid hosts", "hops", node.SimulatedHops)
		o.skipNode(&nr, SkipNoHosts)
		return nr, port, nil
	}

	p, err := planNode(mode, node.Args, gc.DeviceCount, o.opts.MaxGroups)
	if err != nil {
		if errors.IsFatal(err) {
			return nr, port, err
		}
		logger.Warn("Skipping node", "error", err)
		o.skipNode(&nr, SkipPartition)
		return nr, port, nil
	}
	if p.groups <= 0 {
		logger.Info("Skipping node without groups")
		o.skipNode(&nr, SkipNoGroups)
		return nr, port, nil
	}

	groups := p.groups
	if groups > o.opts.MaxGroups {
		logger.Warn("Limiting group count", "groups", groups, "max_groups", o.opts.MaxGroups)
		nr.GroupsClamped = groups - o.opts.MaxGroups
		if o.metrics != nil {
			o.metrics.GroupsClamped.WithLabelValues(string(mode)).Add(float64(nr.GroupsClamped))
		}
		groups = o.opts.MaxGroups
	}

	jobs := make([]groupJob, groups)
	for g := range jobs {
		jobs[g] = groupJob{group: g, port: port}
		port++
		if p.randomized {
			jobs[g].seed = gc.Rand().Uint64()
		}
	}

	results, err := o.synthesize(ctx, p, jobs)
	if err != nil {
		return nr, port, err
	}

	for i, job := range jobs {
		res := results[i]
		if res.err != nil {
			logger.Warn("Skipping group", "group", job.group, "port", job.port, "error", res.err)
			nr.GroupsSkipped++
			if o.metrics != nil {
				o.metrics.GroupsSkipped.WithLabelValues(string(mode)).Inc()
			}
			continue
		}

		loc, err := o.sink.Write(ctx, sink.Key{NodeID: node.ID, Group: job.group}, res.phases)
		if err != nil {
			if !errors.IsType(err, errors.ErrorTypeSink) {
				err = errors.NewSinkError("Generate", fmt.Sprintf("node %s group %d", node.ID, job.group), err)
			}
			return nr, port, err
		}

		descriptors := types.CountDescriptors(res.phases)
		report.Traces = append(report.Traces, TraceRecord{
			Iteration:   iteration,
			NodeID:      node.ID,
			Mode:        mode,
			Group:       job.group,
			Port:        job.port,
			Phases:      len(res.phases),
			Descriptors: descriptors,
			Location:    loc,
		})
		nr.Groups++
		if o.metrics != nil {
			o.metrics.GroupsGenerated.WithLabelValues(string(mode)).Inc()
			o.metrics.PhasesWritten.WithLabelValues(string(mode)).Add(float64(len(res.phases)))
			o.metrics.DescriptorsWritten.WithLabelValues(string(mode)).Add(float64(descriptors))
		}
		logger.Debug("Generated traffic", "group", job.group, "port", job.port, "location", loc)
	}

	o.countNode(&nr)
	logger.Info("Generated node traffic", "groups", nr.Groups, "skipped", nr.GroupsSkipped)
	return nr, port, nil
}

// synthesize runs the group synthesis of one node on up to Workers
// goroutines. Group failures are returned per result; only cancellation
// fails the call.
func (o *Orchestrator) synthesize(ctx context.Context, p *plan, jobs []groupJob) ([]groupResult, error) {
	results := make([]groupResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(o.opts.Workers, len(jobs)))

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var rng *rand.Rand
			if p.randomized {
				rng = rand.New(rand.NewPCG(job.seed, job.seed))
			}
			phases, err := p.synth(job.group, job.port, rng)
			results[i] = groupResult{phases: phases, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// countNode counts nr as generated when at least one of its groups was written.
func (o *Orchestrator) countNode(nr *NodeReport) {
	if o.metrics != nil && nr.Groups > 0 {
		o.metrics.NodesGenerated.WithLabelValues(string(nr.Mode)).Inc()
	}
}

func (o *Orchestrator) skipNode(nr *NodeReport, reason string) {
	nr.SkipReason = reason
	if o.metrics != nil {
		o.metrics.NodesSkipped.WithLabelValues(string(nr.Mode), reason).Inc()
	}
}
