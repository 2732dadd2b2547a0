// Package runner chains the iterations of a grammar file: it builds each
// iteration's tree, generates its traffic and records the run.
package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/scttfrdmn/collective-traffic-gen/internal/catalog"
	"github.com/scttfrdmn/collective-traffic-gen/internal/config"
	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/metrics"
	"github.com/scttfrdmn/collective-traffic-gen/internal/orchestrator"
	"github.com/scttfrdmn/collective-traffic-gen/internal/report"
	"github.com/scttfrdmn/collective-traffic-gen/internal/sink"
	"github.com/scttfrdmn/collective-traffic-gen/internal/topology"
)

// resetter is implemented by sinks that can clear previous output.
type resetter interface {
	Reset() error
}

// Runner executes generation runs.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	sink    sink.Sink
	catalog *catalog.Catalog
	metrics *metrics.Recorder
	orch    *orchestrator.Orchestrator
}

// New creates a runner writing traces to s. cat may be nil.
func New(cfg *config.Config, s sink.Sink, cat *catalog.Catalog, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	rec := metrics.New()
	opts := orchestrator.DefaultOptions()
	opts.Workers = cfg.Workers
	opts.MaxGroups = cfg.MaxGroups

	return &Runner{
		cfg:     cfg,
		logger:  logger,
		sink:    s,
		catalog: cat,
		metrics: rec,
		orch:    orchestrator.New(s, logger, rec, opts),
	}
}

// Run generates every iteration of the grammar at grammarPath. The summary
// is returned even when the run fails, covering the iterations completed.
func (r *Runner) Run(ctx context.Context, grammarPath string) (*report.RunSummary, error) {
	summary := &report.RunSummary{
		RunID:       uuid.NewString(),
		GrammarPath: grammarPath,
		Seed:        r.cfg.Seed,
		Workers:     r.cfg.Workers,
		Output:      r.cfg.Output.Location(),
		StartedAt:   time.Now().UTC(),
	}
	logger := r.logger.With("run", summary.RunID)

	if r.catalog != nil {
		err := r.catalog.BeginRun(catalog.Run{
			ID:          summary.RunID,
			GrammarPath: grammarPath,
			Seed:        r.cfg.Seed,
			StartedAt:   summary.StartedAt,
		})
		if err != nil {
			return summary, err
		}
	}

	runErr := r.generate(ctx, logger, grammarPath, summary)
	summary.FinishedAt = time.Now().UTC()

	if err := r.finish(summary, runErr); err != nil && runErr == nil {
		runErr = err
	}
	return summary, runErr
}

func (r *Runner) generate(ctx context.Context, logger *slog.Logger, grammarPath string, summary *report.RunSummary) error {
	grammar, err := os.ReadFile(grammarPath)
	if err != nil {
		return errors.NewHeaderError("Run", fmt.Sprintf("cannot read grammar file %s", grammarPath), err)
	}

	header, err := topology.ReadHeader(grammar)
	if err != nil {
		return err
	}
	summary.Model = header.Model
	summary.Devices = header.DeviceCount
	summary.Iterations = header.IterationCount

	if r.catalog != nil {
		if err := r.catalog.UpdateRunHeader(summary.RunID, header.Model, header.DeviceCount, header.IterationCount); err != nil {
			return err
		}
	}

	if r.cfg.Output.Clean {
		if rs, ok := r.sink.(resetter); ok {
			logger.Debug("Removing previous output", "output", summary.Output)
			if err := rs.Reset(); err != nil {
				return err
			}
		}
	}

	logger.Info("Starting traffic generation",
		"model", string(header.Model),
		"devices", header.DeviceCount,
		"iterations", header.IterationCount,
		"seed", r.cfg.Seed,
		"workers", r.cfg.Workers)

	gc := topology.NewContext(r.cfg.Seed)
	var carried *topology.CarriedNode

	for i := range header.IterationCount {
		if err := ctx.Err(); err != nil {
			return err
		}

		logger.Info("Building iteration", "iteration", i)
		tree, next, err := topology.Build(gc, grammar, i, carried)
		if err != nil {
			logger.Error("Failed to build iteration", "iteration", i, "error", err)
			return iterationError(err, i)
		}

		rep, err := r.orch.Generate(ctx, gc, tree)
		if rep != nil {
			if recErr := r.recordTraces(summary.RunID, rep); recErr != nil && err == nil {
				err = recErr
			}
			summary.AddIteration(rep)
		}
		if err != nil {
			return iterationError(err, i)
		}

		r.metrics.IterationsTotal.Inc()
		logger.Info("Iteration complete",
			"iteration", i,
			"nodes", len(rep.Nodes),
			"traces", len(rep.Traces),
			"next_port", rep.NextPort)

		carried = next
	}

	return nil
}

// iterationError tags err with the failing iteration. Cancellation is
// returned unchanged.
func iterationError(err error, iteration int) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.WrapError(err, "Run", fmt.Sprintf("iteration %d", iteration))
}

func (r *Runner) recordTraces(runID string, rep *orchestrator.IterationReport) error {
	if r.catalog == nil {
		return nil
	}
	for _, t := range rep.Traces {
		err := r.catalog.RecordTrace(catalog.Trace{
			RunID:       runID,
			Iteration:   t.Iteration,
			NodeID:      t.NodeID,
			Mode:        t.Mode,
			Group:       t.Group,
			Port:        t.Port,
			Phases:      t.Phases,
			Descriptors: t.Descriptors,
			Location:    t.Location,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// finish closes the run in the catalog and writes the metrics textfile and
// the summary when configured. It returns the first error encountered.
func (r *Runner) finish(summary *report.RunSummary, runErr error) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if r.catalog != nil {
		keep(r.catalog.FinishRun(summary.RunID, runErr))
	}

	if path := r.cfg.Metrics.File; path != "" {
		if err := r.metrics.WriteTextfile(path); err != nil {
			keep(errors.NewConfigError("Run", fmt.Sprintf("failed to write metrics to %s", path), err))
		}
	}

	if path := r.cfg.Summary.Path; path != "" {
		keep(report.Write(summary, path))
	}

	return first
}
