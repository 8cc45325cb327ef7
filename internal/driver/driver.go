// Package driver sequences the stages of a sherlock run: manifest parsing,
// readiness check, quantification, differential expression, consolidation and
// the comparative analysis.
package driver

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/askiada/sherlock/internal/failure"
	"github.com/askiada/sherlock/internal/ledger"
	"github.com/askiada/sherlock/internal/logging"
	"github.com/askiada/sherlock/internal/occupancy"
	"github.com/askiada/sherlock/internal/quant"
	"github.com/askiada/sherlock/internal/sleuth"
	"github.com/askiada/sherlock/internal/toolexec"
	"github.com/askiada/sherlock/internal/workdir"
	"github.com/askiada/sherlock/pkg/manifest"
	"github.com/askiada/sherlock/pkg/pipeline/drawer"
	"github.com/askiada/sherlock/pkg/pipeline/measure"
	"github.com/askiada/sherlock/pkg/pipeline/model"
)

// Run artefacts written under logs/.
const (
	MetricsName  = "metrics.prom"
	QuantDOTName = "quantification.dot"
	DEDOTName    = "differential_expression.dot"
)

// Config configures a run.
type Config struct {
	OutputDir string
	// ManifestPath defaults to <OutputDir>/manifest.yaml.
	ManifestPath string
	Version      string
	// Executor defaults to a toolexec.DirectExecutor.
	Executor toolexec.Executor
	// LookPath defaults to exec.LookPath.
	LookPath toolexec.LookPathFunc
	// Registry defaults to a new registry. Its content is exported to
	// logs/metrics.prom when the run ends.
	Registry *prometheus.Registry
}

// Outcome summarises a finished run.
type Outcome struct {
	RunID        string
	State        State
	ExitCode     int
	Err          error
	Metadata     *manifest.Metadata
	Workspaces   []*sleuth.Workspace
	DEOutcomes   []sleuth.Outcome
	Consolidated *sleuth.Consolidated
	Report       *occupancy.Report
	Transitions  []ledger.Transition
}

// Driver runs the pipeline once.
type Driver struct {
	cfg      Config
	logger   *zap.Logger
	registry *prometheus.Registry
	exec     toolexec.Executor
	layout   workdir.Layout
	machine  *machine
	ledger   *ledger.Ledger
	runID    string
	closers  []func() error
}

// New returns a driver logging to logger.
func New(cfg Config, logger *zap.Logger) *Driver {
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = filepath.Join(cfg.OutputDir, manifest.FileName)
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Driver{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		layout:   workdir.New(cfg.OutputDir),
		runID:    uuid.NewString(),
	}
}

// Run executes every stage and returns the outcome. The outcome error is nil
// only when the run reached Done.
func (d *Driver) Run(ctx context.Context) *Outcome {
	start := time.Now()
	out := &Outcome{RunID: d.runID, State: Init}

	m, err := newMachine()
	if err != nil {
		out.Err = err
		out.ExitCode = failure.ExitCode(err)

		return out
	}
	d.machine = m

	err = d.run(ctx, start, out)
	if err != nil {
		d.abort(err)
		out.Err = err
	}
	out.State = d.machine.state
	out.ExitCode = failure.ExitCode(err)
	out.Transitions = d.machine.history
	d.finish(out)

	return out
}

func (d *Driver) runLogger() *zap.Logger {
	return d.logger.With(zap.String("run_id", d.runID))
}

func (d *Driver) logFor(name string) *zap.Logger {
	return d.runLogger().Named(name)
}

func (d *Driver) transition(to State) error {
	tr, err := d.machine.transition(to)
	if err != nil {
		return err
	}
	d.logFor("driver").Debug("state transition", zap.String("from", tr.From), zap.String("to", tr.To))
	if d.ledger != nil {
		if err := d.ledger.RecordTransition(context.Background(), d.runID, tr); err != nil {
			d.logFor("driver").Warn("unable to record transition", zap.Error(err))
		}
	}

	return nil
}

func (d *Driver) abort(err error) {
	logger := d.logFor("driver")
	logger.Error("abort", zap.Error(err), zap.String("state", string(d.machine.state)), zap.Int("exit_code", failure.ExitCode(err)))
	if d.machine.terminal() {
		return
	}
	if terr := d.transition(Aborted); terr != nil {
		logger.Error("unable to abort", zap.Error(terr))
	}
}

func (d *Driver) run(ctx context.Context, start time.Time, out *Outcome) error {
	logger := d.logFor("driver")
	logger.Info("beginning analysis", zap.String("version", d.cfg.Version), zap.String("output", d.layout.Root))

	logger.Info("parsing manifest", zap.String("path", d.cfg.ManifestPath))
	meta, err := manifest.Parse(d.cfg.ManifestPath)
	if err != nil {
		return err
	}
	out.Metadata = meta
	if err := d.transition(ManifestParsed); err != nil {
		return err
	}

	var binaries []string
	if !meta.Parameters.Quant.Skip {
		binaries = append(binaries, meta.Parameters.Quant.Binary)
	}
	if !meta.Parameters.DE.Skip {
		binaries = append(binaries, meta.Parameters.DE.Rscript)
	}
	if err := toolexec.VerifyReady(d.cfg.LookPath, binaries...); err != nil {
		return err
	}
	if err := d.transition(ReadyChecked); err != nil {
		return err
	}

	if err := d.prepare(ctx, start); err != nil {
		return err
	}

	quantOpts, err := d.stageOptions("quantification", QuantDOTName)
	if err != nil {
		return err
	}
	err = quant.NewRunner(d.exec, d.runLogger(), quantOpts...).Run(ctx, meta, d.layout)
	if err != nil {
		return err
	}
	if meta.Parameters.Quant.Skip {
		err = d.transition(QuantSkipped)
	} else {
		err = d.transition(Quantified)
	}
	if err != nil {
		return err
	}

	logger.Info("preparing directories and files for sleuth analysis")
	out.Workspaces, err = sleuth.Setup(meta, d.layout)
	if err != nil {
		return errors.Wrap(err, "unable to set up sleuth workspaces")
	}
	if err := d.transition(DESetupDone); err != nil {
		return err
	}

	if meta.Parameters.DE.Skip {
		logger.Info("skipping sleuth analysis, using existing results")
		err = d.transition(DESkipped)
	} else {
		err = d.executeDE(ctx, meta, out)
	}
	if err != nil {
		return err
	}

	logger.Info("consolidating sleuth analysis output")
	out.Consolidated, err = sleuth.Consolidate(d.layout, out.Workspaces)
	if err != nil {
		return errors.Wrap(err, "unable to consolidate sleuth results")
	}
	for _, id := range out.Consolidated.Order {
		if res := out.Consolidated.Results[id]; !res.Present {
			logger.Warn("comparison left out", zap.String("comparison", id), zap.String("reason", res.Reason))
		}
	}
	if err := d.transition(Consolidated); err != nil {
		return err
	}

	logger.Info("quantitating shifts of transcripts in polysomes")
	out.Report, err = occupancy.Compare(d.layout, out.Consolidated, meta.Comparisons, meta.Parameters.Compare)
	if err != nil {
		return errors.Wrap(err, "unable to compare comparisons")
	}
	d.logFor("occupancy").Info("occupancy report written",
		zap.Int("comparisons", len(out.Report.Comparisons)),
		zap.Int("transcripts", len(out.Report.Transcripts)),
		zap.String("path", out.Report.ResultsPath))
	if err := d.transition(Compared); err != nil {
		return err
	}

	logger.Info("analysis complete", zap.Duration("elapsed", time.Since(start)))

	return d.transition(Done)
}

func (d *Driver) executeDE(ctx context.Context, meta *manifest.Metadata, out *Outcome) error {
	opts, err := d.stageOptions("differential_expression", DEDOTName)
	if err != nil {
		return err
	}
	d.logFor("driver").Info("performing sleuth analysis within group fractions")
	out.DEOutcomes = sleuth.NewRunner(d.exec, d.runLogger(), d.layout, opts...).Execute(ctx, out.Workspaces, meta.Parameters.DE)
	failed := 0
	for _, o := range out.DEOutcomes {
		if o.Err != nil {
			failed++
		}
	}
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "sleuth analysis interrupted")
	}
	d.logFor("driver").Info("sleuth analysis done", zap.Int("comparisons", len(out.DEOutcomes)), zap.Int("failed", failed))

	return d.transition(DEExecuted)
}

// prepare creates the output folders, then starts writing the run log, the
// ledger and the tool metrics.
func (d *Driver) prepare(ctx context.Context, start time.Time) error {
	err := d.layout.Create()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.AttachFile(d.logger, filepath.Join(d.layout.Logs(), logging.RunLogName(start)))
	if err != nil {
		return err
	}
	d.logger = logger
	d.closers = append(d.closers, closeLog)

	ldg, err := ledger.Open(filepath.Join(d.layout.Logs(), ledger.FileName))
	if err != nil {
		return err
	}
	d.closers = append(d.closers, ldg.Close)
	err = ldg.StartRun(ctx, ledger.Run{
		ID:        d.runID,
		OutputDir: d.layout.Root,
		Manifest:  d.cfg.ManifestPath,
		Version:   d.cfg.Version,
		StartedAt: start,
	})
	if err != nil {
		return err
	}
	for _, tr := range d.machine.history {
		if err := ldg.RecordTransition(ctx, d.runID, tr); err != nil {
			return err
		}
	}
	d.ledger = ldg

	exec := d.cfg.Executor
	if exec == nil {
		metrics, err := toolexec.NewMetrics(d.registry)
		if err != nil {
			return err
		}
		direct := toolexec.NewDirectExecutor(metrics)
		audit := d.logFor("toolexec")
		direct.SetAuditCallback(func(ev toolexec.AuditEvent) {
			fields := []zap.Field{zap.String("tool", ev.Command.Tool), zap.String("subject", ev.Command.Subject), zap.Int("attempt", ev.Attempt)}
			if ev.Result != nil && ev.Type == toolexec.AuditEventFinish {
				fields = append(fields, zap.Int("exit_code", ev.Result.ExitCode), zap.Duration("duration", ev.Result.Duration))
			}
			audit.Debug("external tool "+string(ev.Type), fields...)
		})
		exec = direct
	}
	d.exec = &recordingExecutor{Executor: exec, record: func(inv ledger.Invocation) {
		if err := ldg.RecordInvocation(context.Background(), d.runID, inv); err != nil {
			d.logFor("driver").Warn("unable to record invocation", zap.Error(err))
		}
	}}

	return nil
}

func (d *Driver) stageOptions(pipelineName, dotName string) ([]model.PipelineOption, error) {
	msr, err := measure.NewPrometheusMeasure(d.registry, pipelineName)
	if err != nil {
		return nil, err
	}

	return []model.PipelineOption{
		measure.PipelineMeasure(msr),
		drawer.PipelineDrawer(drawer.NewDOTDrawer(filepath.Join(d.layout.Logs(), dotName)), msr),
	}, nil
}

// finish closes the ledger entry of the run and releases the run resources.
func (d *Driver) finish(out *Outcome) {
	logger := d.logFor("driver")
	if d.ledger != nil {
		err := d.ledger.FinishRun(context.Background(), d.runID, string(out.State), out.ExitCode, time.Now())
		if err != nil {
			logger.Warn("unable to finish run in ledger", zap.Error(err))
		}
		err = prometheus.WriteToTextfile(filepath.Join(d.layout.Logs(), MetricsName), d.registry)
		if err != nil {
			logger.Warn("unable to write metrics", zap.Error(err))
		}
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.Warn("unable to release run resource", zap.Error(err))
		}
	}
	d.closers = nil
}
