package sleuth

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/sherlock/internal/failure"
	"github.com/askiada/sherlock/internal/toolexec"
	"github.com/askiada/sherlock/internal/workdir"
	"github.com/askiada/sherlock/pkg/manifest"
	"github.com/askiada/sherlock/pkg/pipeline"
	"github.com/askiada/sherlock/pkg/pipeline/model"
)

// Tool labels sleuth invocations.
const Tool = "sleuth"

// Outcome is the result of the analysis of one workspace.
type Outcome struct {
	Workspace *Workspace
	// Result is nil when Rscript could not be started.
	Result *toolexec.Result
	Err    error
}

// Runner executes the differential expression stage.
type Runner struct {
	exec    toolexec.Executor
	logger  *zap.Logger
	layout  workdir.Layout
	options []model.PipelineOption
}

// NewRunner returns a runner invoking Rscript through exec. opts are applied
// to the pipeline processing the workspaces.
func NewRunner(exec toolexec.Executor, logger *zap.Logger, layout workdir.Layout, opts ...model.PipelineOption) *Runner {
	return &Runner{
		exec:    exec,
		logger:  logger.Named("sleuth"),
		layout:  layout,
		options: opts,
	}
}

// Command is the Rscript invocation analysing ws.
func (r *Runner) Command(ws *Workspace, opts manifest.DEOptions) toolexec.Command {
	scriptPath := opts.Script
	if scriptPath == "" {
		scriptPath = ScriptPath(r.layout)
	}

	return toolexec.Command{
		Tool:    Tool,
		Subject: ws.Comparison.ID,
		Binary:  opts.Rscript,
		Args:    []string{"--vanilla", scriptPath, ws.Dir, opts.Test},
		LogPath: ws.LogPath,
		Timeout: time.Duration(opts.Timeout),
	}
}

// Execute runs the analysis of every workspace and returns one outcome per
// workspace, in order. A failing comparison never stops the others: its error
// is stored in the outcome and on the workspace.
func (r *Runner) Execute(ctx context.Context, workspaces []*Workspace, opts manifest.DEOptions) []Outcome {
	outcomes := make(map[*Workspace]Outcome, len(workspaces))
	err := r.execute(ctx, workspaces, opts, outcomes)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if step, ok := pipeline.StepOf(err); ok {
			fields = append(fields, zap.String("step", step))
		}
		r.logger.Warn("differential expression pipeline reported an error", fields...)
	}

	res := make([]Outcome, len(workspaces))
	for i, ws := range workspaces {
		out, ok := outcomes[ws]
		if !ok {
			if err == nil {
				err = errors.New("not executed")
			}
			ws.Err = errors.Wrapf(err, "comparison %s", ws.Comparison.ID)
			out = Outcome{Workspace: ws, Err: ws.Err}
		}
		res[i] = out
	}

	return res
}

func (r *Runner) execute(ctx context.Context, workspaces []*Workspace, opts manifest.DEOptions, outcomes map[*Workspace]Outcome) error {
	pipe, err := pipeline.New(ctx, r.options...)
	if err != nil {
		return errors.Wrap(err, "unable to create differential expression pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "comparisons", workspaces)
	if err != nil {
		return errors.Wrap(err, "unable to add comparisons")
	}
	done, err := pipeline.AddStepOneToOne(pipe, Tool, root, func(ctx context.Context, ws *Workspace) (Outcome, error) {
		return r.run(ctx, ws, opts), nil
	}, pipeline.StepConcurrency[Outcome](opts.Workers))
	if err != nil {
		return errors.Wrap(err, "unable to add sleuth step")
	}
	err = pipeline.AddSink(pipe, "analysed", done, func(_ context.Context, out Outcome) error {
		outcomes[out.Workspace] = out

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "unable to add analysed sink")
	}

	return pipe.Run()
}

func (r *Runner) run(ctx context.Context, ws *Workspace, opts manifest.DEOptions) Outcome {
	logger := r.logger.With(zap.String("comparison", ws.Comparison.ID))
	cmd := r.Command(ws, opts)
	logger.Info("running sleuth analysis")
	logger.Debug("sleuth command", zap.String("command", cmd.String()))

	// A result left by an earlier run must not pass for this one.
	if err := os.Remove(ws.ResultPath); err != nil && !os.IsNotExist(err) {
		err = errors.Wrapf(err, "unable to remove previous result of comparison %s", ws.Comparison.ID)
		logger.Error("sleuth analysis not started", zap.Error(err))
		ws.Err = err

		return Outcome{Workspace: ws, Err: err}
	}

	policy := toolexec.RetryPolicy{Retries: opts.Retries, Backoff: time.Duration(opts.RetryBackoff)}
	res, err := toolexec.Run(ctx, r.exec, cmd, policy, r.logger)
	if err == nil && !res.Success() {
		err = failure.ToolFailure(ws.Comparison.ID, cmd.String(), res.ExitCode, nil)
	}
	if err != nil {
		logger.Error("sleuth analysis failed, continuing with the other comparisons", zap.Error(err), zap.String("log", cmd.LogPath))
		ws.Err = err
	} else {
		logger.Debug("sleuth analysis done", zap.Duration("duration", res.Duration))
	}

	return Outcome{Workspace: ws, Result: res, Err: err}
}
