// Package quant runs kallisto quant on every sample of a manifest.
package quant

import (
	"context"
	"os"
	"path/filepath"
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

// Tool labels kallisto invocations.
const Tool = "kallisto"

// LogName is the kallisto log written in every sample output folder.
const LogName = "log.txt"

// Runner executes the quantification stage.
type Runner struct {
	exec    toolexec.Executor
	logger  *zap.Logger
	options []model.PipelineOption
}

// NewRunner returns a runner invoking kallisto through exec. opts are applied
// to the pipeline processing the samples.
func NewRunner(exec toolexec.Executor, logger *zap.Logger, opts ...model.PipelineOption) *Runner {
	return &Runner{
		exec:    exec,
		logger:  logger.Named("quant"),
		options: opts,
	}
}

func (r *Runner) command(opts manifest.QuantOptions, subject, index, outDir string, files []string) toolexec.Command {
	return toolexec.Command{
		Tool:    Tool,
		Subject: subject,
		Binary:  opts.Binary,
		Args:    Args(opts, index, outDir, files),
		LogPath: filepath.Join(outDir, LogName),
		Timeout: time.Duration(opts.Timeout),
	}
}

func (r *Runner) quant(ctx context.Context, cmd toolexec.Command, opts manifest.QuantOptions) (*toolexec.Result, error) {
	err := os.MkdirAll(filepath.Dir(cmd.LogPath), 0o755)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create output folder of %s", cmd.Subject)
	}
	r.logger.Debug("kallisto command", zap.String("sample", cmd.Subject), zap.String("command", cmd.String()))

	policy := toolexec.RetryPolicy{Retries: opts.Retries, Backoff: time.Duration(opts.RetryBackoff)}

	return toolexec.Run(ctx, r.exec, cmd, policy, r.logger)
}

// Quant runs kallisto quant once for files and returns its exit code. The
// combined output of kallisto is appended to outDir/log.txt. err is only set
// when kallisto could not run to completion, in which case the exit code is -1.
func (r *Runner) Quant(ctx context.Context, opts manifest.QuantOptions, index, outDir string, files []string) (int, error) {
	res, err := r.quant(ctx, r.command(opts, filepath.Base(outDir), index, outDir, files), opts)
	if res == nil {
		return -1, err
	}

	return res.ExitCode, err
}

type job struct {
	num    int
	sample *manifest.Sample
}

// Run quantifies every sample of meta and records its output folder. When
// quantification is skipped the folders of a previous run are used instead and
// must exist. The first failing sample stops the stage: samples that were not
// started yet are never started.
func (r *Runner) Run(ctx context.Context, meta *manifest.Metadata, layout workdir.Layout) error {
	opts := meta.Parameters.Quant
	if opts.Skip {
		return r.locate(meta, layout)
	}
	if opts.Index == "" {
		return failure.MissingIndex()
	}

	jobs := make([]job, len(meta.Samples))
	for i, s := range meta.Samples {
		jobs[i] = job{num: i + 1, sample: s}
	}

	pipe, err := pipeline.New(ctx, r.options...)
	if err != nil {
		return errors.Wrap(err, "unable to create quantification pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "samples", jobs)
	if err != nil {
		return errors.Wrap(err, "unable to add samples")
	}
	done, err := pipeline.AddStepOneToOne(pipe, Tool, root, func(ctx context.Context, j job) (job, error) {
		return j, r.runJob(ctx, opts, layout, j, len(jobs))
	}, pipeline.StepConcurrency[job](opts.Workers))
	if err != nil {
		return errors.Wrap(err, "unable to add kallisto step")
	}
	err = pipeline.AddSink(pipe, "quantified", done, func(_ context.Context, j job) error {
		j.sample.QuantDir = layout.SampleDir(j.sample.ID)

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "unable to add quantified sink")
	}

	return unwrapFailure(pipe.Run())
}

func (r *Runner) runJob(ctx context.Context, opts manifest.QuantOptions, layout workdir.Layout, j job, total int) error {
	logger := r.logger.With(zap.String("sample", j.sample.ID))
	logger.Info("running kallisto quant", zap.Int("sample_num", j.num), zap.Int("samples", total))

	cmd := r.command(opts, j.sample.ID, opts.Index, layout.SampleDir(j.sample.ID), j.sample.Files)
	res, err := r.quant(ctx, cmd, opts)
	if err != nil {
		return err
	}
	if !res.Success() {
		logger.Error("kallisto quant failed", zap.Int("exit_code", res.ExitCode), zap.String("command", cmd.String()), zap.String("log", cmd.LogPath))

		return failure.ToolFailure(j.sample.ID, cmd.String(), res.ExitCode, nil)
	}
	logger.Debug("kallisto quant done", zap.Duration("duration", res.Duration), zap.Int("attempt", res.Attempt))

	return nil
}

func (r *Runner) locate(meta *manifest.Metadata, layout workdir.Layout) error {
	r.logger.Info("skipping kallisto quant, using existing output")
	for i, s := range meta.Samples {
		dir := layout.SampleDir(s.ID)
		if !workdir.IsDir(dir) {
			r.logger.Error("expected kallisto output not found", zap.String("sample", s.ID), zap.Int("sample_num", i+1), zap.String("path", dir))

			return failure.MissingPriorOutput(s.ID, dir)
		}
		s.QuantDir = dir
	}

	return nil
}

// unwrapFailure drops the pipeline step annotations from a classified failure
// so that the error reads as the failure itself.
func unwrapFailure(err error) error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return fe
	}

	return err
}
