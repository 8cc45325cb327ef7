package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/sherlock/pkg/pipeline/model"
)

// Pipeline is a pipeline of steps.
type Pipeline struct {
	ctx       context.Context
	cancel    context.CancelFunc
	errcList  *errorChans
	opts      []model.PipelineOption
	startTime time.Time
	goFn      []func(ctx context.Context)
	ran       bool
}

// New creates a new pipeline. Cancelling ctx stops the pipeline.
func New(ctx context.Context, opts ...model.PipelineOption) (*Pipeline, error) {
	dCtx, cancel := context.WithCancel(ctx)
	pipe := &Pipeline{
		ctx:       dCtx,
		cancel:    cancel,
		errcList:  &errorChans{},
		startTime: time.Now(),
		opts:      opts,
	}

	for _, opt := range opts {
		err := opt.New()
		if err != nil {
			cancel()

			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	return pipe, nil
}

// waitForPipeline waits for results from all error channels. The first error
// cancels the pipeline; the remaining channels are drained so that every step
// has returned when it does.
func (p *Pipeline) waitForPipeline(errs ...*errorChan) error {
	var first error
	for err := range mergeErrors(errs...) {
		if first == nil {
			first = err
			p.cancel()
		}
	}

	return first
}

// Run starts the pipeline and waits for it to finish.
func (p *Pipeline) Run() error {
	if p.ran {
		return ErrAlreadyRun
	}
	p.ran = true
	defer p.cancel()

	p.startTime = time.Now()
	for _, fn := range p.goFn {
		go fn(p.ctx)
	}

	// Wait for all steps to finish.
	err := p.waitForPipeline(p.errcList.snapshot()...)

	finishErr := p.finishRun()
	if err != nil {
		return err
	}

	return finishErr
}

func (p *Pipeline) finishRun() error {
	for _, opt := range p.opts {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}
