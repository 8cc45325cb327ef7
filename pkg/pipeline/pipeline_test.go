package pipeline_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/sherlock/pkg/pipeline"
	"github.com/askiada/sherlock/pkg/pipeline/model"
)

func TestAddStepOneToOneNilPipe(t *testing.T) {
	t.Parallel()

	_, err := pipeline.AddStepOneToOne(nil, "step", &model.Step[int]{}, identity)
	assert.ErrorIs(t, err, pipeline.ErrPipelineMustBeSet)
}

func TestAddStepOneToOneNilInput(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New(context.Background())
	require.NoError(t, err)
	_, err = pipeline.AddStepOneToOne[int, int](pipe, "step", nil, identity)
	assert.ErrorIs(t, err, pipeline.ErrInputMustBeSet)
}

func TestAddSinkNilInput(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New(context.Background())
	require.NoError(t, err)
	err = pipeline.AddSink[int](pipe, "sink", nil, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, pipeline.ErrInputMustBeSet)
}

func TestAddStepOneToOne(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New(context.Background())
	require.NoError(t, err)
	root := rootFromRange(t, pipe, 10)
	step, err := pipeline.AddStepOneToOne(pipe, "double", root, func(_ context.Context, in int) (string, error) {
		return strconv.Itoa(in * 2), nil
	})
	require.NoError(t, err)

	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		got = processOutputChan(t, step.Output)
	}()

	require.NoError(t, pipe.Run())
	<-done
	assert.Equal(t, []string{"0", "2", "4", "6", "8", "10", "12", "14", "16", "18"}, got)
}

func TestAddStepOneToOneConcurrent(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New(context.Background())
	require.NoError(t, err)
	root := rootFromRange(t, pipe, 20)
	step, err := pipeline.AddStepOneToOne(pipe, "identity", root, identity, pipeline.StepConcurrency[int](4))
	require.NoError(t, err)
	assert.Equal(t, 4, step.Details.Concurrent)

	var got []int
	err = pipeline.AddSink(pipe, "sink", step, func(_ context.Context, in int) error {
		got = append(got, in)

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, pipe.Run())
	assert.Len(t, got, 20)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, got)
}

func TestAddStepOneToOneErrorStopsSequentialStep(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New(context.Background())
	require.NoError(t, err)
	root := rootFromRange(t, pipe, 10)
	calls := &callRecorder{}
	step, err := pipeline.AddStepOneToOne(pipe, "fail at 5", root, func(_ context.Context, in int) (int, error) {
		calls.record(in)
		if in == 5 {
			return 0, assert.AnError
		}

		return in, nil
	})
	require.NoError(t, err)

	var got []int
	err = pipeline.AddSink(pipe, "sink", step, func(_ context.Context, in int) error {
		got = append(got, in)

		return nil
	})
	require.NoError(t, err)

	err = pipe.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, assert.AnError))
	assert.Contains(t, err.Error(), "fail at 5")
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, calls.get())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestAddStepOneToOneErrorCancelsSiblings(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New(context.Background())
	require.NoError(t, err)
	root := rootFromRange(t, pipe, 2)
	step, err := pipeline.AddStepOneToOne(pipe, "step", root, func(ctx context.Context, in int) (int, error) {
		if in == 0 {
			return 0, assert.AnError
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(5 * time.Second):
			return in, nil
		}
	}, pipeline.StepConcurrency[int](2))
	require.NoError(t, err)
	err = pipeline.AddSink(pipe, "sink", step, func(context.Context, int) error { return nil })
	require.NoError(t, err)

	start := time.Now()
	err = pipe.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, assert.AnError))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSinkError(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New(context.Background())
	require.NoError(t, err)
	root := rootFromRange(t, pipe, 10)
	var got []int
	err = pipeline.AddSink(pipe, "sink", root, func(_ context.Context, in int) error {
		if in == 3 {
			return assert.AnError
		}
		got = append(got, in)

		return nil
	})
	require.NoError(t, err)

	err = pipe.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, assert.AnError))
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestRootStepError(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New(context.Background())
	require.NoError(t, err)
	root, err := pipeline.AddRootStep(pipe, "root", func(ctx context.Context, rootChan chan<- int) error {
		rootChan <- 1

		return assert.AnError
	})
	require.NoError(t, err)
	var got []int
	err = pipeline.AddSink(pipe, "sink", root, func(_ context.Context, in int) error {
		got = append(got, in)

		return nil
	})
	require.NoError(t, err)

	err = pipe.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root")
	assert.Equal(t, []int{1}, got)
}

func TestParentContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	pipe, err := pipeline.New(ctx)
	require.NoError(t, err)
	root := rootFromRange(t, pipe, 1000)
	var once sync.Once
	err = pipeline.AddSink(pipe, "sink", root, func(_ context.Context, in int) error {
		if in == 10 {
			once.Do(cancel)
		}

		return nil
	})
	require.NoError(t, err)

	err = pipe.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunTwice(t *testing.T) {
	t.Parallel()

	pipe, err := pipeline.New(context.Background())
	require.NoError(t, err)
	root := rootFromRange(t, pipe, 1)
	require.NoError(t, pipeline.AddSink(pipe, "sink", root, func(context.Context, int) error { return nil }))

	require.NoError(t, pipe.Run())
	assert.ErrorIs(t, pipe.Run(), pipeline.ErrAlreadyRun)
}

type recordingOption struct {
	mu       sync.Mutex
	prepared []string
	outputs  map[string]int
	finished bool
	failNew  bool
}

func (r *recordingOption) New() error {
	if r.failNew {
		return assert.AnError
	}
	r.outputs = map[string]int{}

	return nil
}

func (r *recordingOption) PrepareStep(parent, step *model.StepInfo) error {
	r.prepared = append(r.prepared, parent.Name+"->"+step.Name)

	return nil
}

func (r *recordingOption) OnStepOutput(_, step *model.StepInfo, _, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[step.Name]++

	return nil
}

func (r *recordingOption) PrepareSink(parent, step *model.StepInfo) error {
	return r.PrepareStep(parent, step)
}

func (r *recordingOption) OnSinkOutput(parent, step *model.StepInfo, iter, comp time.Duration) error {
	return r.OnStepOutput(parent, step, iter, comp)
}

func (r *recordingOption) AfterSink(*model.StepInfo, time.Duration) error {
	return nil
}

func (r *recordingOption) Finish() error {
	r.finished = true

	return nil
}

func TestPipelineOptionHooks(t *testing.T) {
	t.Parallel()

	opt := &recordingOption{}
	pipe, err := pipeline.New(context.Background(), opt)
	require.NoError(t, err)
	root := rootFromRange(t, pipe, 3)
	step, err := pipeline.AddStepOneToOne(pipe, "step", root, identity)
	require.NoError(t, err)
	require.NoError(t, pipeline.AddSink(pipe, "sink", step, func(context.Context, int) error { return nil }))

	require.NoError(t, pipe.Run())
	assert.Equal(t, []string{"start->root", "root->step", "step->sink"}, opt.prepared)
	assert.Equal(t, map[string]int{"step": 3, "sink": 3}, opt.outputs)
	assert.True(t, opt.finished)
}

func TestPipelineOptionNewError(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New(context.Background(), &recordingOption{failNew: true})
	assert.True(t, errors.Is(err, assert.AnError))
}
