package pipeline_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askiada/sherlock/pkg/pipeline"
	"github.com/askiada/sherlock/pkg/pipeline/model"
)

func rootFromRange(t *testing.T, pipe *pipeline.Pipeline, total int) *model.Step[int] {
	t.Helper()
	items := make([]int, total)
	for i := range items {
		items[i] = i
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "root", items)
	require.NoError(t, err)

	return root
}

func processOutputChan[O any](t *testing.T, output <-chan O) (res []O) {
	t.Helper()
	for out := range output {
		res = append(res, out)
	}

	return res
}

type callRecorder struct {
	mu    sync.Mutex
	calls []int
}

func (c *callRecorder) record(in int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, in)
}

func (c *callRecorder) get() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]int(nil), c.calls...)
}

func identity(_ context.Context, in int) (int, error) {
	return in, nil
}
