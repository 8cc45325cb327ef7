package drawer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/sherlock/pkg/pipeline"
	"github.com/askiada/sherlock/pkg/pipeline/drawer"
	"github.com/askiada/sherlock/pkg/pipeline/measure"
)

func TestPipelineDrawer(t *testing.T) {
	t.Parallel()

	dotFile := filepath.Join(t.TempDir(), "pipeline.dot")
	msr := measure.NewDefaultMeasure()
	pipe, err := pipeline.New(context.Background(),
		measure.PipelineMeasure(msr),
		drawer.PipelineDrawer(drawer.NewDOTDrawer(dotFile), msr),
	)
	require.NoError(t, err)

	root, err := pipeline.AddRootStepFromSlice(pipe, "samples", []int{1, 2, 3})
	require.NoError(t, err)
	step, err := pipeline.AddStepOneToOne(pipe, "kallisto", root, func(_ context.Context, in int) (int, error) {
		time.Sleep(time.Millisecond)

		return in, nil
	}, pipeline.StepConcurrency[int](2))
	require.NoError(t, err)
	require.NoError(t, pipeline.AddSink(pipe, "collect", step, func(context.Context, int) error { return nil }))

	require.NoError(t, pipe.Run())

	content, err := os.ReadFile(dotFile)
	require.NoError(t, err)
	dot := string(content)
	assert.Contains(t, dot, "strict digraph {")
	assert.Contains(t, dot, `"start" -> "samples"`)
	assert.Contains(t, dot, `"samples" -> "kallisto"`)
	assert.Contains(t, dot, `"kallisto" -> "collect"`)
	assert.Contains(t, dot, `"collect" -> "end"`)
	assert.Contains(t, dot, `fontcolor="blue"`)
}

func TestDrawerWithoutMeasure(t *testing.T) {
	t.Parallel()

	dotFile := filepath.Join(t.TempDir(), "pipeline.dot")
	pipe, err := pipeline.New(context.Background(), drawer.PipelineDrawer(drawer.NewDOTDrawer(dotFile), nil))
	require.NoError(t, err)
	root, err := pipeline.AddRootStepFromSlice[int](pipe, "samples", nil)
	require.NoError(t, err)
	require.NoError(t, pipeline.AddSink(pipe, "collect", root, func(context.Context, int) error { return nil }))

	require.NoError(t, pipe.Run())
	assert.FileExists(t, dotFile)
}

func TestDrawerDuplicateStep(t *testing.T) {
	t.Parallel()

	d := drawer.NewDOTDrawer(filepath.Join(t.TempDir(), "pipeline.dot"))
	require.NoError(t, d.AddStep("a"))
	assert.Error(t, d.AddStep("a"))
	assert.Error(t, d.AddLink("a", "missing"))
}
