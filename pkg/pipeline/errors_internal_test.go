package pipeline

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeErrors(t *testing.T) {
	t.Parallel()

	first := make(chan error, 2)
	second := make(chan error, 1)
	first <- nil
	first <- assert.AnError
	close(first)
	close(second)

	var got []error
	for err := range mergeErrors(newErrorChan("first", first), newErrorChan("second", second), newErrorChan("nil", nil)) {
		got = append(got, err)
	}

	require.Len(t, got, 1)
	assert.True(t, errors.Is(got[0], assert.AnError))
	assert.Equal(t, "first: "+assert.AnError.Error(), got[0].Error())

	step, ok := StepOf(errors.Wrap(got[0], "quantification"))
	assert.True(t, ok)
	assert.Equal(t, "first", step)
}

func TestStepOfOptionError(t *testing.T) {
	t.Parallel()

	_, ok := StepOf(errors.Wrap(assert.AnError, "unable to finish pipeline option"))
	assert.False(t, ok)
}

func TestErrorChansSnapshot(t *testing.T) {
	t.Parallel()

	ec := &errorChans{}
	ec.add(newErrorChan("a", nil))
	list := ec.snapshot()
	ec.add(newErrorChan("b", nil))

	assert.Len(t, list, 1)
	assert.Len(t, ec.snapshot(), 2)
}
