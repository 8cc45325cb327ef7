package driver

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine(t *testing.T) {
	t.Parallel()

	m, err := newMachine()
	require.NoError(t, err)
	for _, s := range []State{ManifestParsed, ReadyChecked, QuantSkipped, DESetupDone, DESkipped, Consolidated, Compared, Done} {
		_, err := m.transition(s)
		require.NoError(t, err, s)
	}
	assert.True(t, m.terminal())
	assert.Len(t, m.history, 8)

	_, err = m.transition(Aborted)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestMachineIllegalTransition(t *testing.T) {
	t.Parallel()

	m, err := newMachine()
	require.NoError(t, err)
	_, err = m.transition(Quantified)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Contains(t, err.Error(), "Init -> Quantified")
	assert.Equal(t, Init, m.state)

	_, err = m.transition(Aborted)
	require.NoError(t, err)
	assert.True(t, m.terminal())
	_, err = m.transition(ManifestParsed)
	assert.Error(t, err)
}
