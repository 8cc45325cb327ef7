package toolexec_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askiada/sherlock/internal/failure"
	"github.com/askiada/sherlock/internal/toolexec"
)

func shell(t *testing.T, script string) toolexec.Command {
	t.Helper()

	return toolexec.Command{
		Tool:    "sh",
		Subject: "S1",
		Binary:  "/bin/sh",
		Args:    []string{"-c", script},
		LogPath: filepath.Join(t.TempDir(), "log.txt"),
	}
}

func TestCommandString(t *testing.T) {
	t.Parallel()

	cmd := toolexec.Command{Binary: "kallisto", Args: []string{"quant", "-i", "/ref/idx", "-o", "/my out", "it's.fq", ""}}
	assert.Equal(t, `kallisto quant -i /ref/idx -o '/my out' 'it'\''s.fq' ''`, cmd.String())
}

func TestDirectExecutorExitCode(t *testing.T) {
	t.Parallel()

	exec := toolexec.NewDirectExecutor(nil)
	cmd := shell(t, "echo out; echo err >&2; exit 3")

	res, err := exec.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Success())

	res, err = exec.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)

	content, err := os.ReadFile(cmd.LogPath)
	require.NoError(t, err)
	// The log is appended to on every invocation.
	assert.Equal(t, 2, strings.Count(string(content), "out\n"))
	assert.Equal(t, 2, strings.Count(string(content), "err\n"))
	assert.Equal(t, 2, strings.Count(string(content), "### "))
}

func TestDirectExecutorTimeout(t *testing.T) {
	t.Parallel()

	exec := toolexec.NewDirectExecutor(nil)
	cmd := shell(t, "sleep 5")
	cmd.Timeout = 100 * time.Millisecond

	res, err := exec.Execute(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrToolTimeout))
	assert.True(t, res.Killed)
	assert.Less(t, res.Duration, 5*time.Second)
}

func TestDirectExecutorStartFailure(t *testing.T) {
	t.Parallel()

	exec := toolexec.NewDirectExecutor(nil)
	cmd := shell(t, "")
	cmd.Binary = filepath.Join(t.TempDir(), "missing")

	res, err := exec.Execute(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrToolFailure))
	assert.Equal(t, -1, res.ExitCode)
}

func TestDirectExecutorAuditAndMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics, err := toolexec.NewMetrics(reg)
	require.NoError(t, err)
	exec := toolexec.NewDirectExecutor(metrics)

	var mu sync.Mutex
	var events []toolexec.AuditEvent
	exec.SetAuditCallback(func(ev toolexec.AuditEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	_, err = exec.Execute(context.Background(), shell(t, "exit 0"))
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), shell(t, "exit 1"))
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, toolexec.AuditEventStart, events[0].Type)
	assert.Equal(t, toolexec.AuditEventFinish, events[1].Type)
	assert.Equal(t, 1, events[3].Result.ExitCode)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Counter("sh", toolexec.OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Counter("sh", toolexec.OutcomeFailure)), 0)
}

type scriptedExecutor struct {
	mu       sync.Mutex
	results  []int
	attempts []int
}

func (s *scriptedExecutor) Execute(ctx context.Context, _ toolexec.Command) (*toolexec.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.results[len(s.attempts)]
	s.attempts = append(s.attempts, len(s.attempts)+1)

	return &toolexec.Result{ExitCode: code}, nil
}

func TestRunRetries(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{results: []int{1, 1, 0}}
	res, err := toolexec.Run(context.Background(), exec, toolexec.Command{Tool: "kallisto"}, toolexec.RetryPolicy{Retries: 2, Backoff: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, 3, res.Attempt)
	assert.Equal(t, []int{1, 2, 3}, exec.attempts)
}

func TestRunGivesUp(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{results: []int{2, 2, 0}}
	res, err := toolexec.Run(context.Background(), exec, toolexec.Command{Tool: "kallisto"}, toolexec.RetryPolicy{Retries: 1, Backoff: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Len(t, exec.attempts, 2)
}

func TestRunNoRetryByDefault(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{results: []int{1, 0}}
	res, err := toolexec.Run(context.Background(), exec, toolexec.Command{}, toolexec.RetryPolicy{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Len(t, exec.attempts, 1)
}

func TestVerifyReady(t *testing.T) {
	t.Parallel()

	var looked []string
	lookPath := func(file string) (string, error) {
		looked = append(looked, file)
		if file == "Rscript" {
			return "", assert.AnError
		}

		return "/usr/bin/" + file, nil
	}

	require.NoError(t, toolexec.VerifyReady(lookPath, "kallisto", "kallisto"))
	assert.Equal(t, []string{"kallisto"}, looked)

	err := toolexec.VerifyReady(lookPath, "kallisto", "Rscript", "other")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrMissingDependency))
	assert.Contains(t, err.Error(), "Rscript")
	assert.Equal(t, failure.ExitMissingDependency, failure.ExitCode(err))
}
