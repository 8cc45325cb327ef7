package toolexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/sherlock/internal/failure"
)

// Executor runs commands. A non-zero exit is reported in the Result, not as an
// error; errors are reserved for commands that could not run to completion.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// AuditEventType tells whether an AuditEvent marks the start or the end of a command.
type AuditEventType string

const (
	AuditEventStart  AuditEventType = "start"
	AuditEventFinish AuditEventType = "finish"
)

// AuditEvent is emitted around every command the DirectExecutor runs.
type AuditEvent struct {
	Type      AuditEventType
	Timestamp time.Time
	Command   Command
	Attempt   int
	Result    *Result
	Err       error
}

// DirectExecutor runs commands on the host with os/exec.
type DirectExecutor struct {
	mu            sync.RWMutex
	auditCallback func(AuditEvent)
	metrics       *Metrics
}

// NewDirectExecutor returns an executor recording into metrics when it is not nil.
func NewDirectExecutor(metrics *Metrics) *DirectExecutor {
	return &DirectExecutor{metrics: metrics}
}

// SetAuditCallback sets the callback for audit events.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *DirectExecutor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(event)
	}
}

type attemptKey struct{}

// WithAttempt annotates ctx with the attempt number of the next Execute call.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFrom returns the attempt number carried by ctx, 1 when there is none.
func AttemptFrom(ctx context.Context) int {
	if a, ok := ctx.Value(attemptKey{}).(int); ok {
		return a
	}

	return 1
}

func openLog(cmd Command, attempt int) (io.WriteCloser, error) {
	if cmd.LogPath == "" {
		return nopWriteCloser{io.Discard}, nil
	}
	err := os.MkdirAll(filepath.Dir(cmd.LogPath), 0o755)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create log directory")
	}
	f, err := os.OpenFile(cmd.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", cmd.LogPath)
	}
	_, err = fmt.Fprintf(f, "### %s attempt %d: %s\n", time.Now().Format(time.RFC3339), attempt, cmd.String())
	if err != nil {
		_ = f.Close()

		return nil, errors.Wrapf(err, "unable to write %s", cmd.LogPath)
	}

	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Execute runs cmd and waits for it to exit.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*Result, error) {
	attempt := AttemptFrom(ctx)
	result := &Result{ExitCode: -1, Attempt: attempt}

	e.emitAudit(AuditEvent{Type: AuditEventStart, Timestamp: time.Now(), Command: cmd, Attempt: attempt})
	err := e.run(ctx, cmd, result)
	e.emitAudit(AuditEvent{Type: AuditEventFinish, Timestamp: time.Now(), Command: cmd, Attempt: attempt, Result: result, Err: err})
	if e.metrics != nil {
		e.metrics.observe(cmd, result, err)
	}

	return result, err
}

func (e *DirectExecutor) run(ctx context.Context, cmd Command, result *Result) error {
	if cmd.Binary == "" {
		return errors.New("binary is required")
	}
	logFile, err := openLog(cmd, result.Attempt)
	if err != nil {
		return err
	}
	defer logFile.Close()

	execCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Stdout = logFile
	execCmd.Stderr = logFile

	result.StartedAt = time.Now()
	err = execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	if err == nil {
		result.ExitCode = 0

		return nil
	}
	if ctx.Err() != nil {
		result.Killed = true
		result.KillReason = "cancelled"

		return errors.Wrapf(ctx.Err(), "%s [%s] interrupted", cmd.Tool, cmd.Subject)
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", cmd.Timeout)

		return failure.ToolTimeout(cmd.Subject, cmd.String(), errors.New(result.KillReason))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()

		return nil
	}

	return failure.ToolFailure(cmd.Subject, cmd.String(), -1, err)
}

var _ Executor = (*DirectExecutor)(nil)
