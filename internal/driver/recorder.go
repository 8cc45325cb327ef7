package driver

import (
	"context"
	"time"

	"github.com/askiada/sherlock/internal/ledger"
	"github.com/askiada/sherlock/internal/toolexec"
)

// recordingExecutor stores every attempt in the run ledger.
type recordingExecutor struct {
	toolexec.Executor
	record func(ledger.Invocation)
}

func (e *recordingExecutor) Execute(ctx context.Context, cmd toolexec.Command) (*toolexec.Result, error) {
	started := time.Now()
	res, err := e.Executor.Execute(ctx, cmd)

	inv := ledger.Invocation{
		Tool:      cmd.Tool,
		Subject:   cmd.Subject,
		Command:   cmd.String(),
		Attempt:   toolexec.AttemptFrom(ctx),
		ExitCode:  -1,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if res != nil {
		inv.ExitCode = res.ExitCode
		inv.Killed = res.Killed
		if !res.StartedAt.IsZero() {
			inv.StartedAt = res.StartedAt
			inv.Duration = res.Duration
		}
	}
	if err != nil {
		inv.Error = err.Error()
	}
	e.record(inv)

	return res, err
}
