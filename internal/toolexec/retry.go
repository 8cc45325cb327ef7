package toolexec

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/sherlock/internal/failure"
)

// RetryPolicy re-runs a command that exited non-zero or timed out.
type RetryPolicy struct {
	// Retries is the number of extra attempts.
	Retries int
	// Backoff is the wait before the first retry. It doubles after each retry.
	Backoff time.Duration
}

func retryable(res *Result, err error) bool {
	if err != nil {
		return failure.KindOf(err) == failure.KindToolTimeout
	}

	return !res.Success()
}

// Run executes cmd with exec, retrying according to policy. The result of the
// last attempt is returned.
func Run(ctx context.Context, exec Executor, cmd Command, policy RetryPolicy, logger *zap.Logger) (*Result, error) {
	backoff := policy.Backoff
	for attempt := 1; ; attempt++ {
		res, err := exec.Execute(WithAttempt(ctx, attempt), cmd)
		if res != nil {
			res.Attempt = attempt
		}
		if !retryable(res, err) || attempt > policy.Retries {
			return res, err
		}

		fields := []zap.Field{zap.String("tool", cmd.Tool), zap.String("subject", cmd.Subject), zap.Int("attempt", attempt), zap.Duration("backoff", backoff)}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("exit_code", res.ExitCode))
		}
		logger.Warn("retrying external tool", fields...)

		select {
		case <-ctx.Done():
			return res, errors.Wrapf(ctx.Err(), "%s [%s] retry interrupted", cmd.Tool, cmd.Subject)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
