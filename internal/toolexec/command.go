// Package toolexec runs the external programs sherlock drives. Commands are
// executed from an argument list, never through a shell, with their combined
// output appended to a per job log file.
package toolexec

import (
	"strings"
	"time"
)

// Command describes one invocation of an external tool.
type Command struct {
	// Tool labels the invocation in logs, metrics and the ledger (kallisto, sleuth).
	Tool string
	// Subject is the sample or comparison the invocation belongs to.
	Subject string
	Binary  string
	Args    []string
	Dir     string
	// LogPath receives stdout and stderr. The file is opened in append mode.
	LogPath string
	// Timeout kills the process once elapsed. Zero means no timeout.
	Timeout time.Duration
}

// String renders the command so it can be pasted into a shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Binary))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}

	return strings.Join(parts, " ")
}

const shellSafe = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./=:,+@%"

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.Trim(s, shellSafe) == "" {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Result is the outcome of a command that was started.
type Result struct {
	// ExitCode is the process exit code, -1 when the process did not exit normally.
	ExitCode   int
	Attempt    int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Killed     bool
	KillReason string
}

// Success reports whether the process exited with code 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}
