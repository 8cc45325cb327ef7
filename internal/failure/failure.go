// Package failure defines the error kinds of a sherlock run and how they map to
// process exit codes.
package failure

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindMissingDependency
	KindMissingIndex
	KindMissingPriorOutput
	KindToolFailure
	KindToolTimeout
)

// Exit codes returned by the sherlock binary.
const (
	ExitOK                 = 0
	ExitToolFailure        = 1
	ExitMissingPriorOutput = 2
	ExitMissingIndex       = 3
	ExitConfig             = 4
	ExitMissingDependency  = 5
	ExitToolTimeout        = 6
	ExitInternal           = 10
)

// Sentinels matched with errors.Is against any *Error of the same kind.
var (
	ErrConfig             = errors.New("configuration error")
	ErrMissingDependency  = errors.New("missing dependency")
	ErrMissingIndex       = errors.New("missing kallisto index")
	ErrMissingPriorOutput = errors.New("expected prior stage output not found")
	ErrToolFailure        = errors.New("external tool failed")
	ErrToolTimeout        = errors.New("external tool timed out")
)

var sentinels = map[Kind]error{
	KindConfig:             ErrConfig,
	KindMissingDependency:  ErrMissingDependency,
	KindMissingIndex:       ErrMissingIndex,
	KindMissingPriorOutput: ErrMissingPriorOutput,
	KindToolFailure:        ErrToolFailure,
	KindToolTimeout:        ErrToolTimeout,
}

func (k Kind) String() string {
	if s, ok := sentinels[k]; ok {
		return s.Error()
	}

	return "internal error"
}

// Error is a classified failure. Subject names the sample or comparison the
// failure belongs to and Command is the invocation that was attempted.
type Error struct {
	Kind     Kind
	Subject  string
	Command  string
	ExitCode int
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Subject != "" {
		fmt.Fprintf(&sb, " [%s]", e.Subject)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Kind == KindToolFailure {
		fmt.Fprintf(&sb, " (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if e.Command != "" {
		fmt.Fprintf(&sb, "; command: %s", e.Command)
	}

	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]

	return ok && s == target
}

// Configf returns a configuration error.
func Configf(format string, args ...any) error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

// Config wraps err as a configuration error.
func Config(err error, msg string) error {
	return &Error{Kind: KindConfig, Msg: msg, Err: err}
}

// MissingDependency reports a tool that could not be resolved on PATH.
func MissingDependency(tool string, err error) error {
	return &Error{Kind: KindMissingDependency, Subject: tool, Msg: "executable not found in PATH", Err: err}
}

// MissingIndex reports an empty kallisto index option.
func MissingIndex() error {
	return &Error{Kind: KindMissingIndex, Msg: "please provide a kallisto index for the organism used in the study"}
}

// MissingPriorOutput reports that a skipped stage left no output for subject.
func MissingPriorOutput(subject, path string) error {
	return &Error{Kind: KindMissingPriorOutput, Subject: subject, Msg: fmt.Sprintf("%s does not exist", path)}
}

// ToolFailure reports a non-zero exit of an external tool.
func ToolFailure(subject, command string, exitCode int, err error) error {
	return &Error{Kind: KindToolFailure, Subject: subject, Command: command, ExitCode: exitCode, Err: err}
}

// ToolTimeout reports an external tool killed after its deadline.
func ToolTimeout(subject, command string, err error) error {
	return &Error{Kind: KindToolTimeout, Subject: subject, Command: command, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	return KindUnknown
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindConfig:
		return ExitConfig
	case KindMissingDependency:
		return ExitMissingDependency
	case KindMissingIndex:
		return ExitMissingIndex
	case KindMissingPriorOutput:
		return ExitMissingPriorOutput
	case KindToolFailure:
		return ExitToolFailure
	case KindToolTimeout:
		return ExitToolTimeout
	default:
		return ExitInternal
	}
}
