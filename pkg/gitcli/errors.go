package gitcli

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvocation matches every git invocation failure via errors.Is.
var ErrInvocation = errors.New("git invocation failed")

// ErrEmptyRevision is the cause for a rev-parse that printed nothing.
var ErrEmptyRevision = errors.New("empty revision")

// exitCodeNotStarted is reported when the process never ran.
const exitCodeNotStarted = -1

// InvocationError describes a git command that failed to start or exited
// with a non-zero status.
type InvocationError struct {
	Err      error
	Stderr   string
	Args     []string
	ExitCode int
}

// Error implements error.
func (e *InvocationError) Error() string {
	var sb strings.Builder

	sb.WriteString("git ")
	sb.WriteString(strings.Join(e.Args, " "))

	if e.ExitCode != exitCodeNotStarted {
		fmt.Fprintf(&sb, ": exit status %d", e.ExitCode)
	}

	if e.Err != nil && e.ExitCode == exitCodeNotStarted {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		sb.WriteString(": ")
		sb.WriteString(msg)
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInvocation.
func (e *InvocationError) Is(target error) bool {
	return target == ErrInvocation
}
