package gitrepo

import (
	"errors"
	"fmt"
)

// ErrCommandFailed is the sentinel wrapped by every failed git invocation,
// usable with errors.Is.
var ErrCommandFailed = errors.New("git command failed")

// GitError carries the failing subcommand, its arguments and captured
// stderr so a cycle failure is diagnosable from a single log line.
type GitError struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s failed", e.Op)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GitError) Unwrap() error {
	return e.Err
}

func newGitError(args []string, stderr string, err error) *GitError {
	op := ""
	rest := args
	if len(args) > 0 {
		op = args[0]
		rest = args[1:]
	}
	return &GitError{
		Op:     op,
		Args:   rest,
		Stderr: stderr,
		Err:    fmt.Errorf("%w: %v", ErrCommandFailed, err),
	}
}
