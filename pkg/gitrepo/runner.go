package gitrepo

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
)

// Runner executes git subcommands. The seam exists so tests can substitute
// a fake instead of invoking a real git binary.
type Runner interface {
	// Run executes `git <args...>` in dir with extra env appended to the
	// process environment and returns trimmed stdout.
	Run(ctx context.Context, dir string, env []string, args ...string) (string, error)
}

type execRunner struct{}

// NewExecRunner returns the default Runner backed by os/exec.
func NewExecRunner() Runner {
	return &execRunner{}
}

func (e *execRunner) Run(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", newGitError(args, strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
