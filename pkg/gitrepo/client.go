package gitrepo

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client is the version-control capability the syncer drives. Every
// operation maps to one or two git subcommands; none of them retries.
type Client interface {
	// UpstreamRef returns the remote-tracking ref of the current branch
	// (e.g. "origin/main"), or "" when no upstream is configured.
	UpstreamRef(ctx context.Context) (string, error)

	// HasLocalChanges reports whether the working tree differs from HEAD,
	// including untracked files.
	HasLocalChanges(ctx context.Context) (bool, error)

	// HasStagedChanges reports whether the index differs from HEAD.
	HasStagedChanges(ctx context.Context) (bool, error)

	// HasRemoteDivergence fetches the upstream's remote and reports whether
	// the local tip differs from the upstream tip.
	HasRemoteDivergence(ctx context.Context, upstream string) (bool, error)

	// Stash sets aside uncommitted edits; StashPop restores them and fails
	// when restoration conflicts.
	Stash(ctx context.Context) error
	StashPop(ctx context.Context) error

	// PullRebase replays local commits on top of the upstream tip. Fails on
	// conflicting history and leaves the repository in the rebase state.
	PullRebase(ctx context.Context, upstream string) error

	// StageTracked stages modifications to tracked files only. Untracked
	// files are deliberately excluded.
	StageTracked(ctx context.Context) error

	// Commit records staged changes; fails when nothing is staged.
	Commit(ctx context.Context, message string) error

	// Push publishes local commits to the upstream; fails when the remote
	// has diverged further.
	Push(ctx context.Context, upstream string) error
}

// ExecClient drives the git binary for a single repository.
type ExecClient struct {
	repoPath string
	runner   Runner
	timeout  time.Duration
	extraEnv []string
}

func NewExecClient(repoPath string) *ExecClient {
	return NewExecClientWithRunner(repoPath, NewExecRunner())
}

func NewExecClientWithRunner(repoPath string, runner Runner) *ExecClient {
	return &ExecClient{
		repoPath: repoPath,
		runner:   runner,
	}
}

// SetTimeout bounds each git invocation. Zero disables the deadline.
func (c *ExecClient) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SetEnv replaces the extra environment passed to git subprocesses
// (credential helpers, GIT_SSH_COMMAND and the like). The syncer refreshes
// it at the start of each cycle.
func (c *ExecClient) SetEnv(env []string) {
	c.extraEnv = env
}

// IsRepository checks whether path is inside a git working tree.
func IsRepository(path string) bool {
	_, err := NewExecRunner().Run(context.Background(), path, nil, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// SplitUpstream splits "origin/feature/x" into remote "origin" and branch
// "feature/x".
func SplitUpstream(upstream string) (remote, branch string, err error) {
	remote, branch, ok := strings.Cut(upstream, "/")
	if !ok || remote == "" || branch == "" {
		return "", "", fmt.Errorf("malformed upstream ref %q", upstream)
	}
	return remote, branch, nil
}

func (c *ExecClient) git(ctx context.Context, args ...string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.runner.Run(ctx, c.repoPath, c.extraEnv, args...)
}

func (c *ExecClient) UpstreamRef(ctx context.Context) (string, error) {
	out, err := c.git(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	if err != nil {
		// rev-parse exits non-zero when no upstream is configured
		return "", nil
	}
	return out, nil
}

func (c *ExecClient) HasLocalChanges(ctx context.Context) (bool, error) {
	out, err := c.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (c *ExecClient) HasStagedChanges(ctx context.Context) (bool, error) {
	// diff --cached --quiet exits 1 when the index differs from HEAD
	_, err := c.git(ctx, "diff", "--cached", "--quiet")
	if err != nil {
		return true, nil
	}
	return false, nil
}

func (c *ExecClient) HasRemoteDivergence(ctx context.Context, upstream string) (bool, error) {
	remote, _, err := SplitUpstream(upstream)
	if err != nil {
		return false, err
	}
	if _, err := c.git(ctx, "fetch", remote); err != nil {
		return false, err
	}

	local, err := c.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return false, err
	}
	remoteTip, err := c.git(ctx, "rev-parse", upstream)
	if err != nil {
		return false, err
	}
	return local != remoteTip, nil
}

func (c *ExecClient) Stash(ctx context.Context) error {
	_, err := c.git(ctx, "stash", "push")
	return err
}

func (c *ExecClient) StashPop(ctx context.Context) error {
	_, err := c.git(ctx, "stash", "pop")
	return err
}

func (c *ExecClient) PullRebase(ctx context.Context, upstream string) error {
	remote, branch, err := SplitUpstream(upstream)
	if err != nil {
		return err
	}
	_, err = c.git(ctx, "pull", "--rebase", remote, branch)
	return err
}

func (c *ExecClient) StageTracked(ctx context.Context) error {
	_, err := c.git(ctx, "add", "-u")
	return err
}

func (c *ExecClient) Commit(ctx context.Context, message string) error {
	_, err := c.git(ctx, "commit", "-m", message)
	return err
}

func (c *ExecClient) Push(ctx context.Context, upstream string) error {
	remote, branch, err := SplitUpstream(upstream)
	if err != nil {
		return err
	}
	_, err = c.git(ctx, "push", remote, "HEAD:"+branch)
	return err
}
