package gitrepo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeRunner records every argv and serves scripted responses keyed by the
// joined argument string.
type fakeRunner struct {
	calls   [][]string
	stdout  map[string]string
	fail    map[string]error
	lastEnv []string
	lastDir string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		stdout: map[string]string{},
		fail:   map[string]error{},
	}
}

func (f *fakeRunner) Run(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	f.lastDir = dir
	f.lastEnv = env
	key := strings.Join(args, " ")
	if err, ok := f.fail[key]; ok {
		return "", err
	}
	return f.stdout[key], nil
}

func (f *fakeRunner) argv() []string {
	out := make([]string, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, strings.Join(call, " "))
	}
	return out
}

func TestUpstreamRef(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout["rev-parse --abbrev-ref --symbolic-full-name @{u}"] = "origin/main"
	client := NewExecClientWithRunner("/repo", runner)

	ref, err := client.UpstreamRef(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "origin/main", ref)
	assert.Equal(t, []string{"rev-parse --abbrev-ref --symbolic-full-name @{u}"}, runner.argv())
	assert.Equal(t, "/repo", runner.lastDir)
}

func TestUpstreamRefUnconfigured(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["rev-parse --abbrev-ref --symbolic-full-name @{u}"] = errors.New("fatal: no upstream configured")
	client := NewExecClientWithRunner("/repo", runner)

	ref, err := client.UpstreamRef(context.Background())
	assert.NoError(t, err, "missing upstream is not an error")
	assert.Equal(t, "", ref)
}

func TestHasLocalChanges(t *testing.T) {
	cases := []struct {
		name     string
		porcelain string
		expected bool
	}{
		{"clean", "", false},
		{"modified", " M pkg/syncer/syncer.go", true},
		{"untracked", "?? notes.txt", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.stdout["status --porcelain"] = tc.porcelain
			client := NewExecClientWithRunner("/repo", runner)

			dirty, err := client.HasLocalChanges(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, dirty)
		})
	}
}

func TestHasStagedChanges(t *testing.T) {
	runner := newFakeRunner()
	client := NewExecClientWithRunner("/repo", runner)

	// diff --cached --quiet exits 0 on an empty index.
	staged, err := client.HasStagedChanges(context.Background())
	assert.NoError(t, err)
	assert.False(t, staged)

	runner.fail["diff --cached --quiet"] = errors.New("exit status 1")
	staged, err = client.HasStagedChanges(context.Background())
	assert.NoError(t, err)
	assert.True(t, staged)
}

func TestHasRemoteDivergence(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout["rev-parse HEAD"] = "aaaa"
	runner.stdout["rev-parse origin/main"] = "bbbb"
	client := NewExecClientWithRunner("/repo", runner)

	diverged, err := client.HasRemoteDivergence(context.Background(), "origin/main")
	assert.NoError(t, err)
	assert.True(t, diverged)
	assert.Equal(t, []string{
		"fetch origin",
		"rev-parse HEAD",
		"rev-parse origin/main",
	}, runner.argv())
}

func TestHasRemoteDivergenceInSync(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout["rev-parse HEAD"] = "aaaa"
	runner.stdout["rev-parse origin/main"] = "aaaa"
	client := NewExecClientWithRunner("/repo", runner)

	diverged, err := client.HasRemoteDivergence(context.Background(), "origin/main")
	assert.NoError(t, err)
	assert.False(t, diverged)
}

func TestHasRemoteDivergenceFetchFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["fetch origin"] = newGitError([]string{"fetch", "origin"}, "could not resolve host", errors.New("exit status 128"))
	client := NewExecClientWithRunner("/repo", runner)

	_, err := client.HasRemoteDivergence(context.Background(), "origin/main")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
}

func TestMutatingOperationsArgv(t *testing.T) {
	runner := newFakeRunner()
	client := NewExecClientWithRunner("/repo", runner)
	ctx := context.Background()

	assert.NoError(t, client.Stash(ctx))
	assert.NoError(t, client.StashPop(ctx))
	assert.NoError(t, client.PullRebase(ctx, "origin/main"))
	assert.NoError(t, client.StageTracked(ctx))
	assert.NoError(t, client.Commit(ctx, "autosync: test"))
	assert.NoError(t, client.Push(ctx, "origin/main"))

	assert.Equal(t, []string{
		"stash push",
		"stash pop",
		"pull --rebase origin main",
		"add -u",
		"commit -m autosync: test",
		"push origin HEAD:main",
	}, runner.argv())
}

func TestSplitUpstream(t *testing.T) {
	cases := []struct {
		upstream string
		remote   string
		branch   string
		wantErr  bool
	}{
		{"origin/main", "origin", "main", false},
		{"origin/feature/login", "origin", "feature/login", false},
		{"upstream/release-1.2", "upstream", "release-1.2", false},
		{"main", "", "", true},
		{"/main", "", "", true},
		{"origin/", "", "", true},
		{"", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.upstream, func(t *testing.T) {
			remote, branch, err := SplitUpstream(tc.upstream)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.remote, remote)
			assert.Equal(t, tc.branch, branch)
		})
	}
}

func TestPullRebaseMalformedUpstream(t *testing.T) {
	runner := newFakeRunner()
	client := NewExecClientWithRunner("/repo", runner)

	err := client.PullRebase(context.Background(), "nonsense")
	assert.Error(t, err)
	assert.Empty(t, runner.calls, "no git invocation on a malformed upstream")
}

func TestSetEnvPassedToRunner(t *testing.T) {
	runner := newFakeRunner()
	client := NewExecClientWithRunner("/repo", runner)
	client.SetEnv([]string{"GIT_SSH_COMMAND=ssh -i /keys/deploy"})

	_, err := client.HasLocalChanges(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"GIT_SSH_COMMAND=ssh -i /keys/deploy"}, runner.lastEnv)
}

func TestGitErrorMessage(t *testing.T) {
	err := newGitError([]string{"push", "origin", "HEAD:main"}, "rejected: fetch first", errors.New("exit status 1"))
	assert.Contains(t, err.Error(), "git push failed")
	assert.Contains(t, err.Error(), "rejected: fetch first")
	assert.Equal(t, "push", err.Op)
	assert.Equal(t, []string{"origin", "HEAD:main"}, err.Args)
	assert.True(t, errors.Is(err, ErrCommandFailed))
}
