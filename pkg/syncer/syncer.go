package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mywio/git-autosync/pkg/config"
	"github.com/mywio/git-autosync/pkg/core"
	"github.com/mywio/git-autosync/pkg/gitrepo"
	"github.com/mywio/git-autosync/pkg/utils"
)

// Syncer reconciles a local working copy with its upstream: pull first
// (rebase, shelving dirty edits around it), then push local changes.
// Cycles are strictly serialized; a tick that lands while a cycle is
// running is skipped, never queued.
type Syncer struct {
	cfg       config.Config
	git       gitrepo.Client
	logger    *slog.Logger
	registry  core.PluginRegistry
	stopCh    chan struct{}
	wg        sync.WaitGroup
	ticker    *time.Ticker
	started   bool
	checkRepo bool
	busy      atomic.Bool

	mu        sync.Mutex
	lastCycle time.Time
	lastErr   error
}

// gitEnvSetter is satisfied by clients that accept per-cycle subprocess env
// (credentials from secrets-capable plugins).
type gitEnvSetter interface {
	SetEnv(env []string)
}

func NewSyncer(cfg config.Config) *Syncer {
	return &Syncer{
		cfg:       cfg,
		git:       gitrepo.NewExecClient(cfg.RepoPath),
		stopCh:    make(chan struct{}),
		checkRepo: true,
	}
}

// NewSyncerWithClient wires a custom git client (used by tests).
func NewSyncerWithClient(cfg config.Config, client gitrepo.Client) *Syncer {
	return &Syncer{
		cfg:    cfg,
		git:    client,
		stopCh: make(chan struct{}),
	}
}

func (s *Syncer) Name() string {
	return "syncer"
}

func (s *Syncer) Description() string {
	return "Keeps the local working copy reconciled with its upstream (pull-rebase, then push)"
}

func (s *Syncer) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	s.logger = logger
	s.registry = registry

	if s.cfg.RepoPath == "" {
		return fmt.Errorf("missing repo path")
	}
	if s.checkRepo && !gitrepo.IsRepository(s.cfg.RepoPath) {
		return fmt.Errorf("%s is not a git repository", s.cfg.RepoPath)
	}
	if ec, ok := s.git.(*gitrepo.ExecClient); ok && s.cfg.GitTimeout > 0 {
		ec.SetTimeout(s.cfg.GitTimeout)
	}

	if registry != nil {
		s.registerEventTypes(registry)
	}
	return nil
}

func (s *Syncer) registerEventTypes(registry core.PluginRegistry) {
	for _, desc := range []core.EventTypeDesc{
		{Name: "sync_cycle_start", Description: "A sync cycle began"},
		{Name: "sync_cycle_skipped", Description: "Tick skipped because a cycle was still running"},
		{Name: "sync_skipped_no_upstream", Description: "Cycle skipped, current branch has no upstream"},
		{Name: "sync_pull_start", Description: "Upstream diverged, pulling"},
		{Name: "sync_pull_success", Description: "Local branch rebased onto upstream"},
		{Name: "sync_pull_failed", Description: "Pull phase failed"},
		{Name: "sync_stash_saved", Description: "Local edits shelved before rebase"},
		{Name: "sync_stash_restored", Description: "Shelved edits restored after rebase"},
		{Name: "sync_push_start", Description: "Publishing local changes"},
		{Name: "sync_push_success", Description: "Local changes pushed to upstream"},
		{Name: "sync_push_failed", Description: "Push phase failed"},
		{Name: "sync_noop", Description: "Nothing to reconcile this cycle"},
		{
			Name:        "notify_sync_conflict",
			Description: "Manual resolution required",
			PayloadSpec: map[string]core.PayloadField{
				"reason": {Type: "string", Description: "rebase, stash_pop or push_rejected", Required: true},
			},
		},
	} {
		if err := registry.RegisterEventType(desc); err != nil {
			s.logger.Debug("Event type already registered", "type", desc.Name)
		}
	}
}

func (s *Syncer) Start(ctx context.Context) error {
	if s.started {
		return nil
	}
	s.started = true

	s.logger.Info("Starting syncer", "repo", s.cfg.RepoPath, "interval", s.cfg.Interval, "dry_run", s.cfg.DryRun)
	s.ticker = time.NewTicker(s.cfg.Interval)

	go func() {
		// Run once immediately
		s.runScheduled(ctx)

		for {
			select {
			case <-s.ticker.C:
				s.runScheduled(ctx)
			case <-core.TriggerSync:
				s.logger.Info("Manual sync trigger received")
				s.runScheduled(ctx)
			case <-s.stopCh:
				s.ticker.Stop()
				return
			case <-ctx.Done():
				s.ticker.Stop()
				return
			}
		}
	}()

	return nil
}

func (s *Syncer) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}
	close(s.stopCh)
	s.logger.Info("Waiting for sync cycle to finish...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Syncer stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Context cancelled while waiting for syncer to stop")
		return ctx.Err()
	}

	return nil
}

func (s *Syncer) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilitySync}
}

func (s *Syncer) Status() core.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCycle.IsZero() {
		return core.StatusUnknown
	}
	if s.lastErr != nil {
		return core.StatusDegraded
	}
	return core.StatusHealthy
}

func (s *Syncer) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "sync_now" {
		return nil, fmt.Errorf("unsupported action %q", action)
	}
	select {
	case core.TriggerSync <- struct{}{}:
		return map[string]string{"status": "triggered"}, nil
	default:
		return map[string]string{"status": "already pending"}, nil
	}
}

type syncerConfigView struct {
	RepoPath       string `json:"repo_path"`
	Interval       string `json:"interval"`
	HooksDir       string `json:"hooks_dir,omitempty"`
	DryRun         bool   `json:"dry_run"`
	CustomMessage  bool   `json:"custom_commit_message"`
	LastCycle      string `json:"last_cycle,omitempty"`
	LastCycleError string `json:"last_cycle_error,omitempty"`
}

func (s *Syncer) Config() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := syncerConfigView{
		RepoPath:      s.cfg.RepoPath,
		Interval:      s.cfg.Interval.String(),
		HooksDir:      s.cfg.HooksDir,
		DryRun:        s.cfg.DryRun,
		CustomMessage: s.cfg.CommitMessage != "",
	}
	if !s.lastCycle.IsZero() {
		view.LastCycle = s.lastCycle.Format(time.RFC3339)
	}
	if s.lastErr != nil {
		view.LastCycleError = s.lastErr.Error()
	}
	return view
}

func (s *Syncer) runScheduled(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()
	s.runCycle(ctx)
}

// runCycle executes one serialized reconciliation attempt. No failure
// inside it escapes to the scheduling loop, and the busy flag is released
// on every exit path.
func (s *Syncer) runCycle(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Info("Sync cycle skipped, previous cycle still running")
		s.publish(ctx, "sync_cycle_skipped", "cycle skipped, already running", nil)
		return
	}
	defer s.busy.Store(false)

	s.logger.Info("Sync cycle starting")
	s.publish(ctx, "sync_cycle_start", "", nil)

	upstream, err := s.git.UpstreamRef(ctx)
	if err != nil {
		s.logger.Error("Failed to resolve upstream", "error", err)
		s.record(err)
		return
	}
	if upstream == "" {
		s.logger.Warn("No upstream configured for current branch, skipping cycle")
		s.publish(ctx, "sync_skipped_no_upstream", "no upstream configured", nil)
		s.record(nil)
		return
	}

	s.refreshGitEnv(ctx)

	if err := s.runHooks("pre", upstream, ""); err != nil {
		s.logger.Error("Pre-sync hook failed, aborting cycle", "error", err)
		s.record(err)
		return
	}

	diverged, err := s.git.HasRemoteDivergence(ctx, upstream)
	if err != nil {
		s.logger.Error("Failed to check upstream divergence", "upstream", upstream, "error", err)
		s.publish(ctx, "sync_pull_failed", err.Error(), map[string]interface{}{"upstream": upstream})
		s.record(err)
		return
	}
	if diverged {
		if err := s.syncFromUpstream(ctx, upstream); err != nil {
			// Repository left for manual inspection; push phase not entered.
			return
		}
	}

	dirty, err := s.git.HasLocalChanges(ctx)
	if err != nil {
		s.logger.Error("Failed to check local changes", "error", err)
		s.record(err)
		return
	}
	if !dirty {
		s.logger.Info("No local changes to publish")
		s.publish(ctx, "sync_noop", "nothing to sync", nil)
		s.record(nil)
		return
	}

	if s.syncToUpstream(ctx, upstream) {
		if err := s.runHooks("post", upstream, "pushed"); err != nil {
			s.logger.Error("Post-sync hook failed", "error", err)
		}
	}
}

// syncFromUpstream brings the local branch up to date with upstream without
// permanently losing uncommitted edits. A failed rebase leaves the stash and
// rebase state untouched for manual resolution.
func (s *Syncer) syncFromUpstream(ctx context.Context, upstream string) error {
	s.logger.Info("Upstream diverged, pulling", "upstream", upstream)
	s.publish(ctx, "sync_pull_start", "", map[string]interface{}{"upstream": upstream})

	dirty, err := s.git.HasLocalChanges(ctx)
	if err != nil {
		s.logger.Error("Failed to check local changes before pull", "error", err)
		s.publish(ctx, "sync_pull_failed", err.Error(), nil)
		s.record(err)
		return err
	}

	if s.cfg.DryRun {
		s.logger.Info("DryRun: would rebase onto upstream", "upstream", upstream, "stash_needed", dirty)
		return nil
	}

	stashed := false
	if dirty {
		if err := s.git.Stash(ctx); err != nil {
			s.logger.Error("Failed to stash local edits", "error", err)
			s.publish(ctx, "sync_pull_failed", err.Error(), nil)
			s.record(err)
			return err
		}
		stashed = true
		s.logger.Info("Local edits stashed before rebase")
		s.publish(ctx, "sync_stash_saved", "", nil)
	}

	if err := s.git.PullRebase(ctx, upstream); err != nil {
		// Popping the stash on top of a failed rebase compounds the conflict.
		s.logger.Error("Rebase failed, manual resolution required",
			"upstream", upstream, "stash_kept", stashed, "error", err)
		s.publish(ctx, "sync_pull_failed", err.Error(), map[string]interface{}{"upstream": upstream})
		s.publishConflict(ctx, "rebase", err)
		s.record(err)
		return err
	}
	s.logger.Info("Rebased onto upstream", "upstream", upstream)
	s.publish(ctx, "sync_pull_success", "", map[string]interface{}{"upstream": upstream})

	if stashed {
		if err := s.git.StashPop(ctx); err != nil {
			// Distinct from a pull failure: the pull landed, restoring edits did not.
			s.logger.Error("Pull succeeded but restoring stashed edits conflicted, manual resolution required", "error", err)
			s.publishConflict(ctx, "stash_pop", err)
			s.record(err)
			return err
		}
		s.logger.Info("Stashed edits restored")
		s.publish(ctx, "sync_stash_restored", "", nil)
	}

	return nil
}

// syncToUpstream durably records local edits upstream. Returns true when a
// push happened. Untracked files are never staged; if nothing ends up
// staged there is no commit.
func (s *Syncer) syncToUpstream(ctx context.Context, upstream string) bool {
	if s.cfg.DryRun {
		s.logger.Info("DryRun: would stage, commit and push local changes")
		s.record(nil)
		return false
	}

	if err := s.git.StageTracked(ctx); err != nil {
		s.logger.Error("Failed to stage tracked modifications", "error", err)
		s.publish(ctx, "sync_push_failed", err.Error(), nil)
		s.record(err)
		return false
	}

	staged, err := s.git.HasStagedChanges(ctx)
	if err != nil {
		s.logger.Error("Failed to check staged changes", "error", err)
		s.record(err)
		return false
	}
	if !staged {
		s.logger.Info("Nothing staged after adding tracked modifications, skipping commit")
		s.publish(ctx, "sync_noop", "untracked-only changes, nothing staged", nil)
		s.record(nil)
		return false
	}

	msg := s.cfg.CommitMessage
	if msg == "" {
		msg = fmt.Sprintf("autosync: %s", time.Now().UTC().Format(time.RFC3339))
	}
	if err := s.git.Commit(ctx, msg); err != nil {
		s.logger.Error("Failed to commit staged changes", "error", err)
		s.publish(ctx, "sync_push_failed", err.Error(), nil)
		s.record(err)
		return false
	}

	s.publish(ctx, "sync_push_start", "", map[string]interface{}{"upstream": upstream})
	if err := s.git.Push(ctx, upstream); err != nil {
		// No in-cycle retry; the next cycle's pull phase picks up the divergence.
		s.logger.Error("Push rejected", "upstream", upstream, "error", err)
		s.publish(ctx, "sync_push_failed", err.Error(), map[string]interface{}{"upstream": upstream})
		s.publishConflict(ctx, "push_rejected", err)
		s.record(err)
		return false
	}
	s.logger.Info("Local changes pushed", "upstream", upstream)
	s.publish(ctx, "sync_push_success", "", map[string]interface{}{"upstream": upstream})
	s.record(nil)
	return true
}

// refreshGitEnv collects env pairs from secrets-capable plugins and hands
// them to the git client for this cycle (credential helpers, SSH config).
func (s *Syncer) refreshGitEnv(ctx context.Context) {
	es, ok := s.git.(gitEnvSetter)
	if !ok || s.registry == nil {
		return
	}

	merged := map[string]string{}
	for _, p := range s.registry.GetPluginsWithCapability(core.CapabilitySecrets) {
		res, err := p.Execute(ctx, "get_secrets", map[string]interface{}{
			"repo_path": s.cfg.RepoPath,
		})
		if err != nil {
			s.logger.Error("Failed to fetch secrets from plugin", "plugin", p.Name(), "error", err)
			continue
		}
		if secrets, ok := res.(map[string]string); ok {
			for k, v := range secrets {
				merged[k] = v
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, merged[k]))
	}
	es.SetEnv(env)
}

func (s *Syncer) runHooks(stage, upstream, outcome string) error {
	if s.cfg.HooksDir == "" {
		return nil
	}
	env := []string{
		"SYNC_REPO_PATH=" + s.cfg.RepoPath,
		"SYNC_UPSTREAM=" + upstream,
		"SYNC_STAGE=" + stage,
	}
	if _, branch, err := gitrepo.SplitUpstream(upstream); err == nil {
		env = append(env, "SYNC_BRANCH="+branch)
	}
	if outcome != "" {
		env = append(env, "SYNC_OUTCOME="+outcome)
	}
	return utils.ExecuteHooks(filepath.Join(s.cfg.HooksDir, stage), env, s.logger)
}

func (s *Syncer) publish(ctx context.Context, eventType core.EventTypeName, message string, details map[string]interface{}) {
	core.Publish(ctx, core.InternalEvent{
		Type:    eventType,
		Source:  "syncer",
		Repo:    s.cfg.RepoPath,
		String:  message,
		Details: details,
	})
}

func (s *Syncer) publishConflict(ctx context.Context, reason string, err error) {
	core.Publish(ctx, core.InternalEvent{
		Type:   "notify_sync_conflict",
		Source: "syncer",
		Repo:   s.cfg.RepoPath,
		String: "manual resolution required",
		Details: map[string]interface{}{
			"reason": reason,
			"error":  err.Error(),
		},
	})
}

func (s *Syncer) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle = time.Now()
	s.lastErr = err
}
