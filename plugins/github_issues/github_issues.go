// plugins/github_issues/github_issues.go
// Plugin that files a GitHub issue whenever a sync cycle ends in a state
// needing manual resolution (rebase conflict, stash-pop conflict, rejected
// push). Issues are de-duplicated by title: a still-open issue gets a
// comment instead of a duplicate.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/mywio/git-autosync/pkg/core"
)

type GithubIssuesPlugin struct {
	logger  *slog.Logger
	client  *github.Client
	token   core.Secret
	owner   string
	repo    string
	labels  []string
	enabled bool
}

type githubIssuesConfig struct {
	Token  string   `yaml:"token"`
	Repo   string   `yaml:"repo"` // "owner/name"
	Labels []string `yaml:"labels"`
}

func (p *GithubIssuesPlugin) Name() string {
	return "github_issues"
}

func (p *GithubIssuesPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger

	var gcfg githubIssuesConfig
	if registry != nil {
		cfg := registry.GetConfig()
		if section, ok := cfg["github_issues"]; ok {
			if err := core.DecodeConfigSection(section, &gcfg); err != nil {
				p.logger.WarnContext(ctx, "Invalid github_issues config", "error", err)
			}
		}
	}
	p.token = core.NewSecret(gcfg.Token)
	p.labels = gcfg.Labels

	owner, repo, ok := strings.Cut(gcfg.Repo, "/")
	if gcfg.Token == "" || !ok || owner == "" || repo == "" {
		p.logger.WarnContext(ctx, "GitHub token or issues repo not set, conflict issues disabled")
		p.enabled = false
		return nil
	}
	p.owner = owner
	p.repo = repo

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: gcfg.Token})
	p.client = github.NewClient(oauth2.NewClient(ctx, ts))

	p.enabled = true
	p.logger.InfoContext(ctx, "GitHub Issues Plugin Initialized", "repo", gcfg.Repo)

	if registry != nil {
		registry.Subscribe("notify_sync_conflict", p.process)
	}
	return nil
}

func (p *GithubIssuesPlugin) Start(ctx context.Context) error {
	return nil
}

func (p *GithubIssuesPlugin) Stop(ctx context.Context) error {
	return nil
}

func (p *GithubIssuesPlugin) Description() string {
	return "Files a GitHub issue when a sync cycle needs manual resolution"
}

func (p *GithubIssuesPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityNotifier}
}

func (p *GithubIssuesPlugin) Status() core.ServiceStatus {
	if p.enabled {
		return core.StatusHealthy
	}
	return core.StatusDegraded
}

func (p *GithubIssuesPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if !p.enabled {
		return nil, nil
	}
	if action != "notify" {
		return nil, fmt.Errorf("unsupported action")
	}
	eventRaw, ok := params["event"]
	if !ok {
		return nil, fmt.Errorf("missing event")
	}
	event, ok := eventRaw.(core.InternalEvent)
	if !ok {
		return nil, fmt.Errorf("invalid event type")
	}
	if err := p.report(ctx, event); err != nil {
		return nil, err
	}
	return map[string]string{"status": "reported"}, nil
}

// Exported symbol that core looks up
var Plugin core.Plugin = &GithubIssuesPlugin{}

type githubIssuesConfigView struct {
	Token   core.Secret `json:"token"`
	Repo    string      `json:"repo"`
	Labels  []string    `json:"labels,omitempty"`
	Enabled bool        `json:"enabled"`
}

func (p *GithubIssuesPlugin) Config() any {
	return githubIssuesConfigView{
		Token:   p.token,
		Repo:    fmt.Sprintf("%s/%s", p.owner, p.repo),
		Labels:  append([]string(nil), p.labels...),
		Enabled: p.enabled,
	}
}

func (p *GithubIssuesPlugin) process(ctx context.Context, event core.InternalEvent) {
	if !p.enabled {
		return
	}
	if err := p.report(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "Failed to file conflict issue", "error", err)
	}
}

func (p *GithubIssuesPlugin) report(ctx context.Context, event core.InternalEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	title := issueTitle(event)
	body := issueBody(event)

	existing, err := p.findOpenIssue(ctx, title)
	if err != nil {
		return err
	}
	if existing != nil {
		_, _, err := p.client.Issues.CreateComment(ctx, p.owner, p.repo, existing.GetNumber(), &github.IssueComment{
			Body: github.String(body),
		})
		if err != nil {
			return fmt.Errorf("comment on issue #%d: %w", existing.GetNumber(), err)
		}
		p.logger.InfoContext(ctx, "Commented on existing conflict issue", "issue", existing.GetNumber())
		return nil
	}

	req := &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	}
	if len(p.labels) > 0 {
		req.Labels = &p.labels
	}
	issue, _, err := p.client.Issues.Create(ctx, p.owner, p.repo, req)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	p.logger.InfoContext(ctx, "Filed conflict issue", "issue", issue.GetNumber())
	return nil
}

func (p *GithubIssuesPlugin) findOpenIssue(ctx context.Context, title string) (*github.Issue, error) {
	query := fmt.Sprintf("repo:%s/%s is:issue is:open in:title %q", p.owner, p.repo, title)
	result, _, err := p.client.Search.Issues(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 10},
	})
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}
	for _, issue := range result.Issues {
		if issue.GetTitle() == title {
			return issue, nil
		}
	}
	return nil, nil
}

func issueTitle(event core.InternalEvent) string {
	reason := "unknown"
	if event.Details != nil {
		if r, ok := event.Details["reason"].(string); ok && r != "" {
			reason = r
		}
	}
	return fmt.Sprintf("autosync: manual resolution required (%s)", reason)
}

func issueBody(event core.InternalEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The sync daemon stopped a cycle and left the repository for manual inspection.\n\n")
	fmt.Fprintf(&b, "- Repository: `%s`\n", event.Repo)
	if event.Details != nil {
		if r, ok := event.Details["reason"].(string); ok {
			fmt.Fprintf(&b, "- Reason: %s\n", r)
		}
		if e, ok := event.Details["error"].(string); ok {
			fmt.Fprintf(&b, "- Error: `%s`\n", e)
		}
	}
	if !event.Timestamp.IsZero() {
		fmt.Fprintf(&b, "- Time: %s\n", event.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return b.String()
}

// Required for buildmode=plugin; unused when loaded via plugin.Open.
func main() {}
