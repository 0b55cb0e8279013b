// plugins/google_secret_manager/main.go
// Secrets provider backed by Google Secret Manager. Each configured entry
// maps an environment key (e.g. GIT_ASKPASS token var) to a secret name;
// the syncer injects the resolved values into git subprocess env.

package main

import (
	"context"
	"fmt"
	"log/slog"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"github.com/mywio/git-autosync/pkg/core"
)

type SecretManagerPlugin struct {
	client    *secretmanager.Client
	logger    *slog.Logger
	projectID string
	secrets   map[string]string // env key -> secret name
}

type secretManagerConfig struct {
	ProjectID string            `yaml:"project_id"`
	Secrets   map[string]string `yaml:"secrets"`
}

var Plugin core.Plugin = &SecretManagerPlugin{}

func (p *SecretManagerPlugin) Name() string {
	return "google_secret_manager"
}

func (p *SecretManagerPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger

	var scfg secretManagerConfig
	if registry != nil {
		cfg := registry.GetConfig()
		if section, ok := cfg["google_secret_manager"]; ok {
			if err := core.DecodeConfigSection(section, &scfg); err != nil {
				p.logger.WarnContext(ctx, "Invalid google_secret_manager config", "error", err)
			}
		}
	}
	p.projectID = scfg.ProjectID
	p.secrets = scfg.Secrets

	if p.projectID == "" || len(p.secrets) == 0 {
		p.logger.WarnContext(ctx, "Project ID or secrets mapping not set, Secret Manager disabled")
		return nil
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return err
	}
	p.client = client
	p.logger.InfoContext(ctx, "Secret Manager Plugin Initialized", "project", p.projectID, "secrets", len(p.secrets))
	return nil
}

func (p *SecretManagerPlugin) Start(ctx context.Context) error {
	return nil
}

func (p *SecretManagerPlugin) Stop(ctx context.Context) error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *SecretManagerPlugin) Description() string {
	return "Resolves git credentials from Google Secret Manager"
}

func (p *SecretManagerPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilitySecrets}
}

func (p *SecretManagerPlugin) Status() core.ServiceStatus {
	if p.client == nil {
		return core.StatusDegraded
	}
	return core.StatusHealthy
}

func (p *SecretManagerPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "get_secrets" {
		return nil, fmt.Errorf("unknown action: %s", action)
	}
	if p.client == nil {
		return map[string]string{}, nil
	}

	secrets := make(map[string]string, len(p.secrets))
	for envKey, secretName := range p.secrets {
		value, err := p.access(ctx, secretName)
		if err != nil {
			return nil, fmt.Errorf("access secret %s: %w", secretName, err)
		}
		secrets[envKey] = value
	}
	return secrets, nil
}

func (p *SecretManagerPlugin) access(ctx context.Context, name string) (string, error) {
	resp, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", p.projectID, name),
	})
	if err != nil {
		return "", err
	}
	return string(resp.GetPayload().GetData()), nil
}

// Required for buildmode=plugin; unused when loaded via plugin.Open.
func main() {}
