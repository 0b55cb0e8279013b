// plugins/webhook_trigger/webhook_trigger.go
// Plugin for exposing an HTTP endpoint to request an immediate sync cycle
// (e.g., from a forge push webhook or CI job)

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/mywio/git-autosync/pkg/core"
)

type WebhookTriggerPlugin struct {
	token  string
	logger *slog.Logger
	mux    *http.ServeMux
}

type webhookTriggerConfig struct {
	Token string `yaml:"token"`
}

func (p *WebhookTriggerPlugin) Name() string {
	return "webhook_trigger"
}

func (p *WebhookTriggerPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger

	if registry != nil {
		cfg := registry.GetConfig()
		if section, ok := cfg["webhook_trigger"]; ok {
			var wcfg webhookTriggerConfig
			if err := core.DecodeConfigSection(section, &wcfg); err != nil {
				p.logger.Warn("Invalid webhook_trigger config", "error", err)
			}
			p.token = wcfg.Token
		}
	}

	if p.token == "" {
		p.logger.Warn("WEBHOOK_TOKEN not set, endpoint is unsecured (use with caution)")
	} else {
		p.logger.Info("Webhook Trigger Plugin Initialized", "secured", true)
	}

	if registry != nil {
		registry.RegisterEventType(core.EventTypeDesc{
			Name:        "sync_requested",
			Description: "An immediate sync cycle was requested over HTTP",
		})
		p.mux = registry.GetMuxServer()
	} else {
		p.mux = http.NewServeMux()
	}
	p.mux.HandleFunc("/sync", p.handleSync)

	return nil
}

func (p *WebhookTriggerPlugin) Start(_ context.Context) error {
	// The manager owns the HTTP server, nothing to start here
	return nil
}

func (p *WebhookTriggerPlugin) Stop(ctx context.Context) error {
	return nil
}

func (p *WebhookTriggerPlugin) Description() string {
	return "Webhook trigger for on-demand sync cycles"
}

func (p *WebhookTriggerPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityTrigger}
}

func (p *WebhookTriggerPlugin) Status() core.ServiceStatus {
	if p.token == "" {
		return core.StatusDegraded
	}
	return core.StatusHealthy
}

func (p *WebhookTriggerPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	return nil, fmt.Errorf("webhook_trigger plugin does not support Execute actions (use HTTP endpoint)")
}

// HTTP handler for /sync
func (p *WebhookTriggerPlugin) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Optional token auth
	if p.token != "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != p.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	p.logger.Info("Sync trigger received via webhook",
		"client_ip", r.RemoteAddr,
		"user_agent", r.UserAgent())

	core.Publish(r.Context(), core.InternalEvent{
		Type:   "sync_requested",
		Source: "webhook_trigger",
		Details: map[string]interface{}{
			"client_ip":  r.RemoteAddr,
			"user_agent": r.UserAgent(),
		},
	})

	// Trigger the cycle; a full channel means one is already pending
	select {
	case core.TriggerSync <- struct{}{}:
		p.logger.Info("Sync cycle triggered via webhook")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, `{"status": "accepted", "message": "Sync triggered"}`)
	default:
		p.logger.Debug("Sync already pending, webhook request accepted but coalesced")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, `{"status": "accepted", "message": "Sync already pending"}`)
	}
}

// Exported symbol that core looks up
var Plugin core.Plugin = &WebhookTriggerPlugin{}

// Main for standalone testing
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	p := &WebhookTriggerPlugin{}
	ctx := context.Background()

	if err := p.Init(ctx, logger, nil); err != nil {
		logger.Error("Init failed", "error", err)
		return
	}

	if err := p.Start(ctx); err != nil {
		logger.Error("Start failed", "error", err)
		return
	}

	logger.Info("Webhook trigger running (press Ctrl+C to stop)")
	<-ctx.Done()

	p.Stop(ctx)
}
