package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"sync"
)

// Module is the lifecycle contract for everything the manager runs,
// including the syncer core itself.
type Module interface {
	Name() string
	Init(ctx context.Context, logger *slog.Logger, registry PluginRegistry) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Plugin extends Module with introspection and a generic action surface.
type Plugin interface {
	Module
	Description() string
	Capabilities() []Capability
	Status() ServiceStatus
	Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error)
}

// ConfigProvider is optionally implemented by plugins that want their
// effective config shown in the API. Secret values must use the Secret type.
type ConfigProvider interface {
	Config() any
}

// PluginRegistry is what modules see of the manager during Init.
type PluginRegistry interface {
	GetConfig() map[string]map[string]any
	GetHTTPClient() *http.Client
	GetMuxServer() *http.ServeMux
	GetPluginsWithCapability(cap Capability) []Plugin
	Subscribe(pattern string, handler Listener)
	RegisterEventType(desc EventTypeDesc) error
}

type ModuleManager struct {
	mu         sync.RWMutex
	modules    []Module
	logger     *slog.Logger
	cfg        map[string]map[string]any
	httpClient *http.Client
	mux        *http.ServeMux
	server     *http.Server
	serverOnce sync.Once
}

func NewModuleManager(logger *slog.Logger) *ModuleManager {
	m := &ModuleManager{
		modules: []Module{},
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	m.registerCoreRoutes()
	return m
}

func (m *ModuleManager) Register(mod Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules = append(m.modules, mod)
}

func (m *ModuleManager) SetConfig(cfg map[string]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

func (m *ModuleManager) GetConfig() map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *ModuleManager) SetHTTPClient(client *http.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpClient = client
}

func (m *ModuleManager) GetHTTPClient() *http.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.httpClient == nil {
		return http.DefaultClient
	}
	return m.httpClient
}

func (m *ModuleManager) GetMuxServer() *http.ServeMux {
	return m.mux
}

// Subscribe delegates to the broker so plugins only need the registry.
func (m *ModuleManager) Subscribe(pattern string, handler Listener) {
	Subscribe(pattern, handler)
}

// RegisterEventType delegates to the broker.
func (m *ModuleManager) RegisterEventType(desc EventTypeDesc) error {
	return RegisterEventType(desc)
}

func (m *ModuleManager) ListPlugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Plugin, 0, len(m.modules))
	for _, mod := range m.modules {
		if plug, ok := mod.(Plugin); ok {
			out = append(out, plug)
		}
	}
	return out
}

func (m *ModuleManager) GetPlugin(name string) (Plugin, error) {
	for _, plug := range m.ListPlugins() {
		if plug.Name() == name {
			return plug, nil
		}
	}
	return nil, fmt.Errorf("plugin %q not registered", name)
}

func (m *ModuleManager) GetPluginsWithCapability(cap Capability) []Plugin {
	var out []Plugin
	for _, plug := range m.ListPlugins() {
		for _, c := range plug.Capabilities() {
			if c == cap {
				out = append(out, plug)
				break
			}
		}
	}
	return out
}

// LoadPlugins loads .so plugins from dir. Each must export a Plugin symbol.
func (m *ModuleManager) LoadPlugins(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Warn("Plugins directory not found", "dir", dir)
			return nil
		}
		return fmt.Errorf("failed to read plugins dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".so") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		m.logger.Info("Loading plugin", "path", path)

		p, err := plugin.Open(path)
		if err != nil {
			m.logger.Error("Failed to open plugin", "path", path, "error", err)
			continue
		}

		sym, err := p.Lookup("Plugin")
		if err != nil {
			m.logger.Error("Plugin symbol not found", "path", path, "error", err)
			continue
		}

		plug, ok := sym.(Plugin)
		if !ok {
			m.logger.Error("Plugin has wrong type", "path", path)
			continue
		}

		m.Register(plug)
		m.logger.Info("Plugin loaded successfully", "name", plug.Name())
	}
	return nil
}

func (m *ModuleManager) Init(ctx context.Context) error {
	for _, mod := range m.snapshot() {
		if err := mod.Init(ctx, m.logger.With("module", mod.Name()), m); err != nil {
			return err
		}
	}
	return nil
}

func (m *ModuleManager) Start(ctx context.Context) {
	m.startHTTPServer()
	for _, mod := range m.snapshot() {
		go func(mod Module) {
			m.logger.Info("Starting module", "module", mod.Name())
			if err := mod.Start(ctx); err != nil {
				m.logger.Error("Module failed", "module", mod.Name(), "error", err)
			}
		}(mod)
	}
}

func (m *ModuleManager) Stop(ctx context.Context) {
	mods := m.snapshot()
	for i := len(mods) - 1; i >= 0; i-- {
		mod := mods[i]
		m.logger.Info("Stopping module", "module", mod.Name())
		if err := mod.Stop(ctx); err != nil {
			m.logger.Error("Error stopping module", "module", mod.Name(), "error", err)
		}
	}
	m.stopHTTPServer(ctx)
}

func (m *ModuleManager) snapshot() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Module, len(m.modules))
	copy(out, m.modules)
	return out
}
