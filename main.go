package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mywio/git-autosync/pkg/config"
	"github.com/mywio/git-autosync/pkg/core"
	"github.com/mywio/git-autosync/pkg/syncer"
)

func main() {
	// Setup Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load Config
	cfgEnv := config.LoadConfig()
	cfgMapEnv := config.LoadConfigMapFromEnv()
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfgMapFile, err := config.LoadConfigFile(configPath)
	if err != nil {
		logger.Error("Failed to load config file", "path", configPath, "error", err)
	}
	cfgMap := config.MergeConfigMap(cfgMapFile, cfgMapEnv)

	cfg := cfgEnv
	if coreSection, ok := cfgMapFile["core"]; ok {
		cfgFile := config.LoadConfigFromMap(coreSection)
		cfg = config.MergeConfig(cfgFile, cfgEnv)
	}

	// Validation
	if cfg.RepoPath == "" {
		logger.Error("Missing repo path: set SYNC_REPO_PATH or core.repo_path")
		os.Exit(1)
	}

	// Setup Module Manager
	mgr := core.NewModuleManager(logger)
	mgr.SetConfig(cfgMap)
	mgr.SetHTTPClient(&http.Client{Timeout: 15 * time.Second})

	// Load Plugins
	pluginsDir := ""
	if coreSection, ok := cfgMap["core"]; ok {
		if v, ok := coreSection["plugins_dir"].(string); ok {
			pluginsDir = v
		}
	}
	if pluginsDir == "" {
		pluginsDir = "plugins"
	}
	if err := mgr.LoadPlugins(pluginsDir); err != nil {
		logger.Error("Failed to load plugins", "error", err)
	}

	// Register Modules
	// Core Syncer
	s := syncer.NewSyncer(cfg)
	mgr.Register(s)

	// Init Modules
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Init(ctx); err != nil {
		logger.Error("Failed to initialize modules", "error", err)
		os.Exit(1)
	}

	// Start Modules
	mgr.Start(ctx)

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down...", "signal", sig)

	// Graceful Shutdown
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	mgr.Stop(stopCtx)
	logger.Info("Shutdown complete")
}
