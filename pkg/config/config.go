package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RepoPath      string
	Interval      time.Duration
	CommitMessage string // override; empty means a timestamped default is generated
	HooksDir      string
	GitTimeout    time.Duration // per git invocation; zero disables the deadline
	DryRun        bool
}

func LoadConfig() Config {
	interval, _ := time.ParseDuration(os.Getenv("SYNC_INTERVAL"))
	if interval == 0 {
		interval = 5 * time.Minute
	}

	gitTimeout, _ := time.ParseDuration(os.Getenv("GIT_TIMEOUT"))

	return Config{
		RepoPath:      os.Getenv("SYNC_REPO_PATH"),
		Interval:      interval,
		CommitMessage: os.Getenv("SYNC_COMMIT_MESSAGE"),
		HooksDir:      os.Getenv("SYNC_HOOKS_DIR"),
		GitTimeout:    gitTimeout,
		DryRun:        os.Getenv("DRY_RUN") == "true",
	}
}

// ConfigMap is a sectioned configuration map keyed by plugin name (or "core").
// Values are YAML-friendly scalars or nested maps/lists.
type ConfigMap map[string]map[string]any

// LoadConfigFile loads a YAML config file from disk.
// Returns an empty map if the file does not exist or is empty.
func LoadConfigFile(path string) (ConfigMap, error) {
	if path == "" {
		return ConfigMap{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ConfigMap{}, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return ConfigMap{}, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	return normalizeConfigMap(raw), nil
}

// LoadConfigMapFromEnv builds a sectioned config map from environment variables.
// This allows config-file values to override env values without losing defaults.
func LoadConfigMapFromEnv() ConfigMap {
	cfg := ConfigMap{
		"core": {
			"repo_path":      os.Getenv("SYNC_REPO_PATH"),
			"interval":       os.Getenv("SYNC_INTERVAL"),
			"commit_message": os.Getenv("SYNC_COMMIT_MESSAGE"),
			"hooks_dir":      os.Getenv("SYNC_HOOKS_DIR"),
			"git_timeout":    os.Getenv("GIT_TIMEOUT"),
			"dry_run":        os.Getenv("DRY_RUN"),
			"plugins_dir":    os.Getenv("PLUGINS_DIR"),
			"http_addr":      os.Getenv("HTTP_ADDR"),
		},
		"pushover": {
			"token": os.Getenv("NOTIFY_PUSHOVER_TOKEN"),
			"user":  os.Getenv("NOTIFY_PUSHOVER_USER"),
		},
		"webhook": {
			"url": os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
		"webhook_trigger": {
			"port":  os.Getenv("WEBHOOK_PORT"),
			"token": os.Getenv("WEBHOOK_TOKEN"),
		},
		"github_issues": {
			"token": os.Getenv("GITHUB_TOKEN"),
			"repo":  os.Getenv("GITHUB_ISSUES_REPO"),
		},
		"google_secret_manager": {
			"project_id": os.Getenv("GOOGLE_CLOUD_PROJECT"),
		},
	}
	if v := os.Getenv("NOTIFY_PUSHOVER_EVENTS"); v != "" {
		cfg["pushover"]["subscribe"] = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_EVENTS"); v != "" {
		cfg["webhook"]["subscribe"] = v
	}
	return cfg
}

// LoadConfigFromMap builds a core Config from a map.
// Supported keys (yaml): repo_path, interval, commit_message, hooks_dir, git_timeout, dry_run.
func LoadConfigFromMap(m map[string]any) Config {
	cfg := Config{}

	if v, ok := getString(m, "repo_path", "repo"); ok {
		cfg.RepoPath = v
	}
	if v, ok := getDuration(m, "interval", "sync_interval"); ok {
		cfg.Interval = v
	}
	if v, ok := getString(m, "commit_message"); ok {
		cfg.CommitMessage = v
	}
	if v, ok := getString(m, "hooks_dir"); ok {
		cfg.HooksDir = v
	}
	if v, ok := getDuration(m, "git_timeout"); ok {
		cfg.GitTimeout = v
	}
	if v, ok := getBool(m, "dry_run"); ok {
		cfg.DryRun = v
	}

	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}

	return cfg
}

// MergeConfig uses primary values when set, otherwise falls back.
func MergeConfig(primary, fallback Config) Config {
	out := primary
	if out.RepoPath == "" {
		out.RepoPath = fallback.RepoPath
	}
	if out.Interval == 0 {
		out.Interval = fallback.Interval
	}
	if out.CommitMessage == "" {
		out.CommitMessage = fallback.CommitMessage
	}
	if out.HooksDir == "" {
		out.HooksDir = fallback.HooksDir
	}
	if out.GitTimeout == 0 {
		out.GitTimeout = fallback.GitTimeout
	}
	if !out.DryRun && fallback.DryRun {
		out.DryRun = true
	}
	return out
}

// MergeConfigMap merges primary over fallback (primary wins).
func MergeConfigMap(primary, fallback ConfigMap) ConfigMap {
	out := cloneConfigMap(fallback)
	for section, vals := range primary {
		if len(vals) == 0 {
			continue
		}
		merged := map[string]any{}
		if existing, ok := out[section]; ok {
			for k, v := range existing {
				merged[k] = v
			}
		}
		for k, v := range vals {
			merged[k] = v
		}
		out[section] = merged
	}
	return out
}

func cloneConfigMap(src ConfigMap) ConfigMap {
	dst := ConfigMap{}
	for section, vals := range src {
		sectionCopy := map[string]any{}
		for k, v := range vals {
			sectionCopy[k] = v
		}
		dst[section] = sectionCopy
	}
	return dst
}

func normalizeConfigMap(raw map[string]any) ConfigMap {
	out := ConfigMap{}
	for key, value := range raw {
		if m := normalizeStringMap(value); m != nil {
			out[key] = m
		}
	}
	return out
}

func normalizeStringMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		out := map[string]any{}
		for k, v := range t {
			out[k] = normalizeValue(v)
		}
		return out
	case map[any]any:
		out := map[string]any{}
		for k, v := range t {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = normalizeValue(v)
		}
		return out
	default:
		return nil
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any, map[any]any:
		return normalizeStringMap(t)
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, normalizeValue(item))
		}
		return out
	default:
		return v
	}
}

func getString(m map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case string:
				return t, true
			default:
				return strings.TrimSpace(fmt.Sprint(t)), true
			}
		}
	}
	return "", false
}

func getBool(m map[string]any, keys ...string) (bool, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case bool:
				return t, true
			case string:
				return strings.EqualFold(strings.TrimSpace(t), "true"), true
			case int:
				return t != 0, true
			case int64:
				return t != 0, true
			case float64:
				return t != 0, true
			}
		}
	}
	return false, false
}

func getDuration(m map[string]any, keys ...string) (time.Duration, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case time.Duration:
				return t, true
			case string:
				d, err := time.ParseDuration(strings.TrimSpace(t))
				if err == nil {
					return d, true
				}
			case int:
				return time.Duration(t) * time.Second, true
			case int64:
				return time.Duration(t) * time.Second, true
			case float64:
				return time.Duration(t) * time.Second, true
			}
		}
	}
	return 0, false
}
