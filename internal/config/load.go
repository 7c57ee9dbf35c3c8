package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Environment variables checked for provider selection when llm.apiKey is
// absent, in order of precedence.
var providerEnvOrder = []struct {
	env      string
	provider string
}{
	{"OPENROUTER_API_KEY", "openrouter"},
	{"ANTHROPIC_API_KEY", "anthropic"},
	{"OPENAI_API_KEY", "openai"},
	{"DEEPSEEK_API_KEY", "deepseek"},
	{"GROQ_API_KEY", "groq"},
}

// Load builds the effective config: defaults ← ~/.janus/config.json ←
// ./janus.json ← environment ← overrides. Override is optional (may be nil).
func Load(workspaceDir string, override func(*Config)) (Config, error) {
	cfg := Default()

	userFile := filepath.Join(HomeDir(), "config.json")
	if err := mergeFile(&cfg, userFile); err != nil {
		return cfg, fmt.Errorf("load %s: %w", userFile, err)
	}

	if workspaceDir == "" {
		workspaceDir = "."
	}
	wsFile := filepath.Join(workspaceDir, "janus.json")
	if err := mergeFile(&cfg, wsFile); err != nil {
		return cfg, fmt.Errorf("load %s: %w", wsFile, err)
	}
	if cfg.Workspace.Dir == "." && workspaceDir != "." {
		cfg.Workspace.Dir = workspaceDir
	}

	applyEnv(&cfg)

	if override != nil {
		override(&cfg)
	}

	return cfg, nil
}

// mergeFile overlays a JSON5 document onto cfg. A missing file is not an
// error; a malformed one is.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	slog.Debug("config file merged", "path", path)
	return nil
}

func applyEnv(cfg *Config) {
	// Provider selection: first key found wins unless the file already set one.
	if cfg.LLM.APIKey == "" {
		for _, p := range providerEnvOrder {
			if v := os.Getenv(p.env); v != "" {
				cfg.LLM.APIKey = v
				if cfg.LLM.Provider == "" {
					cfg.LLM.Provider = p.provider
				}
				break
			}
		}
	}
	if v := os.Getenv("JANUS_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("JANUS_API_BASE"); v != "" {
		cfg.LLM.APIBase = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("JANUS_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
}
