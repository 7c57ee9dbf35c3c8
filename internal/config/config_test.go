package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, 20, cfg.Agent.MaxIterations)
	require.Equal(t, 100000, cfg.Agent.TokenBudget)
	require.Equal(t, "retry", cfg.Agent.OnLLMError)
	require.Equal(t, 4096, cfg.LLM.MaxTokens)
	require.True(t, cfg.Database.Enabled)
	require.True(t, cfg.Gates.Enabled)
	require.False(t, cfg.Memory.VectorSearch)
	require.NotEmpty(t, cfg.Tools.ExecDenyPatterns)
}

func TestLoadMergesWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JANUS_HOME", filepath.Join(dir, "nohome"))

	// JSON5: comments and trailing commas allowed.
	err := os.WriteFile(filepath.Join(dir, "janus.json"), []byte(`{
		// local overrides
		agent: { maxIterations: 7, },
		llm: { provider: "openai", model: "gpt-4o-mini" },
	}`), 0o644)
	require.NoError(t, err)

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Agent.MaxIterations)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	// Untouched defaults survive the merge.
	require.Equal(t, 2, cfg.Agent.ToolRetries)
	require.Equal(t, dir, cfg.Workspace.Dir)
}

func TestLoadEnvProviderPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JANUS_HOME", filepath.Join(dir, "nohome"))
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("OPENROUTER_API_KEY", "sk-or")

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	// openrouter outranks openai.
	require.Equal(t, "openrouter", cfg.LLM.Provider)
	require.Equal(t, "sk-or", cfg.LLM.APIKey)
}

func TestLoadExplicitOverrideWins(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JANUS_HOME", filepath.Join(dir, "nohome"))
	t.Setenv("JANUS_MODEL", "env-model")

	cfg, err := Load(dir, func(c *Config) { c.LLM.Model = "cli-model" })
	require.NoError(t, err)
	require.Equal(t, "cli-model", cfg.LLM.Model)
}

func TestFindUser(t *testing.T) {
	cfg := Default()
	cfg.Users = []UserConfig{{ID: "zuzia", Tools: PolicyConfig{Deny: []string{"exec"}}}}

	u, ok := cfg.FindUser("zuzia")
	require.True(t, ok)
	require.Equal(t, []string{"exec"}, u.Tools.Deny)

	_, ok = cfg.FindUser("nobody")
	require.False(t, ok)
}
