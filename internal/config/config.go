package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config is the merged runtime configuration. It is loaded once at startup
// and passed by value to components.
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Agent     AgentConfig     `json:"agent"`
	Workspace WorkspaceConfig `json:"workspace"`
	Tools     ToolsConfig     `json:"tools"`
	Database  DatabaseConfig  `json:"database"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Streaming StreamingConfig `json:"streaming"`
	Gates     GatesConfig     `json:"gates"`
	Memory    MemoryConfig    `json:"memory"`
	Users     []UserConfig    `json:"users,omitempty"`
	Family    FamilyConfig    `json:"family"`
	Telegram  TelegramConfig  `json:"telegram"`
}

// ProviderEntry configures one registry entry for multi-provider routing.
type ProviderEntry struct {
	Name     string   `json:"name"`
	Provider string   `json:"provider"` // "openai", "anthropic", "openrouter", ...
	APIKey   string   `json:"apiKey,omitempty"`
	APIBase  string   `json:"apiBase,omitempty"`
	Model    string   `json:"model,omitempty"`
	Purposes []string `json:"purposes,omitempty"` // e.g. "summarize", "flush"
	Priority int      `json:"priority"`
}

type LLMConfig struct {
	Provider    string          `json:"provider"`
	APIKey      string          `json:"apiKey,omitempty"`
	APIBase     string          `json:"apiBase,omitempty"`
	Model       string          `json:"model"`
	MaxTokens   int             `json:"maxTokens"`
	Temperature float64         `json:"temperature"`
	Providers   []ProviderEntry `json:"providers,omitempty"`
}

type AgentConfig struct {
	MaxIterations          int    `json:"maxIterations"`
	SummarizationThreshold int    `json:"summarizationThreshold"`
	TokenBudget            int    `json:"tokenBudget"`
	ContextWindow          int    `json:"contextWindow"`
	ToolRetries            int    `json:"toolRetries"`
	OnLLMError             string `json:"onLLMError"` // "stop" or "retry"
	MaxSubagentIterations  int    `json:"maxSubagentIterations"`
	MaxSkillsInPrompt      int    `json:"maxSkillsInPrompt"`
	MaxSkillsPromptChars   int    `json:"maxSkillsPromptChars"`
}

type WorkspaceConfig struct {
	Dir         string `json:"dir"`
	MemoryDir   string `json:"memoryDir"`
	SessionsDir string `json:"sessionsDir"`
	SkillsDir   string `json:"skillsDir"`
}

type ToolsConfig struct {
	ExecTimeoutMs    int      `json:"execTimeout"`
	ExecDenyPatterns []string `json:"execDenyPatterns"`
	MaxFileSize      int64    `json:"maxFileSize"`
}

type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type HeartbeatConfig struct {
	Enabled         bool `json:"enabled"`
	CheckIntervalMs int  `json:"checkIntervalMs"`
}

type StreamingConfig struct {
	Enabled            bool `json:"enabled"`
	TelegramThrottleMs int  `json:"telegramThrottleMs"`
}

type GatesConfig struct {
	Enabled      bool     `json:"enabled"`
	ExecPatterns []string `json:"execPatterns"`
}

type MemoryConfig struct {
	VectorSearch bool `json:"vectorSearch"`
}

type FamilyConfig struct {
	ID           string   `json:"id,omitempty"`
	GroupChatIDs []string `json:"groupChatIds,omitempty"`
}

type TelegramConfig struct {
	Token          string   `json:"token,omitempty"`
	AllowedChatIDs []string `json:"allowedChatIds,omitempty"`
}

// UserConfig declares a known user and their per-user policy.
type UserConfig struct {
	ID         string           `json:"id"`
	Name       string           `json:"name,omitempty"`
	Identities []IdentityConfig `json:"identities,omitempty"`
	Tools      PolicyConfig     `json:"tools,omitempty"`
	Skills     PolicyConfig     `json:"skills,omitempty"`
	Content    string           `json:"content,omitempty"` // free-form content policy text
}

type IdentityConfig struct {
	Channel  string `json:"channel"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

type PolicyConfig struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

// Baseline exec deny patterns, matched case-insensitively against exec
// commands before the gate check.
var defaultExecDenyPatterns = []string{
	`rm\s+-[rf]{1,2}\b`,
	`\bmkfs\b`,
	`\bdd\s+if=`,
	`>\s*/dev/sd[a-z]\b`,
	`\b(shutdown|reboot|poweroff)\b`,
	`:\(\)\s*\{.*\};\s*:`,
	`\bsudo\b`,
	`\bchmod\s+[0-7]{3,4}\s+/`,
	`\bcurl\b.*\|\s*(ba)?sh\b`,
	`\bwget\b.*\|\s*(ba)?sh\b`,
}

// Baseline destructive patterns for the confirmation gate.
var defaultGatePatterns = []string{
	`rm\s`,
	`\bgit\s+push\s+.*--force`,
	`\bdrop\s+table\b`,
	`\btruncate\b`,
	`\bkill\s`,
}

// Default returns a Config with documented defaults.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    "",
			Model:       "",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Agent: AgentConfig{
			MaxIterations:          20,
			SummarizationThreshold: 20,
			TokenBudget:            100000,
			ContextWindow:          128000,
			ToolRetries:            2,
			OnLLMError:             "retry",
			MaxSubagentIterations:  5,
			MaxSkillsInPrompt:      150,
			MaxSkillsPromptChars:   30000,
		},
		Workspace: WorkspaceConfig{
			Dir:         ".",
			MemoryDir:   "memory",
			SessionsDir: "sessions",
			SkillsDir:   "skills",
		},
		Tools: ToolsConfig{
			ExecTimeoutMs:    30000,
			ExecDenyPatterns: append([]string(nil), defaultExecDenyPatterns...),
			MaxFileSize:      1048576,
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    ".janus/janus.db",
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         false,
			CheckIntervalMs: 60000,
		},
		Streaming: StreamingConfig{
			Enabled:            true,
			TelegramThrottleMs: 500,
		},
		Gates: GatesConfig{
			Enabled:      true,
			ExecPatterns: append([]string(nil), defaultGatePatterns...),
		},
		Memory: MemoryConfig{VectorSearch: false},
	}
}

// HomeDir returns the janus home directory (~/.janus), honoring JANUS_HOME.
func HomeDir() string {
	if v := os.Getenv("JANUS_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".janus"
	}
	return filepath.Join(home, ".janus")
}

// ExpandHome resolves a leading "~/" against the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// WorkspacePath joins a relative path against the workspace dir.
func (c Config) WorkspacePath(parts ...string) string {
	elems := append([]string{ExpandHome(c.Workspace.Dir)}, parts...)
	return filepath.Join(elems...)
}

// MemoryPath returns the workspace memory directory.
func (c Config) MemoryPath() string { return c.WorkspacePath(c.Workspace.MemoryDir) }

// SessionsPath returns the workspace sessions directory.
func (c Config) SessionsPath() string { return c.WorkspacePath(c.Workspace.SessionsDir) }

// SkillsPath returns the workspace skills directory.
func (c Config) SkillsPath() string { return c.WorkspacePath(c.Workspace.SkillsDir) }

// DatabasePath resolves the embedded store path against the workspace.
func (c Config) DatabasePath() string {
	p := c.Database.Path
	if filepath.IsAbs(p) {
		return p
	}
	return c.WorkspacePath(p)
}

// FindUser returns the user config matching id, if declared.
func (c Config) FindUser(id string) (UserConfig, bool) {
	for _, u := range c.Users {
		if u.ID == id {
			return u, true
		}
	}
	return UserConfig{}, false
}
