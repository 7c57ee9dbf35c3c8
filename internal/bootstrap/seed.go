// Package bootstrap seeds a new workspace with the markdown files the
// runtime reads: persona, project notes, heartbeat schedule, and memory.
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
)

// Seeded file names.
const (
	AgentsFile    = "AGENTS.md"
	ProjectFile   = "JANUS.md"
	HeartbeatFile = "HEARTBEAT.md"
	MemoryFile    = "memory/MEMORY.md"
	EgoFile       = "EGO.md" // lives in the home dir, not the workspace
)

var workspaceTemplates = map[string]string{
	AgentsFile: `# Agent rules

- Be concise. Prefer doing over explaining.
- Ask before destructive actions outside the workspace.
- Record durable facts with memory_append instead of repeating them.
`,
	ProjectFile: `# Project notes

Describe what this workspace is for. The agent reads this file into every
full-context prompt.
`,
	HeartbeatFile: `# Heartbeat

Tasks listed here run on a schedule when the heartbeat is enabled.

## Example check-in
- schedule: every 12h
- task: Review today's daily note and flag anything time-sensitive
`,
	MemoryFile: `# Memory

Long-lived facts go here. This file is always searchable and never decays.
`,
}

const egoTemplate = `# Ego

I am Janus, a personal agent. I am direct, careful with side effects, and
I keep notes about what matters to the people I work for.
`

// SeedWorkspace creates the workspace skeleton, writing only files that do
// not exist yet. It returns the relative paths it created.
func SeedWorkspace(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	for _, sub := range []string{"memory", "sessions", "skills", ".janus"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	var created []string
	for name, content := range workspaceTemplates {
		ok, err := seedFile(filepath.Join(dir, name), content)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, name)
		}
	}
	return created, nil
}

// SeedHome ensures the home directory exists with an EGO.md persona file.
func SeedHome(homeDir string) error {
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return fmt.Errorf("create home dir: %w", err)
	}
	_, err := seedFile(filepath.Join(homeDir, EgoFile), egoTemplate)
	return err
}

// seedFile writes content unless the file already exists.
func seedFile(path string, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("seed %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
