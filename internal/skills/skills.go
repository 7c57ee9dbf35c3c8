// Package skills loads SKILL.md definitions from layered search paths:
// workspace skills shadow user-global skills, which shadow built-ins.
package skills

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Requires lists external prerequisites a skill depends on.
type Requires struct {
	Bins []string `yaml:"bins"`
	Env  []string `yaml:"env"`
}

// Skill is one loaded skill definition.
type Skill struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Version      string   `yaml:"version"`
	Requires     Requires `yaml:"requires"`
	Always       bool     `yaml:"always"`
	Instructions string   `yaml:"-"`
	Location     string   `yaml:"-"`
}

// Load walks the search paths in priority order and returns the catalog.
// The first source defining a name wins; later duplicates are ignored.
func Load(searchPaths ...string) []Skill {
	byName := make(map[string]Skill)
	var order []string

	for _, root := range searchPaths {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(root, e.Name(), "SKILL.md")
			skill, err := ParseFile(path)
			if err != nil {
				if !os.IsNotExist(err) {
					slog.Warn("skipping invalid skill", "path", path, "error", err)
				}
				continue
			}
			if _, exists := byName[skill.Name]; exists {
				continue
			}
			byName[skill.Name] = skill
			order = append(order, skill.Name)
		}
	}

	sort.Strings(order)
	out := make([]Skill, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// ParseFile reads and parses one SKILL.md.
func ParseFile(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}
	skill, err := Parse(string(data))
	if err != nil {
		return Skill{}, err
	}
	skill.Location = path
	return skill, nil
}

// Parse splits YAML front matter from the markdown body. The front matter
// must open the file with a "---" line and close with another.
func Parse(content string) (Skill, error) {
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return Skill{}, fmt.Errorf("missing front matter")
	}
	front, body, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		// Front matter may close at end of file.
		front, body, ok = strings.Cut(rest, "\n---")
		if !ok {
			return Skill{}, fmt.Errorf("unterminated front matter")
		}
	}

	var skill Skill
	if err := yaml.Unmarshal([]byte(front), &skill); err != nil {
		return Skill{}, fmt.Errorf("parse front matter: %w", err)
	}
	if skill.Name == "" {
		return Skill{}, fmt.Errorf("skill has no name")
	}
	skill.Instructions = strings.TrimSpace(body)
	return skill, nil
}

var execLookPath = exec.LookPath

// Available reports whether the skill's binary and env prerequisites are
// satisfied on this host.
func (s Skill) Available() bool {
	for _, bin := range s.Requires.Bins {
		if _, err := execLookPath(bin); err != nil {
			return false
		}
	}
	for _, env := range s.Requires.Env {
		if os.Getenv(env) == "" {
			return false
		}
	}
	return true
}

// Filter applies per-user allow/deny lists to the catalog.
func Filter(catalog []Skill, allow, deny []string) []Skill {
	var out []Skill
	for _, s := range catalog {
		if len(allow) > 0 && !contains(allow, s.Name) {
			continue
		}
		if contains(deny, s.Name) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
