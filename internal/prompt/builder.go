// Package prompt assembles the system prompt from layered sections:
// identity, user, persona files, skills, memory, learner hints, and
// session state, joined by a fixed delimiter.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/januslabs/janus/internal/bus"
	"github.com/januslabs/janus/internal/config"
	"github.com/januslabs/janus/internal/learner"
	"github.com/januslabs/janus/internal/memory"
	"github.com/januslabs/janus/internal/skills"
	"github.com/januslabs/janus/internal/tools"
	"github.com/januslabs/janus/internal/users"
)

const sectionDelimiter = "\n\n---\n\n"

const skillsPreamble = `You have skills: named instruction sets for specific task types.
Load at most one skill at a time; read its instructions with read_file from
its location before using it. Skills marked always-on are inlined below.`

// Builder assembles system prompts. All dependencies are optional except
// the config; nil ones just skip their sections.
type Builder struct {
	cfg          config.Config
	registry     *tools.Registry
	catalog      []skills.Skill
	ix           *memory.Index
	memoryDir    string
	learn        *learner.Learner
	homeDir      string
	workspaceDir string
	now          func() time.Time
}

type Option func(*Builder)

func WithRegistry(r *tools.Registry) Option        { return func(b *Builder) { b.registry = r } }
func WithSkills(catalog []skills.Skill) Option     { return func(b *Builder) { b.catalog = catalog } }
func WithMemory(ix *memory.Index, dir string) Option {
	return func(b *Builder) { b.ix, b.memoryDir = ix, dir }
}
func WithLearner(l *learner.Learner) Option { return func(b *Builder) { b.learn = l } }
func WithNow(now func() time.Time) Option   { return func(b *Builder) { b.now = now } }

func NewBuilder(cfg config.Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:          cfg,
		homeDir:      config.HomeDir(),
		workspaceDir: cfg.Workspace.Dir,
		now:          time.Now,
	}
	if b.memoryDir == "" {
		b.memoryDir = cfg.MemoryPath()
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Input carries the per-message state the prompt depends on.
type Input struct {
	Channel        string
	ChatID         string
	UserMessage    string
	Mode           bus.ContextMode
	User           *users.Profile
	Scope          *memory.Scope
	SessionSummary string
}

// Build renders the full prompt. Minimal mode keeps only identity, user,
// skills, session, and summary.
func (b *Builder) Build(ctx context.Context, in Input) string {
	full := in.Mode != bus.ContextMinimal

	var sections []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}

	add(b.identitySection(in))
	add(b.userSection(in))
	if full {
		add(fileSection("ego", filepath.Join(b.homeDir, "EGO.md")))
		add(fileSection("agents", filepath.Join(b.workspaceDir, "AGENTS.md")))
		add(fileSection("heartbeat", filepath.Join(b.workspaceDir, "HEARTBEAT.md")))
		add(fileSection("project", filepath.Join(b.workspaceDir, "JANUS.md")))
	}
	add(b.skillsSection(in))
	if full {
		add(b.memorySection(ctx, in))
		add(b.learnerSection(ctx, in))
	}
	add(b.sessionSection(in))
	if in.SessionSummary != "" {
		add("# Previous conversation summary\n\n" + in.SessionSummary)
	}

	return strings.Join(sections, sectionDelimiter)
}

func (b *Builder) identitySection(in Input) string {
	var sb strings.Builder
	sb.WriteString("You are Janus, a personal autonomous agent.\n\n")
	fmt.Fprintf(&sb, "Current time: %s\n", b.now().Format("Mon, 02 Jan 2006 15:04 MST"))
	fmt.Fprintf(&sb, "Workspace: %s\n", b.workspaceDir)

	if b.registry != nil {
		var allow, deny []string
		if in.User != nil {
			allow, deny = in.User.Tools.Allow, in.User.Tools.Deny
		}
		defs := b.registry.Definitions(allow, deny)
		if len(defs) > 0 {
			sb.WriteString("\nAvailable tools:\n")
			for _, d := range defs {
				fmt.Fprintf(&sb, "- %s: %s\n", d.Name, d.Description)
			}
		}
	}
	return sb.String()
}

func (b *Builder) userSection(in Input) string {
	if in.User == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Current user\n\n%s (id: %s)\n", in.User.DisplayName, in.User.ID)
	if in.User.ProfileDoc != "" {
		sb.WriteString("\n" + strings.TrimSpace(in.User.ProfileDoc) + "\n")
	}
	return sb.String()
}

func fileSection(name, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return ""
	}
	return fmt.Sprintf("<%s>\n%s\n</%s>", name, content, name)
}

func (b *Builder) skillsSection(in Input) string {
	if len(b.catalog) == 0 {
		return ""
	}
	catalog := b.catalog
	if in.User != nil {
		catalog = skills.Filter(catalog, in.User.Skills.Allow, in.User.Skills.Deny)
	}
	if len(catalog) == 0 {
		return ""
	}

	maxEntries := b.cfg.Agent.MaxSkillsInPrompt
	maxChars := b.cfg.Agent.MaxSkillsPromptChars

	var sb strings.Builder
	sb.WriteString("# Skills\n\n")
	sb.WriteString(skillsPreamble)
	sb.WriteString("\n\n")

	included := 0
	for _, s := range catalog {
		if included >= maxEntries {
			sb.WriteString("<!-- more skills truncated -->\n")
			break
		}
		var entry string
		if s.Always {
			entry = fmt.Sprintf("<skill name=%q description=%q>\n%s\n</skill>\n",
				s.Name, s.Description, s.Instructions)
		} else {
			entry = fmt.Sprintf("<skill name=%q description=%q location=%q />\n",
				s.Name, s.Description, s.Location)
		}
		if sb.Len()+len(entry) > maxChars {
			sb.WriteString("<!-- more skills truncated -->\n")
			break
		}
		sb.WriteString(entry)
		included++
	}
	return sb.String()
}

const memoryTopK = 5

func (b *Builder) memorySection(ctx context.Context, in Input) string {
	var sb strings.Builder
	sb.WriteString("# Memory\n\n")

	wrote := false
	retrieved := false
	if b.ix != nil && in.UserMessage != "" {
		results := b.searchMemory(ctx, in)
		for _, r := range results {
			fmt.Fprintf(&sb, "<memory source=%q section=%q>\n%s\n</memory>\n",
				r.Source, r.Heading, r.Content)
			wrote = true
			retrieved = true
		}
	}

	today := memory.ReadDailyNote(b.memoryDir, b.now())
	if today != "" {
		sb.WriteString("\n<daily_note>\n" + strings.TrimSpace(today) + "\n</daily_note>\n")
		wrote = true
	}

	if !retrieved {
		// No index or nothing retrieved: dump the persistent memory file,
		// plus the last few daily notes when today's is not already in.
		if mem := memory.ReadMemoryFile(b.memoryDir); mem != "" {
			sb.WriteString("\n" + strings.TrimSpace(mem) + "\n")
			wrote = true
		}
		if today == "" {
			for _, note := range memory.RecentDailyNotes(b.memoryDir, 3) {
				sb.WriteString("\n" + strings.TrimSpace(note) + "\n")
				wrote = true
			}
		}
	}

	if !wrote {
		return ""
	}
	return sb.String()
}

func (b *Builder) searchMemory(ctx context.Context, in Input) []memory.Result {
	var results []memory.Result
	var err error
	if b.cfg.Memory.VectorSearch {
		results, err = b.ix.SearchHybrid(ctx, in.UserMessage, memoryTopK, in.Scope)
	} else {
		results, err = b.ix.SearchKeyword(ctx, in.UserMessage, memoryTopK, in.Scope)
	}
	if err != nil {
		slog.Warn("memory search failed while building prompt", "error", err)
		return nil
	}
	return results
}

func (b *Builder) learnerSection(ctx context.Context, in Input) string {
	if b.learn == nil || in.UserMessage == "" {
		return ""
	}
	rec, err := b.learn.Recommend(ctx, in.UserMessage)
	if err != nil || rec == nil || rec.SampleSize <= 3 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("# Past experience with similar tasks\n\n")
	fmt.Fprintf(&sb, "Across %d similar runs: avg duration %s, avg iterations %.1f, avg tool calls %.1f, success rate %.2f.\n",
		rec.SampleSize, rec.AvgDuration.Round(time.Millisecond), rec.AvgIterations, rec.AvgToolCalls, rec.SuccessRate)
	for _, w := range rec.Warnings {
		fmt.Fprintf(&sb, "Note: %s.\n", w)
	}
	return sb.String()
}

func (b *Builder) sessionSection(in Input) string {
	var sb strings.Builder
	sb.WriteString("# Session\n\n")
	fmt.Fprintf(&sb, "Channel: %s\nChat: %s\n", in.Channel, in.ChatID)
	if in.User != nil {
		fmt.Fprintf(&sb, "User: %s\n", in.User.ID)
	}
	if in.Scope != nil {
		fmt.Fprintf(&sb, "Scope: %s:%s\n", in.Scope.Kind, in.Scope.ID)
	}
	return sb.String()
}
