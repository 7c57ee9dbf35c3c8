package tools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/januslabs/janus/internal/providers"
)

// Registry maps tool names to tools and enforces policy before dispatch:
// unknown tool, user allow list, user deny list, confirmation gate, execute.
type Registry struct {
	tools map[string]Tool
	gate  *Gate
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Later registrations replace earlier ones.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// SetGate wires the confirmation gate. A nil gate disables gating.
func (r *Registry) SetGate(g *Gate) { r.gate = g }

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions builds the tool schema list for the LLM request, filtered by
// the user's allow/deny lists.
func (r *Registry) Definitions(allow, deny []string) []providers.ToolDefinition {
	var defs []providers.ToolDefinition
	for _, name := range r.Names() {
		if !permitted(name, allow, deny) {
			continue
		}
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func permitted(name string, allow, deny []string) bool {
	if len(allow) > 0 && !slices.Contains(allow, name) {
		return false
	}
	return !slices.Contains(deny, name)
}

// Execute runs the full enforcement pipeline and never panics; tool panics
// and internal errors are normalized to a leading "Error:" result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panicked", "tool", name, "panic", rec)
			result = ErrorResult(fmt.Sprintf("Error: tool %q panicked: %v", name, rec))
		}
	}()

	tool, ok := r.tools[name]
	if !ok {
		return ErrorResult(fmt.Sprintf("Error: Unknown tool %q. Available tools: %s",
			name, strings.Join(r.Names(), ", ")))
	}

	if !permitted(name, AllowListFromCtx(ctx), DenyListFromCtx(ctx)) {
		return ErrorResult(fmt.Sprintf("Error: Tool %q is not available for this user.", name))
	}

	if r.gate != nil {
		if matched, desc := r.gate.Matches(name, args); matched {
			if !r.gate.Confirm(ctx, desc) {
				return ErrorResult("Action denied by user: " + desc)
			}
		}
	}

	result = tool.Execute(ctx, args)
	if result == nil {
		return ErrorResult(fmt.Sprintf("Error: tool %q returned no result", name))
	}
	if result.IsError && !strings.HasPrefix(result.ForLLM, "Error:") {
		result.ForLLM = "Error: " + result.ForLLM
	}
	return result
}
