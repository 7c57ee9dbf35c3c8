package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/januslabs/janus/internal/memory"
)

// MemorySearchTool exposes hybrid memory retrieval to the model, scoped to
// the current user when the call carries one.
type MemorySearchTool struct {
	ix *memory.Index
}

func NewMemorySearchTool(ix *memory.Index) *MemorySearchTool {
	return &MemorySearchTool{ix: ix}
}

func (t *MemorySearchTool) Name() string { return "memory_search" }
func (t *MemorySearchTool) Description() string {
	return "Search long-term memory for facts, notes, and past decisions"
}

func (t *MemorySearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "What to look for"},
			"limit": map[string]any{"type": "number", "description": "Max results, default 5"},
		},
		"required": []string{"query"},
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]any) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	limit := 5
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}

	scope := ScopeFromCtx(ctx)
	if scope == nil {
		if userID := UserIDFromCtx(ctx); userID != "" {
			scope = &memory.Scope{Kind: memory.ScopeUser, ID: userID}
		}
	}

	results, err := t.ix.SearchHybrid(ctx, query, limit, scope)
	if err != nil {
		return ErrorResult(fmt.Sprintf("memory search failed: %v", err)).WithError(err)
	}
	if len(results) == 0 {
		return SilentResult("No matching memories found.")
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "[%s / %s]\n%s\n\n", r.Source, r.Heading, r.Content)
	}
	return SilentResult(strings.TrimSpace(b.String()))
}

// MemoryAppendTool writes a fact to today's daily note and reindexes it.
type MemoryAppendTool struct {
	ix        *memory.Index
	memoryDir string
}

func NewMemoryAppendTool(ix *memory.Index, memoryDir string) *MemoryAppendTool {
	return &MemoryAppendTool{ix: ix, memoryDir: memoryDir}
}

func (t *MemoryAppendTool) Name() string { return "memory_append" }
func (t *MemoryAppendTool) Description() string {
	return "Record a fact or note in today's daily memory note"
}

func (t *MemoryAppendTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "description": "The note to record"},
			"scope": map[string]any{
				"type":        "string",
				"enum":        []string{"global", "user", "family"},
				"description": "Who can retrieve the note later; default global",
			},
		},
		"required": []string{"text"},
	}
}

func (t *MemoryAppendTool) Execute(ctx context.Context, args map[string]any) *Result {
	text, _ := args["text"].(string)
	if text == "" {
		return ErrorResult("text is required")
	}

	scopeArg, _ := args["scope"].(string)
	subdir, owner, scopeKind, scopeID, err := t.resolveScope(ctx, scopeArg)
	if err != nil {
		return ErrorResult(err.Error())
	}
	dir := t.memoryDir
	if subdir != "" {
		dir = filepath.Join(t.memoryDir, subdir)
	}

	now := time.Now()
	if err := memory.AppendDailyNote(dir, now, text); err != nil {
		return ErrorResult(fmt.Sprintf("cannot append note: %v", err)).WithError(err)
	}
	if t.ix != nil {
		source := now.Format("2006-01-02") + ".md"
		if subdir != "" {
			source = filepath.Join(subdir, source)
		}
		content := memory.ReadDailyNote(dir, now)
		if err := t.ix.IndexFileWithEmbeddings(ctx, source, content, owner, scopeKind, scopeID); err != nil {
			return ErrorResult(fmt.Sprintf("note saved but indexing failed: %v", err)).WithError(err)
		}
	}
	return SilentResult("Noted.")
}

// resolveScope maps the requested visibility to a note subdirectory and the
// chunk ownership fields. Scoped notes live apart from the shared daily note
// so each file indexes under exactly one owner.
func (t *MemoryAppendTool) resolveScope(ctx context.Context, scope string) (subdir, owner, kind, scopeID string, err error) {
	switch scope {
	case "", "global":
		return "", memory.OwnerShared, memory.ScopeGlobal, "", nil
	case "user":
		userID := UserIDFromCtx(ctx)
		if userID == "" {
			return "", "", "", "", fmt.Errorf("no user is bound to this conversation")
		}
		return filepath.Join("users", userID), userID, memory.ScopeUser, userID, nil
	case "family":
		sc := ScopeFromCtx(ctx)
		if sc == nil || sc.Kind != memory.ScopeFamily {
			return "", "", "", "", fmt.Errorf("this conversation has no family scope")
		}
		return filepath.Join("family", sc.ID), memory.OwnerShared, memory.ScopeFamily, sc.ID, nil
	default:
		return "", "", "", "", fmt.Errorf("unknown scope %q: use global, user, or family", scope)
	}
}
