package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultMaxFileSize = 1 << 20 // 1 MiB

// resolvePath joins a possibly-relative path against base and rejects
// escapes outside it.
func resolvePath(path, base string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("invalid base %q: %w", base, err)
	}
	if abs != absBase && !strings.HasPrefix(abs, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return abs, nil
}

func workspaceFor(ctx context.Context, fallback string) string {
	if ws := WorkspaceFromCtx(ctx); ws != "" {
		return ws
	}
	return fallback
}

// ReadFileTool reads a file inside the workspace, size-capped.
type ReadFileTool struct {
	workingDir string
}

func NewReadFileTool(workingDir string) *ReadFileTool { return &ReadFileTool{workingDir: workingDir} }

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file in the workspace" }

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "File path, relative to the workspace"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := resolvePath(path, workspaceFor(ctx, t.workingDir))
	if err != nil {
		return ErrorResult(err.Error())
	}

	maxSize := MaxFileSizeFromCtx(ctx)
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot read %s: %v", path, err))
	}
	if info.Size() > maxSize {
		return ErrorResult(fmt.Sprintf("file %s is %d bytes, over the %d byte limit", path, info.Size(), maxSize))
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot read %s: %v", path, err))
	}
	return SilentResult(string(data))
}

// WriteFileTool creates or overwrites a file inside the workspace.
type WriteFileTool struct {
	workingDir string
}

func NewWriteFileTool(workingDir string) *WriteFileTool {
	return &WriteFileTool{workingDir: workingDir}
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file, creating it if needed" }

func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "File path, relative to the workspace"},
			"content": map[string]any{"type": "string", "description": "Full file content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := resolvePath(path, workspaceFor(ctx, t.workingDir))
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("cannot create directory for %s: %v", path, err))
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("cannot write %s: %v", path, err))
	}
	return SilentResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// EditFileTool replaces an exact substring in a file.
type EditFileTool struct {
	workingDir string
}

func NewEditFileTool(workingDir string) *EditFileTool { return &EditFileTool{workingDir: workingDir} }

func (t *EditFileTool) Name() string { return "edit_file" }
func (t *EditFileTool) Description() string {
	return "Replace an exact text fragment in a file with new text"
}

func (t *EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":     map[string]any{"type": "string", "description": "File path, relative to the workspace"},
			"old_text": map[string]any{"type": "string", "description": "Exact text to replace; must occur exactly once"},
			"new_text": map[string]any{"type": "string", "description": "Replacement text"},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["path"].(string)
	oldText, _ := args["old_text"].(string)
	newText, _ := args["new_text"].(string)
	if path == "" || oldText == "" {
		return ErrorResult("path and old_text are required")
	}
	resolved, err := resolvePath(path, workspaceFor(ctx, t.workingDir))
	if err != nil {
		return ErrorResult(err.Error())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot read %s: %v", path, err))
	}
	content := string(data)
	switch n := strings.Count(content, oldText); n {
	case 0:
		return ErrorResult(fmt.Sprintf("old_text not found in %s", path))
	case 1:
	default:
		return ErrorResult(fmt.Sprintf("old_text occurs %d times in %s; make it unique", n, path))
	}

	content = strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("cannot write %s: %v", path, err))
	}
	return SilentResult(fmt.Sprintf("edited %s", path))
}

// ListDirTool lists a workspace directory.
type ListDirTool struct {
	workingDir string
}

func NewListDirTool(workingDir string) *ListDirTool { return &ListDirTool{workingDir: workingDir} }

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List files and directories at a workspace path" }

func (t *ListDirTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory path, relative to the workspace; defaults to the workspace root"},
		},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]any) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(path, workspaceFor(ctx, t.workingDir))
	if err != nil {
		return ErrorResult(err.Error())
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot list %s: %v", path, err))
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return SilentResult("(empty directory)")
	}
	return SilentResult(strings.Join(names, "\n"))
}
