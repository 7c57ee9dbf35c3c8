package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadWriteRoundTrip(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	res := NewWriteFileTool(ws).Execute(ctx, map[string]any{
		"path": "notes/todo.md", "content": "buy milk",
	})
	require.False(t, res.IsError)

	res = NewReadFileTool(ws).Execute(ctx, map[string]any{"path": "notes/todo.md"})
	require.False(t, res.IsError)
	require.Equal(t, "buy milk", res.ForLLM)
}

func TestReadRejectsEscape(t *testing.T) {
	res := NewReadFileTool(t.TempDir()).Execute(context.Background(), map[string]any{
		"path": "../../../etc/passwd",
	})
	require.True(t, res.IsError)
	require.Contains(t, res.ForLLM, "escapes the workspace")
}

func TestReadRespectsSizeCap(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "big.bin"),
		[]byte(strings.Repeat("x", 2048)), 0o644))

	ctx := WithMaxFileSize(context.Background(), 1024)
	res := NewReadFileTool(ws).Execute(ctx, map[string]any{"path": "big.bin"})
	require.True(t, res.IsError)
	require.Contains(t, res.ForLLM, "byte limit")
}

func TestEditRequiresUniqueMatch(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "f.txt"), []byte("aa bb aa"), 0o644))
	ctx := context.Background()
	tool := NewEditFileTool(ws)

	res := tool.Execute(ctx, map[string]any{"path": "f.txt", "old_text": "aa", "new_text": "cc"})
	require.True(t, res.IsError)
	require.Contains(t, res.ForLLM, "occurs 2 times")

	res = tool.Execute(ctx, map[string]any{"path": "f.txt", "old_text": "bb", "new_text": "zz"})
	require.False(t, res.IsError)
	data, _ := os.ReadFile(filepath.Join(ws, "f.txt"))
	require.Equal(t, "aa zz aa", string(data))
}

func TestListDir(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), nil, 0o644))

	res := NewListDirTool(ws).Execute(context.Background(), map[string]any{})
	require.False(t, res.IsError)
	require.Equal(t, "a.txt\nsub/", res.ForLLM)
}
