package tools

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecRunsCommand(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	res := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
	require.False(t, res.IsError)
	require.Equal(t, "hello\n", res.ForLLM)
}

func TestExecDenyPattern(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	ctx := WithDenyPatterns(context.Background(), []*regexp.Regexp{
		regexp.MustCompile(`rm\s+-rf`),
	})
	res := tool.Execute(ctx, map[string]any{"command": "rm -rf /"})
	require.True(t, res.IsError)
	require.Contains(t, res.ForLLM, "denied by safety policy")
}

func TestExecTimeout(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	ctx := WithExecTimeout(context.Background(), 50*time.Millisecond)
	start := time.Now()
	res := tool.Execute(ctx, map[string]any{"command": "sleep 5"})
	require.Less(t, time.Since(start), 3*time.Second)
	require.True(t, res.IsError)
	require.Contains(t, res.ForLLM, "timed out")
}

func TestExecTimeoutKillsDescendants(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	// The background child inherits the stdout pipe; without the process
	// group kill it would keep Run blocked for the full five seconds.
	ctx := WithExecTimeout(context.Background(), 100*time.Millisecond)
	start := time.Now()
	res := tool.Execute(ctx, map[string]any{"command": "sleep 5 & sleep 5"})
	require.Less(t, time.Since(start), 3*time.Second)
	require.True(t, res.IsError)
	require.Contains(t, res.ForLLM, "timed out")
}

func TestExecStderrCaptured(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	res := tool.Execute(context.Background(), map[string]any{"command": "echo oops >&2; false"})
	require.True(t, res.IsError)
	require.Contains(t, res.ForLLM, "STDERR:")
	require.Contains(t, res.ForLLM, "oops")
}

func TestExecOutputCapped(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	res := tool.Execute(context.Background(), map[string]any{
		"command": "head -c 200000 /dev/zero | tr '\\0' 'x'",
	})
	require.False(t, res.IsError)
	require.LessOrEqual(t, len(res.ForLLM), execReturnCap+100)
	require.Contains(t, res.ForLLM, "output truncated")
}

func TestExecWorkingDirEscapesRejected(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	res := tool.Execute(context.Background(), map[string]any{
		"command":     "pwd",
		"working_dir": "../../etc",
	})
	require.True(t, res.IsError)
	require.Contains(t, res.ForLLM, "escapes the workspace")
}

func TestCappedWriterStopsAtCap(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	// yes would run forever without the capture cap plus timeout.
	ctx := WithExecTimeout(context.Background(), 200*time.Millisecond)
	start := time.Now()
	res := tool.Execute(ctx, map[string]any{"command": "yes"})
	require.Less(t, time.Since(start), 3*time.Second)
	require.True(t, res.IsError) // timeout
	require.LessOrEqual(t, len(res.ForLLM), execReturnCap+100)
}
