package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/januslabs/janus/internal/config"
	"github.com/januslabs/janus/internal/skills"
	"github.com/januslabs/janus/internal/tools"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}
}

func (echoTool) Execute(_ context.Context, args map[string]any) *tools.Result {
	text, _ := args["text"].(string)
	if text == "" {
		return tools.ErrorResult("text is required")
	}
	return tools.NewResult(text)
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace.Dir = t.TempDir()

	reg := tools.NewRegistry()
	reg.Register(echoTool{})

	catalog := []skills.Skill{{
		Name:         "weather",
		Description:  "forecast lookup",
		Instructions: "Fetch the forecast before answering.",
	}}
	return New(cfg, reg, catalog, "test")
}

// roundTrip sends one message and unmarshals the response envelope.
func roundTrip(t *testing.T, s *Server, raw string) map[string]json.RawMessage {
	t.Helper()
	resp := s.HandleMessage(context.Background(), json.RawMessage(raw))
	require.NotNil(t, resp)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &envelope))
	return envelope
}

func errorCode(t *testing.T, envelope map[string]json.RawMessage) int {
	t.Helper()
	require.Contains(t, envelope, "error")
	var e struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(envelope["error"], &e))
	return e.Code
}

func TestInitialize(t *testing.T) {
	s := testServer(t)
	env := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`)
	require.Contains(t, string(env["result"]), `"janus"`)
}

func TestToolsListAndCall(t *testing.T) {
	s := testServer(t)

	env := roundTrip(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Contains(t, string(env["result"]), `"echo"`)
	require.Contains(t, string(env["result"]), "echoes its input")

	env = roundTrip(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hello"}}}`)
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &result))
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	require.Equal(t, "text", result.Content[0].Type)
	require.Equal(t, "hello", result.Content[0].Text)
}

func TestToolCallErrorIsFlagged(t *testing.T) {
	s := testServer(t)
	env := roundTrip(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)
	var result struct {
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &result))
	require.True(t, result.IsError)
}

func TestMethodNotFound(t *testing.T) {
	s := testServer(t)
	env := roundTrip(t, s, `{"jsonrpc":"2.0","id":5,"method":"bogus/method"}`)
	require.Equal(t, -32601, errorCode(t, env))
}

func TestParseError(t *testing.T) {
	s := testServer(t)
	env := roundTrip(t, s, `{not json`)
	require.Equal(t, -32700, errorCode(t, env))
}

func TestPromptsFromSkills(t *testing.T) {
	s := testServer(t)

	env := roundTrip(t, s, `{"jsonrpc":"2.0","id":6,"method":"prompts/list"}`)
	require.Contains(t, string(env["result"]), `"weather"`)

	env = roundTrip(t, s, `{"jsonrpc":"2.0","id":7,"method":"prompts/get","params":{"name":"weather"}}`)
	require.Contains(t, string(env["result"]), "Fetch the forecast before answering.")
}

func execResult(t *testing.T, env map[string]json.RawMessage) (string, bool) {
	t.Helper()
	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &result))
	require.NotEmpty(t, result.Content)
	return result.Content[0].Text, result.IsError
}

func TestExecDenyPatternsEnforced(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace.Dir = t.TempDir()
	cfg.Tools.ExecDenyPatterns = []string{`rm\s+-rf`}

	reg := tools.NewRegistry()
	reg.Register(tools.NewExecTool(cfg.Workspace.Dir))
	s := New(cfg, reg, nil, "test")

	env := roundTrip(t, s, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"exec","arguments":{"command":"rm -rf sub"}}}`)
	text, isError := execResult(t, env)
	require.True(t, isError)
	require.Contains(t, text, "denied by safety policy")
}

func TestGatedCommandDeniedWithoutConfirmer(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace.Dir = t.TempDir()

	reg := tools.NewRegistry()
	reg.Register(tools.NewExecTool(cfg.Workspace.Dir))
	// Stdio has no confirmation channel, so gated commands must be denied.
	reg.SetGate(tools.NewGate([]string{`git\s+push`}, nil, 0))
	s := New(cfg, reg, nil, "test")

	env := roundTrip(t, s, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"exec","arguments":{"command":"git push origin main"}}}`)
	text, isError := execResult(t, env)
	require.True(t, isError)
	require.Contains(t, text, "Action denied by user")
}
