// Package mcpserver exposes the tool registry and skill catalog to MCP
// clients (editors, desktop assistants) over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/januslabs/janus/internal/config"
	"github.com/januslabs/janus/internal/skills"
	"github.com/januslabs/janus/internal/tools"
)

// Server wraps an MCP server bound to the janus tool registry.
type Server struct {
	cfg      config.Config
	registry *tools.Registry
	catalog  []skills.Skill
	denyPats []*regexp.Regexp
	mcp      *server.MCPServer
}

func New(cfg config.Config, registry *tools.Registry, catalog []skills.Skill, version string) *Server {
	s := &Server{cfg: cfg, registry: registry, catalog: catalog}
	for _, p := range cfg.Tools.ExecDenyPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			slog.Warn("invalid exec deny pattern, skipping", "pattern", p, "error", err)
			continue
		}
		s.denyPats = append(s.denyPats, re)
	}
	s.mcp = server.NewMCPServer("janus", version,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve blocks on stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

// HandleMessage processes one raw JSON-RPC message. Exposed for transports
// other than stdio and for tests.
func (s *Server) HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, raw)
}

func (s *Server) registerTools() {
	for _, name := range s.registry.Names() {
		t, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			slog.Warn("tool schema marshal failed, skipping", "tool", name, "error", err)
			continue
		}
		tool := mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema)
		s.mcp.AddTool(tool, s.callTool(t.Name()))
	}
}

func (s *Server) callTool(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		ctx = s.toolContext(ctx)

		started := time.Now()
		result := s.registry.Execute(ctx, name, args)
		slog.Debug("mcp tool call", "tool", name, "is_error", result.IsError,
			"duration", time.Since(started))

		if result.IsError {
			return mcp.NewToolResultError(result.ForLLM), nil
		}
		return mcp.NewToolResultText(result.ForLLM), nil
	}
}

func (s *Server) toolContext(ctx context.Context) context.Context {
	ctx = tools.WithWorkspace(ctx, config.ExpandHome(s.cfg.Workspace.Dir))
	ctx = tools.WithChannel(ctx, "mcp")
	ctx = tools.WithDenyPatterns(ctx, s.denyPats)
	ctx = tools.WithExecTimeout(ctx, time.Duration(s.cfg.Tools.ExecTimeoutMs)*time.Millisecond)
	ctx = tools.WithMaxFileSize(ctx, s.cfg.Tools.MaxFileSize)
	return ctx
}

// registerPrompts publishes each skill as a prompt whose text is the
// skill's instruction body.
func (s *Server) registerPrompts() {
	for _, sk := range s.catalog {
		sk := sk
		prompt := mcp.NewPrompt(sk.Name, mcp.WithPromptDescription(sk.Description))
		s.mcp.AddPrompt(prompt, func(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			text := sk.Instructions
			if text == "" {
				return nil, fmt.Errorf("skill %q has no instructions", sk.Name)
			}
			return mcp.NewGetPromptResult(sk.Description, []mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
			}), nil
		})
	}
}
