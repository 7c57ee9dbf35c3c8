package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/januslabs/janus/internal/config"
	"github.com/januslabs/janus/internal/mcpserver"
	"github.com/januslabs/janus/internal/skills"
	"github.com/januslabs/janus/internal/tools"
)

// mcpServerCmd serves the tool registry and skills to MCP clients over
// stdio. No LLM provider is needed in this mode.
func mcpServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve tools and skills to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			workspace := config.ExpandHome(cfg.Workspace.Dir)
			reg := tools.NewRegistry()
			reg.Register(tools.NewExecTool(workspace))
			reg.Register(tools.NewReadFileTool(workspace))
			reg.Register(tools.NewWriteFileTool(workspace))
			reg.Register(tools.NewEditFileTool(workspace))
			reg.Register(tools.NewListDirTool(workspace))
			if cfg.Gates.Enabled {
				// Stdio has no confirmation channel, so gated commands are
				// denied outright.
				reg.SetGate(tools.NewGate(cfg.Gates.ExecPatterns, nil, 0))
			}

			catalog := skills.Load(cfg.SkillsPath(), filepath.Join(config.HomeDir(), "skills"))
			return mcpserver.New(cfg, reg, catalog, Version).Serve()
		},
	}
}
