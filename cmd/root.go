// Package cmd wires the runtime together and exposes the CLI surface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/januslabs/janus/internal/channels/cli"
	"github.com/januslabs/janus/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/januslabs/janus/cmd.Version=v1.0.0".
var Version = "dev"

var (
	workspaceDir string
	verbose      bool
	oneShot      string
)

var rootCmd = &cobra.Command{
	Use:   "janus",
	Short: "Janus - a personal autonomous agent",
	Long:  "Janus mediates between chat channels and LLM backends, with persistent sessions, markdown memory, skills, and scheduled tasks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "workspace directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&oneShot, "message", "m", "", "process one message and exit")

	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(mcpServerCmd())
	rootCmd.AddCommand(setupCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("janus %s\n", Version)
		},
	}
}

func loadConfig() (config.Config, error) {
	dir := workspaceDir
	if dir == "" {
		dir = "."
	}
	return config.Load(dir, func(cfg *config.Config) {
		if workspaceDir != "" {
			cfg.Workspace.Dir = workspaceDir
		}
	})
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runInteractive is the default action: the terminal REPL, or a single
// message when -m is given.
func runInteractive(parent context.Context) error {
	setupLogging()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(parent)
	defer cancel()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if oneShot != "" {
		reply, err := rt.agent.ProcessDirect(ctx, oneShot, 0)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}

	term := cli.New(rt.bus)
	rt.SetConfirmer(term, interactiveGateTimeout)
	rt.Start(ctx)

	err = term.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
