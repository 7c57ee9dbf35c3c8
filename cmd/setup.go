package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/januslabs/janus/internal/config"
)

// setupCmd runs the guided configuration flow and writes
// ~/.janus/config.json.
func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Guided configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				provider  string
				apiKey    string
				model     string
				tgToken   string
				heartbeat bool
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewSelect[string]().
						Title("LLM provider").
						Options(huh.NewOptions("anthropic", "openai", "openrouter", "deepseek", "groq", "local")...).
						Value(&provider),
					huh.NewInput().
						Title("API key").
						EchoMode(huh.EchoModePassword).
						Value(&apiKey),
					huh.NewInput().
						Title("Model").
						Description("Leave empty for the provider default").
						Value(&model),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("Telegram bot token").
						Description("Optional, needed for 'janus gateway'").
						Value(&tgToken),
					huh.NewConfirm().
						Title("Enable the heartbeat scheduler?").
						Value(&heartbeat),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			doc := map[string]any{
				"llm": map[string]any{
					"provider": provider,
					"apiKey":   apiKey,
					"model":    model,
				},
			}
			if tgToken != "" {
				doc["telegram"] = map[string]any{"token": tgToken}
			}
			if heartbeat {
				doc["heartbeat"] = map[string]any{"enabled": true}
			}

			home := config.HomeDir()
			if err := os.MkdirAll(home, 0o755); err != nil {
				return err
			}
			path := filepath.Join(home, "config.json")
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}

			fmt.Println("Configuration written to", path)
			return nil
		},
	}
}
