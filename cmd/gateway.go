package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/januslabs/janus/internal/agent"
	"github.com/januslabs/janus/internal/channels/telegram"
)

// gatewayCmd runs headless with the Telegram channel: no terminal, replies
// to system-origin messages go to the first allowlisted chat.
func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run headless with the Telegram channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Telegram.Token == "" {
				return fmt.Errorf("telegram token not configured: set telegram.token or TELEGRAM_BOT_TOKEN")
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := buildRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			tg, err := telegram.New(cfg, rt.bus)
			if err != nil {
				return err
			}
			rt.SetConfirmer(tg, chatGateTimeout)
			if chat := tg.DefaultChatID(); chat != "" {
				agent.WithDefaultRoute("telegram", chat)(rt.agent)
			}

			rt.Start(ctx)
			err = tg.Start(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
