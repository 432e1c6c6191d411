package commands

// Manages the Telegram webhook registration

import (
	"fmt"

	"price-bot/internal/bot"
	"price-bot/internal/infra/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
)

var dropPendingUpdates bool

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the Telegram webhook (set, delete, info)",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set [url]",
	Short: "Register the webhook; url defaults to telegram.webhook_url",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, cfg, err := webhookBot(cmd)
		if err != nil {
			return err
		}
		url := cfg.WebhookURL
		if len(args) == 1 {
			url = args[0]
		}
		if err := bot.SetWebhook(api, url, cfg.WebhookSecret, dropPendingUpdates); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", url)
		return nil
	},
}

var webhookDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the webhook registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := webhookBot(cmd)
		if err != nil {
			return err
		}
		if err := bot.DeleteWebhook(api, dropPendingUpdates); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
		return nil
	},
}

var webhookInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the current webhook registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := webhookBot(cmd)
		if err != nil {
			return err
		}
		status, err := bot.GetWebhookStatus(api)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	webhookCmd.PersistentFlags().BoolVar(&dropPendingUpdates, "drop-pending", false, "drop updates queued by Telegram")
	webhookCmd.AddCommand(webhookSetCmd, webhookDeleteCmd, webhookInfoCmd)
}

func webhookBot(cmd *cobra.Command) (*tgbotapi.BotAPI, config.TelegramConfig, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, config.TelegramConfig{}, err
	}
	if cfg.Telegram.Token == "" {
		return nil, config.TelegramConfig{}, fmt.Errorf("telegram.token (TELEGRAM_BOT_TOKEN) is required")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, config.TelegramConfig{}, fmt.Errorf("failed to initialize bot: %w", err)
	}
	return api, cfg.Telegram, nil
}
