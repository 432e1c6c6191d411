package commands

// Component wiring shared by serve and trigger

import (
	"context"
	"fmt"

	"price-bot/internal/bot"
	"price-bot/internal/clients_api/coingecko"
	"price-bot/internal/infra/config"
	logging "price-bot/internal/infra/log"
	"price-bot/internal/notifier"
	"price-bot/internal/scheduler"
	"price-bot/internal/server"
	"price-bot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type app struct {
	cfg       *config.Config
	store     storage.Store
	botAPI    *tgbotapi.BotAPI // nil without a token
	handler   *bot.Handler     // nil without a token
	scheduler *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		logging.LogError("Failed to open storage", zap.String("driver", cfg.Database.Driver), zap.Error(err))
		return nil, err
	}
	logging.LogSuccess("Storage ready", zap.String("driver", cfg.Database.Driver))

	a := &app{cfg: cfg, store: store}

	var n notifier.Notifier = notifier.Nop{}
	if cfg.Telegram.Token != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			store.Close()
			logging.LogError("Failed to initialize bot", zap.Error(err))
			return nil, fmt.Errorf("failed to initialize bot: %w", err)
		}
		logging.LogSuccess("Bot authorized", zap.String("username", botAPI.Self.UserName))

		a.botAPI = botAPI
		a.handler = bot.NewHandler(botAPI, store, bot.Options{
			AdminID:         cfg.Telegram.AdminUserID(),
			DefaultCoin:     cfg.Defaults.Coin,
			DefaultInterval: cfg.Defaults.IntervalMinutes,
		})
		n = notifier.NewTelegram(botAPI, cfg.Telegram.SendRate)
	} else {
		logging.LogWarn("TELEGRAM_BOT_TOKEN not set, running without Telegram: updates are dropped and posts are only logged")
	}

	fetcher := coingecko.NewClient(coingecko.Options{
		BaseURL:    cfg.CoinGecko.BaseURL,
		APIKey:     cfg.CoinGecko.APIKey,
		Timeout:    cfg.CoinGecko.Timeout,
		RateLimit:  cfg.CoinGecko.RateLimit,
		MaxRetries: cfg.CoinGecko.MaxRetries,
		CacheTTL:   cfg.CoinGecko.CacheTTL,
	})

	a.scheduler = scheduler.New(store, fetcher, n, scheduler.Options{
		Tick:           cfg.Scheduler.Tick,
		RequestTimeout: cfg.Scheduler.RequestTimeout,
		Concurrency:    cfg.Scheduler.Concurrency,
		RunOnStart:     cfg.Scheduler.RunOnStart,
		BotUsername:    cfg.Telegram.Username,
	})
	return a, nil
}

// updateHandler returns the bot handler as an interface value that is nil
// when no bot is configured.
func (a *app) updateHandler() server.UpdateHandler {
	if a.handler == nil {
		return nil
	}
	return a.handler
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logging.LogWarn("Failed to close storage", zap.Error(err))
	}
}
