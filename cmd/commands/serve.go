package commands

// Command to run the bot: HTTP API, webhook or polling ingestion and the price scheduler
// Implements graceful shutdown for proper termination

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"price-bot/internal/bot"
	"price-bot/internal/infra/config"
	logging "price-bot/internal/infra/log"
	"price-bot/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, Telegram update handling and the price scheduler",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("http.addr", "", "listen address, e.g. :5000")
	f.String("telegram.mode", "", "update ingestion: webhook or polling")
	f.Bool("scheduler.run_on_start", false, "run one scheduler pass immediately")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.updateHandler(), a.store, a.scheduler, server.Options{
		Addr:          cfg.HTTP.Addr,
		ReadTimeout:   cfg.HTTP.ReadTimeout,
		WriteTimeout:  cfg.HTTP.WriteTimeout,
		WebhookSecret: cfg.Telegram.WebhookSecret,
	})

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil {
			logging.LogError("HTTP server failed", zap.Error(err))
			serveErr <- err
			cancel()
		}
	}()

	if cfg.Scheduler.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.scheduler.Run(ctx)
		}()
	} else {
		logging.LogWarn("Scheduler disabled, prices are only posted via /api/scheduler/trigger")
	}

	if a.botAPI != nil {
		switch cfg.Telegram.Mode {
		case config.ModePolling:
			// getUpdates is refused while a webhook is registered
			if err := bot.DeleteWebhook(a.botAPI, false); err != nil {
				logging.LogWarn("Failed to delete webhook before polling", zap.Error(err))
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				bot.RunPolling(ctx, a.botAPI, a.handler)
			}()
		case config.ModeWebhook:
			if cfg.Telegram.WebhookURL != "" {
				if err := bot.SetWebhook(a.botAPI, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret, false); err != nil {
					logging.LogWarn("Failed to register webhook", zap.Error(err))
				}
			}
		}
	}

	logging.LogSuccess("Price bot is running",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("mode", cfg.Telegram.Mode),
		zap.Bool("scheduler", cfg.Scheduler.Enabled))

	<-ctx.Done()
	logging.LogInfo("Shutdown signal received, gracefully stopping...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogWarn("HTTP server shutdown failed", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.LogSuccess("All components stopped gracefully")
	case <-shutdownCtx.Done():
		logging.LogWarn("Timeout waiting for components to stop, forcing shutdown")
	}

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}
