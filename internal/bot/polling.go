package bot

import (
	"context"

	log "price-bot/internal/infra/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// UpdateSource is the long-polling half of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RunPolling feeds long-polled updates to the handler until ctx is cancelled.
// Updates are handled one at a time, in order.
func RunPolling(ctx context.Context, source UpdateSource, h *Handler) {
	if source == nil {
		log.LogWarn("Bot is nil, update polling not started")
		return
	}

	log.LogInfo("Starting update polling")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := source.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			source.StopReceivingUpdates()
			log.LogInfo("Update polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				log.LogWarn("Update channel closed")
				return
			}
			log.LogDebug("Polled update", zap.Int("update_id", update.UpdateID))
			h.HandleUpdate(ctx, update)
		}
	}
}
