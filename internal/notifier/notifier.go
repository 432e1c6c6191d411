package notifier

// Delivery of price posts to Telegram chats and channels

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "price-bot/internal/infra/log"
	"price-bot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notifier delivers a formatted message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID, text string) error
}

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewChatMessage addresses a message by numeric chat id or by @channel username.
func NewChatMessage(chatID, text string) (tgbotapi.MessageConfig, error) {
	chatID = strings.TrimSpace(chatID)
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text), nil
	}
	if strings.HasPrefix(chatID, "@") && len(chatID) > 1 {
		return tgbotapi.NewMessageToChannel(chatID, text), nil
	}
	return tgbotapi.MessageConfig{}, fmt.Errorf("invalid chat id %q", chatID)
}

// Telegram sends Markdown messages through the Bot API, paced by a rate limiter.
type Telegram struct {
	sender  Sender
	limiter *rate.Limiter
}

// NewTelegram paces sends at perSecond messages per second; <= 0 disables pacing.
func NewTelegram(sender Sender, perSecond float64) *Telegram {
	t := &Telegram{sender: sender}
	if perSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return t
}

func (t *Telegram) Notify(ctx context.Context, chatID, text string) error {
	msg, err := NewChatMessage(chatID, text)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrDeliveryFailed, err)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", model.ErrDeliveryFailed, err)
		}
	}

	if _, err := t.sender.Send(msg); err != nil {
		return fmt.Errorf("%w: chat %s: %v", model.ErrDeliveryFailed, chatID, err)
	}
	return nil
}

// Nop drops every message. It stands in when no bot token is configured.
type Nop struct{}

func (Nop) Notify(_ context.Context, chatID, _ string) error {
	log.LogDebug("No bot token configured, dropping notification", zap.String("chatID", chatID))
	return nil
}
