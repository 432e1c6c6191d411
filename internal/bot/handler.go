package bot

// Telegram update handling: subscription commands and the /setup keyboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"price-bot/internal/clients_api/coingecko"
	log "price-bot/internal/infra/log"
	"price-bot/internal/model"
	"price-bot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Transport is the part of *tgbotapi.BotAPI the handler talks to.
type Transport interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Store interface {
	GetUser(ctx context.Context, userID string) (*model.Subscription, error)
	CreateUser(ctx context.Context, sub *model.Subscription) (*model.Subscription, bool, error)
	UpdateUser(ctx context.Context, userID string, upd model.Update) (*model.Subscription, error)
	GetStats(ctx context.Context) (model.Stats, error)
}

type Options struct {
	AdminID         int64 // 0 disables /stats
	DefaultCoin     string
	DefaultInterval int
}

type Handler struct {
	transport Transport
	store     Store
	opts      Options
}

func NewHandler(transport Transport, store Store, opts Options) *Handler {
	if opts.DefaultCoin == "" {
		opts.DefaultCoin = "BTC"
	}
	if !model.ValidInterval(opts.DefaultInterval) {
		opts.DefaultInterval = model.MinIntervalMinutes
	}
	return &Handler{transport: transport, store: store, opts: opts}
}

const (
	welcomeText = "👋 Welcome to CryptoBot!\n\n" +
		"I can send you automatic price updates.\n" +
		"Use /setup to configure your alerts."

	helpText = "Commands:\n" +
		"/start - subscribe with the default settings\n" +
		"/setup - show settings with buttons\n" +
		"/coin SYMBOL - coin to track, e.g. /coin ETH\n" +
		"/interval MINUTES - minutes between updates\n" +
		"/channel CHAT_ID - post to another chat or @channel\n" +
		"/on, /off - resume or pause updates\n" +
		"/status - show current settings"

	startFirstText = "You have no subscription yet. Send /start first."
)

// HandleUpdate dispatches one update. It never panics and never returns an
// error: failures are logged and, where useful, reported back to the chat.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.LogError("Recovered panic in update handler",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		h.handleCommand(ctx, update.Message)
	default:
		log.LogDebug("Ignoring update", zap.Int("update_id", update.UpdateID))
	}
}

func (h *Handler) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}
	command := message.Command()
	args := strings.TrimSpace(message.CommandArguments())
	userID := formatID(message.From.ID)

	log.LogDebug("Received command",
		zap.String("command", command),
		zap.String("args", args),
		zap.String("chatID", formatID(message.Chat.ID)),
		zap.String("username", message.From.UserName))

	var err error
	switch command {
	case "start":
		err = h.handleStart(ctx, message, userID)
	case "setup":
		err = h.handleSetup(ctx, message, userID)
	case "status":
		err = h.handleStatus(ctx, message, userID)
	case "coin":
		err = h.handleCoin(ctx, message, userID, args)
	case "interval":
		err = h.handleInterval(ctx, message, userID, args)
	case "channel":
		err = h.handleChannel(ctx, message, userID, args)
	case "on", "off":
		err = h.handleActive(ctx, message, userID, command == "on")
	case "help":
		h.reply(message, helpText, false)
	case "stats":
		err = h.handleStats(ctx, message)
	default:
		return
	}

	if errors.Is(err, storage.ErrNotFound) {
		h.reply(message, startFirstText, false)
		return
	}
	if err != nil {
		log.LogError("Failed to handle command",
			zap.String("command", command),
			zap.String("user_id", userID),
			zap.Error(err))
		h.reply(message, "⚠️ Something went wrong, please try again later.", false)
	}
}

func (h *Handler) handleStart(ctx context.Context, message *tgbotapi.Message, userID string) error {
	sub, created, err := h.store.CreateUser(ctx, &model.Subscription{
		UserID:          userID,
		ChannelID:       formatID(message.Chat.ID),
		CoinSymbol:      h.opts.DefaultCoin,
		IntervalMinutes: h.opts.DefaultInterval,
		IsActive:        true,
	})
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	if created {
		log.LogSuccess("New subscription",
			zap.String("user_id", userID),
			zap.String("channel_id", sub.ChannelID))
	}
	h.reply(message, welcomeText, false)
	return nil
}

func (h *Handler) handleSetup(ctx context.Context, message *tgbotapi.Message, userID string) error {
	sub, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, setupText(sub))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = setupKeyboard(sub)
	h.send(msg)
	return nil
}

func (h *Handler) handleStatus(ctx context.Context, message *tgbotapi.Message, userID string) error {
	sub, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	h.reply(message, setupText(sub), true)
	return nil
}

func (h *Handler) handleCoin(ctx context.Context, message *tgbotapi.Message, userID, args string) error {
	symbol, ok := model.NormalizeCoinSymbol(args)
	if !ok {
		h.reply(message, "Usage: /coin SYMBOL\n\nExample: /coin ETH\nSupported: "+
			strings.Join(coingecko.SupportedSymbols, ", "), false)
		return nil
	}
	if _, err := h.store.UpdateUser(ctx, userID, model.Update{CoinSymbol: &symbol}); err != nil {
		return err
	}

	text := fmt.Sprintf("✅ Coin set to %s.", symbol)
	if !coingecko.IsSupported(symbol) {
		// unknown tickers are quoted as bitcoin by the price source
		text += fmt.Sprintf("\n\n%s is not in the supported list (%s); updates will show the BTC quote.",
			symbol, strings.Join(coingecko.SupportedSymbols, ", "))
	}
	h.reply(message, text, false)
	return nil
}

func (h *Handler) handleInterval(ctx context.Context, message *tgbotapi.Message, userID, args string) error {
	minutes, err := strconv.Atoi(args)
	if err != nil || !model.ValidInterval(minutes) {
		h.reply(message, fmt.Sprintf("Usage: /interval MINUTES\n\nExample: /interval 15\nAllowed range: %d-%d",
			model.MinIntervalMinutes, model.MaxIntervalMinutes), false)
		return nil
	}
	if _, err := h.store.UpdateUser(ctx, userID, model.Update{IntervalMinutes: &minutes}); err != nil {
		return err
	}
	h.reply(message, fmt.Sprintf("✅ Updates every %d min(s).", minutes), false)
	return nil
}

func (h *Handler) handleChannel(ctx context.Context, message *tgbotapi.Message, userID, args string) error {
	if !model.ValidChannelID(args) {
		h.reply(message, "Usage: /channel CHAT_ID\n\nExample: /channel @mychannel or /channel -1001234567890\n"+
			"The bot must be allowed to post there.", false)
		return nil
	}
	if _, err := h.store.UpdateUser(ctx, userID, model.Update{ChannelID: &args}); err != nil {
		return err
	}
	h.reply(message, "✅ Updates will be posted to "+args+".", false)
	return nil
}

func (h *Handler) handleActive(ctx context.Context, message *tgbotapi.Message, userID string, active bool) error {
	if _, err := h.store.UpdateUser(ctx, userID, model.Update{IsActive: &active}); err != nil {
		return err
	}
	if active {
		h.reply(message, "✅ Price updates resumed.", false)
	} else {
		h.reply(message, "⏸ Price updates paused. Send /on to resume.", false)
	}
	return nil
}

func (h *Handler) handleStats(ctx context.Context, message *tgbotapi.Message) error {
	if h.opts.AdminID == 0 || message.From.ID != h.opts.AdminID {
		return nil
	}
	stats, err := h.store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	h.reply(message, fmt.Sprintf("📈 Active subscriptions: %d\n👥 Total users: %d",
		stats.ActiveUsers, stats.TotalUsers), false)
	return nil
}

func (h *Handler) reply(message *tgbotapi.Message, text string, markdown bool) {
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyToMessageID = message.MessageID
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	h.send(msg)
}

func (h *Handler) send(c tgbotapi.Chattable) {
	if _, err := h.transport.Send(c); err != nil {
		log.LogError("Failed to send Telegram message", zap.Error(err))
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
