package bot

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
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Callback data of the /setup keyboard.
const (
	callbackSetCoin      = "set_coin"
	callbackSetInterval  = "set_interval"
	callbackToggleStatus = "toggle_status"
	callbackBack         = "setup"
	callbackCoinPrefix   = "coin:"
	callbackIntervalPfx  = "interval:"
)

// IntervalPresets are the intervals offered as buttons, in minutes.
var IntervalPresets = []int{1, 5, 15, 30, 60, 240}

func statusLabel(active bool) string {
	if active {
		return "✅ Status: ON"
	}
	return "⛔ Status: OFF"
}

func setupText(sub *model.Subscription) string {
	return fmt.Sprintf("⚙️ *Configuration*\n\n"+
		"🪙 Coin: `%s`\n"+
		"⏱ Interval: `%d min`\n"+
		"📡 Channel: `%s`\n"+
		"%s",
		sub.CoinSymbol, sub.IntervalMinutes, sub.ChannelID, statusLabel(sub.IsActive))
}

func setupKeyboard(sub *model.Subscription) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("🪙 Set Coin (%s)", sub.CoinSymbol), callbackSetCoin)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("⏱ Set Interval (%d min)", sub.IntervalMinutes), callbackSetInterval)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			statusLabel(sub.IsActive), callbackToggleStatus)),
	)
}

func coinKeyboard() tgbotapi.InlineKeyboardMarkup {
	buttons := lo.Map(coingecko.SupportedSymbols, func(symbol string, _ int) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(symbol, callbackCoinPrefix+symbol)
	})
	return withBackRow(lo.Chunk(buttons, 2))
}

func intervalKeyboard() tgbotapi.InlineKeyboardMarkup {
	buttons := lo.Map(IntervalPresets, func(minutes int, _ int) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d min", minutes), callbackIntervalPfx+strconv.Itoa(minutes))
	})
	return withBackRow(lo.Chunk(buttons, 3))
}

func withBackRow(rows [][]tgbotapi.InlineKeyboardButton) tgbotapi.InlineKeyboardMarkup {
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("« Back", callbackBack)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	userID := formatID(cq.From.ID)

	log.LogDebug("Received callback",
		zap.String("data", cq.Data),
		zap.String("user_id", userID))

	toast, err := h.applyCallback(ctx, cq, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		toast = startFirstText
	case err != nil:
		log.LogError("Failed to handle callback",
			zap.String("data", cq.Data),
			zap.String("user_id", userID),
			zap.Error(err))
		toast = "Something went wrong, please try again later."
	}

	if _, err := h.transport.Request(tgbotapi.NewCallback(cq.ID, toast)); err != nil {
		log.LogWarn("Failed to answer callback query", zap.String("user_id", userID), zap.Error(err))
	}
}

// applyCallback performs the button action and returns the toast to show.
func (h *Handler) applyCallback(ctx context.Context, cq *tgbotapi.CallbackQuery, userID string) (string, error) {
	data := cq.Data
	switch {
	case data == callbackSetCoin:
		h.editKeyboard(cq, coinKeyboard())
		return "", nil

	case data == callbackSetInterval:
		h.editKeyboard(cq, intervalKeyboard())
		return "", nil

	case data == callbackBack:
		sub, err := h.store.GetUser(ctx, userID)
		if err != nil {
			return "", err
		}
		h.editSetup(cq, sub)
		return "", nil

	case data == callbackToggleStatus:
		sub, err := h.store.GetUser(ctx, userID)
		if err != nil {
			return "", err
		}
		active := !sub.IsActive
		if sub, err = h.store.UpdateUser(ctx, userID, model.Update{IsActive: &active}); err != nil {
			return "", err
		}
		h.editSetup(cq, sub)
		if active {
			return "Price updates resumed", nil
		}
		return "Price updates paused", nil

	case strings.HasPrefix(data, callbackCoinPrefix):
		symbol, ok := model.NormalizeCoinSymbol(strings.TrimPrefix(data, callbackCoinPrefix))
		if !ok {
			return "Unknown coin", nil
		}
		sub, err := h.store.UpdateUser(ctx, userID, model.Update{CoinSymbol: &symbol})
		if err != nil {
			return "", err
		}
		h.editSetup(cq, sub)
		return "Coin set to " + symbol, nil

	case strings.HasPrefix(data, callbackIntervalPfx):
		minutes, err := strconv.Atoi(strings.TrimPrefix(data, callbackIntervalPfx))
		if err != nil || !model.ValidInterval(minutes) {
			return "Unknown interval", nil
		}
		sub, err := h.store.UpdateUser(ctx, userID, model.Update{IntervalMinutes: &minutes})
		if err != nil {
			return "", err
		}
		h.editSetup(cq, sub)
		return fmt.Sprintf("Updates every %d min(s)", minutes), nil
	}

	log.LogDebug("Unknown callback data", zap.String("data", data))
	return "", nil
}

// editSetup redraws the /setup message the button belongs to.
func (h *Handler) editSetup(cq *tgbotapi.CallbackQuery, sub *model.Subscription) {
	if cq.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID,
		setupText(sub), setupKeyboard(sub))
	edit.ParseMode = tgbotapi.ModeMarkdown
	h.send(edit)
}

func (h *Handler) editKeyboard(cq *tgbotapi.CallbackQuery, markup tgbotapi.InlineKeyboardMarkup) {
	if cq.Message == nil {
		return
	}
	h.send(tgbotapi.NewEditMessageReplyMarkup(cq.Message.Chat.ID, cq.Message.MessageID, markup))
}
