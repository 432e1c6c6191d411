package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"price-bot/internal/model"
	"price-bot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

const (
	testUser  int64 = 42
	testChat  int64 = 4242
	testAdmin int64 = 7
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	panics   bool
}

func (f *fakeTransport) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.panics {
		panic("transport exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTransport) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTransport) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	switch c := f.sent[len(f.sent)-1].(type) {
	case tgbotapi.MessageConfig:
		return c.Text
	case tgbotapi.EditMessageTextConfig:
		return c.Text
	}
	t.Fatalf("unexpected chattable %T", f.sent[len(f.sent)-1])
	return ""
}

func newHandler(t *testing.T) (*Handler, *fakeTransport, *storage.BuntStorage) {
	t.Helper()
	store, err := storage.NewBuntStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	transport := &fakeTransport{}
	h := NewHandler(transport, store, Options{AdminID: testAdmin, DefaultCoin: "BTC", DefaultInterval: 1})
	return h, transport, store
}

func commandUpdate(from int64, text string) tgbotapi.Update {
	length := strings.IndexByte(text, ' ')
	if length < 0 {
		length = len(text)
	}
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 10,
			From:      &tgbotapi.User{ID: from},
			Chat:      &tgbotapi.Chat{ID: testChat},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
		},
	}
}

func callbackUpdate(data string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 2,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			From: &tgbotapi.User{ID: testUser},
			Message: &tgbotapi.Message{
				MessageID: 11,
				Chat:      &tgbotapi.Chat{ID: testChat},
			},
			Data: data,
		},
	}
}

func getSub(t *testing.T, store *storage.BuntStorage) *model.Subscription {
	t.Helper()
	sub, err := store.GetUser(context.Background(), "42")
	require.NoError(t, err)
	return sub
}

func TestStart_CreatesWithDefaults(t *testing.T) {
	h, transport, store := newHandler(t)

	h.HandleUpdate(context.Background(), commandUpdate(testUser, "/start"))

	sub := getSub(t, store)
	require.Equal(t, "4242", sub.ChannelID)
	require.Equal(t, "BTC", sub.CoinSymbol)
	require.Equal(t, 1, sub.IntervalMinutes)
	require.True(t, sub.IsActive)
	require.Nil(t, sub.LastPostedAt)
	require.Contains(t, transport.lastText(t), "Welcome to CryptoBot")
}

func TestStart_KeepsExistingSettings(t *testing.T) {
	h, _, store := newHandler(t)
	ctx := context.Background()

	h.HandleUpdate(ctx, commandUpdate(testUser, "/start"))
	h.HandleUpdate(ctx, commandUpdate(testUser, "/coin eth"))
	h.HandleUpdate(ctx, commandUpdate(testUser, "/start"))

	require.Equal(t, "ETH", getSub(t, store).CoinSymbol)
	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalUsers)
}

func TestPlainText_NoMutationNoReply(t *testing.T) {
	h, transport, store := newHandler(t)

	h.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: 3,
		Message: &tgbotapi.Message{
			MessageID: 12,
			From:      &tgbotapi.User{ID: testUser},
			Chat:      &tgbotapi.Chat{ID: testChat},
			Text:      "hello",
		},
	})

	require.Empty(t, transport.sent)
	_, err := store.GetUser(context.Background(), "42")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommandsWithoutSubscription(t *testing.T) {
	h, transport, _ := newHandler(t)

	for _, cmd := range []string{"/setup", "/status", "/coin ETH", "/interval 5", "/off"} {
		h.HandleUpdate(context.Background(), commandUpdate(testUser, cmd))
		require.Equal(t, startFirstText, transport.lastText(t), cmd)
	}
}

func TestSetup_ShowsKeyboard(t *testing.T) {
	h, transport, _ := newHandler(t)
	ctx := context.Background()
	h.HandleUpdate(ctx, commandUpdate(testUser, "/start"))
	h.HandleUpdate(ctx, commandUpdate(testUser, "/setup"))

	msg, ok := transport.sent[len(transport.sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	require.Contains(t, msg.Text, "Coin: `BTC`")

	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 3)
	require.Equal(t, "🪙 Set Coin (BTC)", markup.InlineKeyboard[0][0].Text)
	require.Equal(t, callbackSetCoin, *markup.InlineKeyboard[0][0].CallbackData)
	require.Equal(t, callbackSetInterval, *markup.InlineKeyboard[1][0].CallbackData)
	require.Equal(t, "✅ Status: ON", markup.InlineKeyboard[2][0].Text)
}

func TestTextCommands_Mutate(t *testing.T) {
	h, transport, store := newHandler(t)
	ctx := context.Background()
	h.HandleUpdate(ctx, commandUpdate(testUser, "/start"))

	h.HandleUpdate(ctx, commandUpdate(testUser, "/coin sol"))
	require.Equal(t, "SOL", getSub(t, store).CoinSymbol)

	h.HandleUpdate(ctx, commandUpdate(testUser, "/coin $$"))
	require.Contains(t, transport.lastText(t), "Usage: /coin")
	require.Equal(t, "SOL", getSub(t, store).CoinSymbol)

	h.HandleUpdate(ctx, commandUpdate(testUser, "/coin xyz"))
	require.Equal(t, "XYZ", getSub(t, store).CoinSymbol)
	require.Contains(t, transport.lastText(t), "BTC quote")

	h.HandleUpdate(ctx, commandUpdate(testUser, "/interval 0"))
	require.Contains(t, transport.lastText(t), "Usage: /interval")
	h.HandleUpdate(ctx, commandUpdate(testUser, "/interval 15"))
	require.Equal(t, 15, getSub(t, store).IntervalMinutes)

	for _, bad := range []string{"/channel not a chat", "/channel @foo bar", "/channel @chan`nel"} {
		h.HandleUpdate(ctx, commandUpdate(testUser, bad))
		require.Contains(t, transport.lastText(t), "Usage: /channel", bad)
	}
	require.Equal(t, "4242", getSub(t, store).ChannelID)
	h.HandleUpdate(ctx, commandUpdate(testUser, "/channel @mychannel"))
	require.Equal(t, "@mychannel", getSub(t, store).ChannelID)

	h.HandleUpdate(ctx, commandUpdate(testUser, "/off"))
	require.False(t, getSub(t, store).IsActive)
	h.HandleUpdate(ctx, commandUpdate(testUser, "/on"))
	require.True(t, getSub(t, store).IsActive)

	h.HandleUpdate(ctx, commandUpdate(testUser, "/status"))
	require.Contains(t, transport.lastText(t), "Channel: `@mychannel`")
}

func TestStats_AdminOnly(t *testing.T) {
	h, transport, _ := newHandler(t)
	ctx := context.Background()
	h.HandleUpdate(ctx, commandUpdate(testUser, "/start"))
	before := len(transport.sent)

	h.HandleUpdate(ctx, commandUpdate(testUser, "/stats"))
	require.Len(t, transport.sent, before)

	h.HandleUpdate(ctx, commandUpdate(testAdmin, "/stats"))
	require.Equal(t, "📈 Active subscriptions: 1\n👥 Total users: 1", transport.lastText(t))
}

func TestCallbacks(t *testing.T) {
	h, transport, store := newHandler(t)
	ctx := context.Background()
	h.HandleUpdate(ctx, commandUpdate(testUser, "/start"))

	h.HandleUpdate(ctx, callbackUpdate(callbackToggleStatus))
	require.False(t, getSub(t, store).IsActive)
	require.Contains(t, transport.lastText(t), "⛔ Status: OFF")

	h.HandleUpdate(ctx, callbackUpdate("interval:60"))
	require.Equal(t, 60, getSub(t, store).IntervalMinutes)

	h.HandleUpdate(ctx, callbackUpdate("coin:DOGE"))
	require.Equal(t, "DOGE", getSub(t, store).CoinSymbol)

	h.HandleUpdate(ctx, callbackUpdate("interval:-3"))
	require.Equal(t, 60, getSub(t, store).IntervalMinutes)

	// every callback is answered
	require.Len(t, transport.requests, 4)
	answer, ok := transport.requests[1].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	require.Equal(t, "cb-1", answer.CallbackQueryID)
	require.Equal(t, "Updates every 60 min(s)", answer.Text)
}

func TestCallback_SetCoinShowsChoices(t *testing.T) {
	h, transport, _ := newHandler(t)
	ctx := context.Background()
	h.HandleUpdate(ctx, commandUpdate(testUser, "/start"))

	h.HandleUpdate(ctx, callbackUpdate(callbackSetCoin))

	edit, ok := transport.sent[len(transport.sent)-1].(tgbotapi.EditMessageReplyMarkupConfig)
	require.True(t, ok)
	rows := edit.ReplyMarkup.InlineKeyboard
	require.Equal(t, "coin:BTC", *rows[0][0].CallbackData)
	require.Equal(t, "coin:ETH", *rows[0][1].CallbackData)
	require.Equal(t, callbackBack, *rows[len(rows)-1][0].CallbackData)
}

func TestCallback_WithoutSubscription(t *testing.T) {
	h, transport, _ := newHandler(t)

	h.HandleUpdate(context.Background(), callbackUpdate(callbackToggleStatus))

	require.Len(t, transport.requests, 1)
	require.Equal(t, startFirstText, transport.requests[0].(tgbotapi.CallbackConfig).Text)
}

func TestHandleUpdate_RecoversPanic(t *testing.T) {
	h, transport, _ := newHandler(t)
	transport.panics = true

	require.NotPanics(t, func() {
		h.HandleUpdate(context.Background(), commandUpdate(testUser, "/help"))
	})
}

type fakeSource struct {
	updates chan tgbotapi.Update
	stopped chan struct{}
}

func (f *fakeSource) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeSource) StopReceivingUpdates() { close(f.stopped) }

func TestRunPolling(t *testing.T) {
	h, _, store := newHandler(t)
	source := &fakeSource{updates: make(chan tgbotapi.Update), stopped: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPolling(ctx, source, h)
		close(done)
	}()

	source.updates <- commandUpdate(testUser, "/start")
	require.Eventually(t, func() bool {
		_, err := store.GetUser(context.Background(), "42")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	<-source.stopped
}
