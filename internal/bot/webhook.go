package bot

import (
	"encoding/json"
	"fmt"

	log "price-bot/internal/infra/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// WebhookAPI is the part of *tgbotapi.BotAPI used to manage the webhook registration.
type WebhookAPI interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// AllowedUpdates are the update kinds the handler acts on.
var AllowedUpdates = []string{"message", "callback_query"}

// SetWebhook points Telegram at url. A non-empty secret is echoed back by Telegram
// in the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func SetWebhook(api WebhookAPI, url, secret string, dropPending bool) error {
	if url == "" {
		return fmt.Errorf("webhook url is empty")
	}

	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	params.AddBool("drop_pending_updates", dropPending)
	if err := params.AddInterface("allowed_updates", AllowedUpdates); err != nil {
		return fmt.Errorf("failed to encode allowed updates: %w", err)
	}

	resp, err := api.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("setWebhook failed: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("setWebhook rejected: %s", resp.Description)
	}

	log.LogSuccess("Webhook registered", zap.String("url", url), zap.Bool("secret", secret != ""))
	return nil
}

// DeleteWebhook removes the registration; long polling needs it gone.
func DeleteWebhook(api WebhookAPI, dropPending bool) error {
	resp, err := api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending})
	if err != nil {
		return fmt.Errorf("deleteWebhook failed: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("deleteWebhook rejected: %s", resp.Description)
	}
	log.LogInfo("Webhook deleted")
	return nil
}

// WebhookStatus is a printable summary of getWebhookInfo.
type WebhookStatus struct {
	URL                string `json:"url"`
	PendingUpdateCount int    `json:"pending_update_count"`
	MaxConnections     int    `json:"max_connections,omitempty"`
	LastErrorDate      int    `json:"last_error_date,omitempty"`
	LastErrorMessage   string `json:"last_error_message,omitempty"`
}

func GetWebhookStatus(api WebhookAPI) (WebhookStatus, error) {
	info, err := api.GetWebhookInfo()
	if err != nil {
		return WebhookStatus{}, fmt.Errorf("getWebhookInfo failed: %w", err)
	}
	return WebhookStatus{
		URL:                info.URL,
		PendingUpdateCount: info.PendingUpdateCount,
		MaxConnections:     info.MaxConnections,
		LastErrorDate:      info.LastErrorDate,
		LastErrorMessage:   info.LastErrorMessage,
	}, nil
}

func (s WebhookStatus) String() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}
