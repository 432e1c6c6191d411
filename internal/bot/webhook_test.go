package bot

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

type fakeWebhookAPI struct {
	endpoint string
	params   tgbotapi.Params
	requests []tgbotapi.Chattable
	resp     *tgbotapi.APIResponse
	info     tgbotapi.WebhookInfo
	err      error
}

func (f *fakeWebhookAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.endpoint, f.params = endpoint, params
	return f.resp, f.err
}

func (f *fakeWebhookAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return f.resp, f.err
}

func (f *fakeWebhookAPI) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return f.info, f.err
}

func TestSetWebhook(t *testing.T) {
	api := &fakeWebhookAPI{resp: &tgbotapi.APIResponse{Ok: true}}

	require.NoError(t, SetWebhook(api, "https://bot.example.com/api/webhook", "s3cret", true))
	require.Equal(t, "setWebhook", api.endpoint)
	require.Equal(t, "https://bot.example.com/api/webhook", api.params["url"])
	require.Equal(t, "s3cret", api.params["secret_token"])
	require.Equal(t, "true", api.params["drop_pending_updates"])
	require.Equal(t, `["message","callback_query"]`, api.params["allowed_updates"])
}

func TestSetWebhook_Errors(t *testing.T) {
	require.Error(t, SetWebhook(&fakeWebhookAPI{}, "", "", false))

	rejected := &fakeWebhookAPI{resp: &tgbotapi.APIResponse{Ok: false, Description: "bad webhook: HTTPS url must be provided"}}
	require.ErrorContains(t, SetWebhook(rejected, "http://insecure", "", false), "HTTPS url must be provided")

	failing := &fakeWebhookAPI{err: errors.New("network down")}
	require.ErrorContains(t, SetWebhook(failing, "https://x", "", false), "network down")

	params := (&fakeWebhookAPI{resp: &tgbotapi.APIResponse{Ok: true}})
	require.NoError(t, SetWebhook(params, "https://x", "", false))
	_, hasSecret := params.params["secret_token"]
	require.False(t, hasSecret)
}

func TestDeleteWebhook(t *testing.T) {
	api := &fakeWebhookAPI{resp: &tgbotapi.APIResponse{Ok: true}}

	require.NoError(t, DeleteWebhook(api, true))
	require.Len(t, api.requests, 1)
	require.Equal(t, tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}, api.requests[0])
}

func TestGetWebhookStatus(t *testing.T) {
	api := &fakeWebhookAPI{info: tgbotapi.WebhookInfo{
		URL:                "https://bot.example.com/api/webhook",
		PendingUpdateCount: 3,
		LastErrorMessage:   "Wrong response from the webhook: 502 Bad Gateway",
	}}

	status, err := GetWebhookStatus(api)
	require.NoError(t, err)
	require.Equal(t, 3, status.PendingUpdateCount)
	require.Contains(t, status.String(), `"last_error_message": "Wrong response from the webhook: 502 Bad Gateway"`)
}
