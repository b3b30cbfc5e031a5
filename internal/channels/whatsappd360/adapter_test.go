package whatsappd360

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

func tenantWithBase(baseURL string) tenants.Tenant {
	return tenants.Tenant{
		ID:   "t1",
		Name: "clinic-b",
		Channels: map[messaging.ChannelKind]tenants.ChannelCredentials{
			messaging.ChannelWhatsAppD360: {
				APIKey:      "d360-key",
				HeaderToken: "webhook-secret",
				URLToken:    "url-token",
				BaseURL:     baseURL,
			},
		},
	}
}

func TestSetupWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/configs/webhook", r.URL.Path)
		assert.Equal(t, "d360-key", r.Header.Get("D360-API-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewAdapter(slog.Default())
	err := adapter.SetupWebhook(context.Background(), tenantWithBase(srv.URL), "https://bots.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://bots.example.com/v1/clinic-b/whatsapp_d360/url-token/receive", got["url"])
}

func TestSetupWebhookProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	adapter := NewAdapter(slog.Default())
	err := adapter.SetupWebhook(context.Background(), tenantWithBase(srv.URL), "https://bots.example.com")
	assert.Error(t, err)
}

func TestSendUsesAPIKeyHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "d360-key", r.Header.Get("D360-API-KEY"))
		w.Write([]byte(`{"messages":[{"id":"wamid.D360"}]}`))
	}))
	defer srv.Close()

	adapter := NewAdapter(slog.Default())
	resp := adapter.Send(context.Background(), tenantWithBase(srv.URL), "15551234567", []byte(`{}`))
	assert.True(t, resp.OK)
	assert.Equal(t, "wamid.D360", resp.MessageID)
}

func TestAuthenticatorChecksHeaderToken(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(slog.Default())
	auth := adapter.Authenticator(tenantWithBase(""))

	req := channels.AuthRequest{Headers: http.Header{}}
	req.Headers.Set("D360-Webhook-Token", "webhook-secret")
	assert.NoError(t, auth.Authenticate(req))

	req.Headers.Set("D360-Webhook-Token", "wrong")
	assert.Error(t, auth.Authenticate(req))
}

func TestConverterSharesCloudFormat(t *testing.T) {
	t.Parallel()

	payload := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {"messages": [{
	    "from": "15551234567", "id": "wamid.1", "timestamp": "1724929200",
	    "type": "text", "text": {"body": "hi"}
	  }]}}]}]
	}`

	adapter := NewAdapter(slog.Default())
	msg, err := adapter.Converter().FromChannel([]byte(payload))
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, messaging.ChannelWhatsAppD360, msg.Channel)
	assert.Equal(t, "hi", msg.Content)
}
