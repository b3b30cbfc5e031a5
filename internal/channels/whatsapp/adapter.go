// Package whatsapp implements the WhatsApp Business Cloud API channel
// adapter.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v21.0"

// Adapter talks to the Meta Graph API for outbound sends and verifies
// inbound webhooks with the tenant's app secret.
type Adapter struct {
	conv    *Converter
	client  *http.Client
	baseURL string
	log     *slog.Logger
}

// NewAdapter creates the WhatsApp Cloud adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	return &Adapter{
		conv:    NewConverter(messaging.ChannelWhatsApp),
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultGraphBaseURL,
		log:     log.With(slog.String("component", "channels.whatsapp")),
	}
}

func (a *Adapter) Kind() messaging.ChannelKind { return messaging.ChannelWhatsApp }

// Init checks the tenant carries the credentials the adapter needs.
func (a *Adapter) Init(ctx context.Context, tenant tenants.Tenant) error {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return errs.New(errs.KindValidation, "tenant %s has no %s credentials", tenant.Name, a.Kind())
	}
	if creds.BotToken == "" || creds.PhoneNumberID == "" || creds.AppSecret == "" {
		return errs.New(errs.KindValidation, "tenant %s: whatsapp requires bot_token, phone_number_id and app_secret", tenant.Name)
	}
	return nil
}

// SetupWebhook is a no-op for the Cloud API: the callback URL is configured
// once per Meta app, not per phone number. The computed URL is logged so an
// operator can paste it into the app dashboard.
func (a *Adapter) SetupWebhook(ctx context.Context, tenant tenants.Tenant, publicBaseURL string) error {
	creds, _ := tenant.Credentials(a.Kind())
	a.log.Info("whatsapp webhook must be configured in the Meta app dashboard",
		slog.String("tenant", tenant.Name),
		slog.String("url", channels.ReceiveURL(publicBaseURL, tenant.Name, a.Kind(), creds.URLToken)))
	return nil
}

func (a *Adapter) Authenticator(tenant tenants.Tenant) channels.Authenticator {
	creds, _ := tenant.Credentials(a.Kind())
	return channels.NewHMACAuthenticator("X-Hub-Signature-256", "sha256=", creds.AppSecret,
		channels.WebhookTokens{HeaderToken: creds.HeaderToken, URLToken: creds.URLToken})
}

func (a *Adapter) Converter() channels.Converter { return a.conv }

func (a *Adapter) ProcessIncoming(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

func (a *Adapter) ProcessOutgoing(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

// Send POSTs the payload to the tenant's phone-number messages endpoint.
func (a *Adapter) Send(ctx context.Context, tenant tenants.Tenant, channelUserID string, payload []byte) messaging.ProviderResponse {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return messaging.ProviderResponse{OK: false, Body: "missing whatsapp credentials"}
	}
	url := a.baseURL + "/" + creds.PhoneNumberID + "/messages"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return messaging.ProviderResponse{OK: false, Body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.BotToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return messaging.ProviderResponse{OK: false, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	result := messaging.ProviderResponse{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Messages) > 0 {
		result.MessageID = parsed.Messages[0].ID
	}
	if !result.OK {
		a.log.Warn("whatsapp send failed",
			slog.String("tenant", tenant.Name),
			slog.Int("status", resp.StatusCode))
	}
	return result
}

// Acknowledge answers POST deliveries with a plain 200. The GET verification
// handshake is handled by the webhook endpoint itself because it needs the
// tenant's verify token.
func (a *Adapter) Acknowledge(r channels.AuthRequest) messaging.Acknowledgement {
	return messaging.AckOK()
}
