// Package whatsappd360 implements the WhatsApp channel adapter for tenants
// onboarded through the 360dialog Business Solution Provider. The wire
// format is the same Cloud API payload; authentication and sending go
// through the 360dialog gateway with a D360-API-KEY header.
package whatsappd360

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/channels/whatsapp"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

const defaultBaseURL = "https://waba.360dialog.io"

// Adapter sends through the 360dialog WABA gateway and registers the
// webhook URL with its configuration API.
type Adapter struct {
	conv    *whatsapp.Converter
	client  *http.Client
	baseURL string
	log     *slog.Logger
}

// NewAdapter creates the 360dialog adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	return &Adapter{
		conv:    whatsapp.NewConverter(messaging.ChannelWhatsAppD360),
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
		log:     log.With(slog.String("component", "channels.whatsapp_d360")),
	}
}

func (a *Adapter) Kind() messaging.ChannelKind { return messaging.ChannelWhatsAppD360 }

func (a *Adapter) Init(ctx context.Context, tenant tenants.Tenant) error {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return errs.New(errs.KindValidation, "tenant %s has no %s credentials", tenant.Name, a.Kind())
	}
	if creds.APIKey == "" {
		return errs.New(errs.KindValidation, "tenant %s: whatsapp_d360 requires api_key", tenant.Name)
	}
	return nil
}

// SetupWebhook registers the receive URL with the 360dialog configuration
// API so future deliveries hit this gateway.
func (a *Adapter) SetupWebhook(ctx context.Context, tenant tenants.Tenant, publicBaseURL string) error {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return errs.New(errs.KindValidation, "tenant %s has no %s credentials", tenant.Name, a.Kind())
	}
	receiveURL := channels.ReceiveURL(publicBaseURL, tenant.Name, a.Kind(), creds.URLToken)

	body, err := json.Marshal(map[string]any{
		"url":     receiveURL,
		"headers": map[string]string{"D360-Webhook-Token": creds.HeaderToken},
	})
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "marshal webhook config")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base(creds)+"/v1/configs/webhook", bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "build webhook config request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("D360-API-KEY", creds.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindExternalService, err, "configure 360dialog webhook")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errs.New(errs.KindExternalService, "360dialog webhook config failed: %d %s", resp.StatusCode, respBody)
	}
	a.log.Info("360dialog webhook configured",
		slog.String("tenant", tenant.Name),
		slog.String("url", receiveURL))
	return nil
}

// Authenticator checks the webhook token 360dialog echoes back in the
// header we registered with SetupWebhook.
func (a *Adapter) Authenticator(tenant tenants.Tenant) channels.Authenticator {
	creds, _ := tenant.Credentials(a.Kind())
	return channels.NewTokenAuthenticator("D360-Webhook-Token",
		channels.WebhookTokens{HeaderToken: creds.HeaderToken, URLToken: creds.URLToken})
}

func (a *Adapter) Converter() channels.Converter { return a.conv }

func (a *Adapter) ProcessIncoming(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

func (a *Adapter) ProcessOutgoing(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

// Send POSTs the Cloud API payload to the 360dialog messages endpoint.
func (a *Adapter) Send(ctx context.Context, tenant tenants.Tenant, channelUserID string, payload []byte) messaging.ProviderResponse {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return messaging.ProviderResponse{OK: false, Body: "missing whatsapp_d360 credentials"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base(creds)+"/messages", bytes.NewReader(payload))
	if err != nil {
		return messaging.ProviderResponse{OK: false, Body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("D360-API-KEY", creds.APIKey)

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
	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Messages) > 0 {
		result.MessageID = parsed.Messages[0].ID
	}
	if !result.OK {
		a.log.Warn("360dialog send failed",
			slog.String("tenant", tenant.Name),
			slog.Int("status", resp.StatusCode))
	}
	return result
}

func (a *Adapter) Acknowledge(r channels.AuthRequest) messaging.Acknowledgement {
	return messaging.AckOK()
}

func (a *Adapter) base(creds tenants.ChannelCredentials) string {
	if creds.BaseURL != "" {
		return creds.BaseURL
	}
	return a.baseURL
}
