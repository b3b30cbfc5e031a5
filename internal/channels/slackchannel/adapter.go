// Package slackchannel implements the Slack channel adapter on the Events
// API: threaded conversations in, chat.postMessage replies out.
package slackchannel

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

// messagePoster is the slice of the Slack client the adapter uses.
type messagePoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// newClient is swapped out in tests.
var newClient = func(token string) messagePoster {
	return slack.New(token)
}

// Adapter posts thread replies through the Slack Web API and verifies
// inbound events with the tenant's signing secret.
type Adapter struct {
	conv *Converter
	log  *slog.Logger
}

// NewAdapter creates the Slack adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	return &Adapter{
		conv: NewConverter(),
		log:  log.With(slog.String("component", "channels.slack")),
	}
}

func (a *Adapter) Kind() messaging.ChannelKind { return messaging.ChannelSlack }

func (a *Adapter) Init(ctx context.Context, tenant tenants.Tenant) error {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return errs.New(errs.KindValidation, "tenant %s has no %s credentials", tenant.Name, a.Kind())
	}
	if creds.BotToken == "" || creds.SigningSecret == "" {
		return errs.New(errs.KindValidation, "tenant %s: slack requires bot_token and signing_secret", tenant.Name)
	}
	return nil
}

// SetupWebhook is a no-op: the Events API request URL is configured in the
// Slack app manifest. The computed URL is logged for the operator.
func (a *Adapter) SetupWebhook(ctx context.Context, tenant tenants.Tenant, publicBaseURL string) error {
	creds, _ := tenant.Credentials(a.Kind())
	a.log.Info("slack event subscription URL must be set in the app manifest",
		slog.String("tenant", tenant.Name),
		slog.String("url", channels.ReceiveURL(publicBaseURL, tenant.Name, a.Kind(), creds.URLToken)))
	return nil
}

func (a *Adapter) Authenticator(tenant tenants.Tenant) channels.Authenticator {
	creds, _ := tenant.Credentials(a.Kind())
	return &signatureAuthenticator{
		secret: creds.SigningSecret,
		tokens: channels.WebhookTokens{HeaderToken: creds.HeaderToken, URLToken: creds.URLToken},
	}
}

func (a *Adapter) Converter() channels.Converter { return a.conv }

func (a *Adapter) ProcessIncoming(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

func (a *Adapter) ProcessOutgoing(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

// Send posts the reply into the originating thread. The returned message
// timestamp doubles as the provider message id.
func (a *Adapter) Send(ctx context.Context, tenant tenants.Tenant, channelUserID string, payload []byte) messaging.ProviderResponse {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return messaging.ProviderResponse{OK: false, Body: "missing slack credentials"}
	}
	var out outboundPayload
	if err := json.Unmarshal(payload, &out); err != nil {
		return messaging.ProviderResponse{OK: false, Body: "bad slack payload: " + err.Error()}
	}

	options := []slack.MsgOption{slack.MsgOptionText(out.Text, false)}
	if out.ThreadTS != "" {
		options = append(options, slack.MsgOptionTS(out.ThreadTS))
	}

	client := newClient(creds.BotToken)
	_, ts, err := client.PostMessageContext(ctx, out.Channel, options...)
	if err != nil {
		a.log.Warn("slack send failed",
			slog.String("tenant", tenant.Name),
			slog.String("error", err.Error()))
		return messaging.ProviderResponse{OK: false, Body: err.Error()}
	}
	return messaging.ProviderResponse{OK: true, MessageID: ts, StatusCode: 200}
}

// Acknowledge answers the Events API url_verification handshake with the
// challenge; everything else gets a plain 200.
func (a *Adapter) Acknowledge(r channels.AuthRequest) messaging.Acknowledgement {
	var env eventEnvelope
	if err := json.Unmarshal(r.Body, &env); err == nil && env.Type == "url_verification" {
		return messaging.Acknowledgement{
			ShouldAcknowledge: true,
			StatusCode:        200,
			Message:           env.Challenge,
		}
	}
	return messaging.AckOK()
}

// signatureAuthenticator verifies the v0 request signature Slack computes
// over the timestamp and raw body.
type signatureAuthenticator struct {
	secret string
	tokens channels.WebhookTokens
}

func (a *signatureAuthenticator) Authenticate(r channels.AuthRequest) error {
	sv, err := slack.NewSecretsVerifier(r.Headers, a.secret)
	if err != nil {
		return errs.Wrap(errs.KindUnauthorized, err, "slack signature headers")
	}
	if _, err := sv.Write(r.Body); err != nil {
		return errs.Wrap(errs.KindUnauthorized, err, "slack signature body")
	}
	if err := sv.Ensure(); err != nil {
		return errs.Wrap(errs.KindUnauthorized, err, "slack signature mismatch")
	}
	return nil
}

func (a *signatureAuthenticator) Tokens() channels.WebhookTokens {
	return a.tokens
}
