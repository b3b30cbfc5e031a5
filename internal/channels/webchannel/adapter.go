// Package webchannel implements the embedded web-widget channel: inbound
// messages arrive on the webhook endpoint like every other channel, replies
// are pushed over the user's websocket.
package webchannel

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

// wireMessage is the JSON frame exchanged with the web widget in both
// directions.
type wireMessage struct {
	MessageID   string         `json:"message_id,omitempty"`
	UserID      string         `json:"user_id"`
	ContentType string         `json:"content_type,omitempty"`
	Content     string         `json:"content"`
	Options     []string       `json:"options,omitempty"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Converter translates web-widget frames to and from the canonical model.
type Converter struct{}

// NewConverter creates a web converter.
func NewConverter() *Converter {
	return &Converter{}
}

// FromChannel parses a widget frame. A missing user id classifies as a
// validation failure; a missing message id gets one minted so dedupe still
// has a stable key.
func (c *Converter) FromChannel(raw []byte) (*messaging.Message, error) {
	var in wireMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "parse web payload")
	}
	if in.UserID == "" {
		return nil, errs.New(errs.KindValidation, "web payload is missing user_id")
	}
	if in.Content == "" {
		return nil, nil
	}

	contentType := messaging.ContentType(in.ContentType)
	if contentType == "" {
		contentType = messaging.ContentText
	}
	messageID := in.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	meta := in.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return &messaging.Message{
		Direction:         messaging.DirectionIn,
		Channel:           messaging.ChannelWeb,
		ChannelUserID:     in.UserID,
		ContentType:       contentType,
		Content:           in.Content,
		ProviderMessageID: messageID,
		Timestamp:         ts,
		Metadata:          meta,
	}, nil
}

// ToChannel serializes an outgoing message into a widget frame.
func (c *Converter) ToChannel(msg *messaging.Message) ([]byte, error) {
	out := wireMessage{
		MessageID:   msg.ID,
		UserID:      msg.ChannelUserID,
		ContentType: string(msg.ContentType),
		Content:     msg.Content,
		Timestamp:   msg.Timestamp,
	}
	if msg.ContentType == messaging.ContentOptionsUI {
		if raw, ok := msg.Metadata["options"]; ok {
			switch opts := raw.(type) {
			case []string:
				out.Options = opts
			case []any:
				for _, o := range opts {
					if s, ok := o.(string); ok {
						out.Options = append(out.Options, s)
					}
				}
			}
		}
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "marshal web payload")
	}
	return body, nil
}

// Adapter pushes replies through the websocket hub.
type Adapter struct {
	conv *Converter
	hub  *Hub
	log  *slog.Logger
}

// NewAdapter creates the web adapter around a connection hub.
func NewAdapter(hub *Hub, log *slog.Logger) *Adapter {
	return &Adapter{
		conv: NewConverter(),
		hub:  hub,
		log:  log.With(slog.String("component", "channels.web")),
	}
}

func (a *Adapter) Kind() messaging.ChannelKind { return messaging.ChannelWeb }

// Hub exposes the connection hub to the websocket endpoint.
func (a *Adapter) Hub() *Hub { return a.hub }

func (a *Adapter) Init(ctx context.Context, tenant tenants.Tenant) error {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return errs.New(errs.KindValidation, "tenant %s has no %s credentials", tenant.Name, a.Kind())
	}
	if creds.HeaderToken == "" {
		return errs.New(errs.KindValidation, "tenant %s: web requires header_token", tenant.Name)
	}
	return nil
}

// SetupWebhook is a no-op: the widget is configured with the receive URL
// directly.
func (a *Adapter) SetupWebhook(ctx context.Context, tenant tenants.Tenant, publicBaseURL string) error {
	return nil
}

func (a *Adapter) Authenticator(tenant tenants.Tenant) channels.Authenticator {
	creds, _ := tenant.Credentials(a.Kind())
	return channels.NewTokenAuthenticator("X-Widget-Token",
		channels.WebhookTokens{HeaderToken: creds.HeaderToken, URLToken: creds.URLToken})
}

func (a *Adapter) Converter() channels.Converter { return a.conv }

func (a *Adapter) ProcessIncoming(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

func (a *Adapter) ProcessOutgoing(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

// Send pushes the frame to the user's websocket. An absent connection is a
// failed send so the queue retries while the user reconnects.
func (a *Adapter) Send(ctx context.Context, tenant tenants.Tenant, channelUserID string, payload []byte) messaging.ProviderResponse {
	if !a.hub.Push(tenant.ID, channelUserID, payload) {
		return messaging.ProviderResponse{OK: false, Body: "user not connected"}
	}
	return messaging.ProviderResponse{OK: true, MessageID: uuid.NewString(), StatusCode: 200}
}

func (a *Adapter) Acknowledge(r channels.AuthRequest) messaging.Acknowledgement {
	return messaging.AckOK()
}
