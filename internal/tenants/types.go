// Package tenants manages tenant accounts and their per-channel provider
// credentials.
package tenants

import (
	"time"

	"github.com/reanhealth/botgateway/internal/messaging"
)

// ChannelCredentials holds one tenant's secrets for a single provider.
// Field use varies per provider; unused fields stay empty.
type ChannelCredentials struct {
	// BotToken is the provider API bearer/bot token used for sending.
	BotToken string `json:"bot_token,omitempty"`
	// AppSecret signs webhook bodies (WhatsApp Cloud X-Hub-Signature-256).
	AppSecret string `json:"app_secret,omitempty"`
	// SigningSecret verifies Slack request signatures.
	SigningSecret string `json:"signing_secret,omitempty"`
	// APIKey authenticates against provider configuration APIs (D360).
	APIKey string `json:"api_key,omitempty"`
	// VerifyToken answers GET verification handshakes.
	VerifyToken string `json:"verify_token,omitempty"`
	// HeaderToken is the shared secret expected in a provider header.
	HeaderToken string `json:"header_token,omitempty"`
	// URLToken is the secret path segment embedded in the webhook URL.
	URLToken string `json:"url_token,omitempty"`
	// PhoneNumberID addresses the WhatsApp Cloud sender number.
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	// BaseURL overrides the provider API base (D360 sandbox vs production).
	BaseURL string `json:"base_url,omitempty"`
}

// Tenant is an isolated customer account owning its own data partition and
// provider credentials.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// DSN optionally points the tenant at its own database; empty uses the
	// shared default pool.
	DSN       string                                           `json:"dsn,omitempty"`
	Channels  map[messaging.ChannelKind]ChannelCredentials     `json:"channels"`
	CreatedAt time.Time                                        `json:"created_at"`
	UpdatedAt time.Time                                        `json:"updated_at"`
}

// Credentials returns the tenant's credentials for the given channel.
func (t Tenant) Credentials(kind messaging.ChannelKind) (ChannelCredentials, bool) {
	if t.Channels == nil {
		return ChannelCredentials{}, false
	}
	creds, ok := t.Channels[kind]
	return creds, ok
}

// UpsertRequest is the admin input for creating or updating a tenant.
type UpsertRequest struct {
	Name     string                                       `json:"name" validate:"required"`
	DSN      string                                       `json:"dsn,omitempty"`
	Channels map[messaging.ChannelKind]ChannelCredentials `json:"channels,omitempty"`
}
