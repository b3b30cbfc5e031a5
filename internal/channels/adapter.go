// Package channels provides the provider-adapter abstraction: per-provider
// webhook authentication, wire-format conversion to and from the canonical
// message model, and outbound delivery.
package channels

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

// WebhookTokens are the shared secrets used to verify inbound webhook calls
// and to register the expected webhook URL with the provider.
type WebhookTokens struct {
	HeaderToken string
	URLToken    string
}

// AuthRequest carries the parts of a webhook delivery that authentication
// and acknowledgment logic inspect.
type AuthRequest struct {
	Body    []byte
	Headers http.Header
	Query   url.Values
}

// Authenticator verifies webhook authenticity for one provider and tenant.
type Authenticator interface {
	// Authenticate returns an errs.KindUnauthorized error on mismatch.
	Authenticate(r AuthRequest) error
	Tokens() WebhookTokens
}

// Converter translates between a provider wire format and the canonical
// message model.
type Converter interface {
	// FromChannel parses a raw webhook payload. It returns (nil, nil) when
	// the payload carries no actionable message (handshakes, status-only
	// deliveries, bot echoes). Parse failures classify as errs.KindValidation.
	FromChannel(raw []byte) (*messaging.Message, error)
	// ToChannel serializes an outgoing message into the provider payload,
	// dispatching on content type with a text fallback for unsupported
	// combinations.
	ToChannel(msg *messaging.Message) ([]byte, error)
}

// StatusUpdate is a provider-reported delivery state change for a
// previously sent outbound message.
type StatusUpdate struct {
	ProviderMessageID string
	Status            messaging.DeliveryStatus
	RawStatus         string
	Timestamp         time.Time
	Recipient         string
}

// StatusReporter is implemented by converters whose providers deliver
// sent/delivered/read callbacks on the receive endpoint.
type StatusReporter interface {
	StatusUpdates(raw []byte) []StatusUpdate
}

// RawForwarder is an optional escape hatch for forwarding a pre-built
// provider payload unchanged.
type RawForwarder interface {
	SendRaw(ctx context.Context, tenant tenants.Tenant, body []byte) messaging.ProviderResponse
}

// Adapter is the per-provider capability bundle. Adapters own no durable
// state; they are pure transformers plus one outbound network call.
type Adapter interface {
	Kind() messaging.ChannelKind

	// Init performs lazy one-time setup for the tenant (credential checks,
	// client construction).
	Init(ctx context.Context, tenant tenants.Tenant) error

	// SetupWebhook registers the computed webhook URL, embedding the
	// tenant's URL token, with the provider's configuration API. A non-2xx
	// response yields errs.KindExternalService; retries are the caller's
	// call.
	SetupWebhook(ctx context.Context, tenant tenants.Tenant, publicBaseURL string) error

	// Authenticator returns the webhook authenticator for the tenant.
	Authenticator(tenant tenants.Tenant) Authenticator

	// Converter returns the wire-format converter.
	Converter() Converter

	// ProcessIncoming runs the provider-specific pre-processing pass after
	// generic conversion.
	ProcessIncoming(ctx context.Context, msg *messaging.Message) (*messaging.Message, error)

	// ProcessOutgoing runs the symmetric post-processing pass before send.
	ProcessOutgoing(ctx context.Context, msg *messaging.Message) (*messaging.Message, error)

	// Send performs the outbound provider call. Failures are reported via
	// ProviderResponse.OK=false, never an error, so callers decide on retry.
	Send(ctx context.Context, tenant tenants.Tenant, channelUserID string, payload []byte) messaging.ProviderResponse

	// Acknowledge inspects a webhook delivery and tells the endpoint how to
	// answer the provider (handshake challenge echo, status receipt, plain
	// 200).
	Acknowledge(r AuthRequest) messaging.Acknowledgement
}

// ReceiveURL builds the tenant's receive endpoint for a channel, embedding
// the per-tenant URL token.
func ReceiveURL(publicBaseURL, tenantName string, kind messaging.ChannelKind, urlToken string) string {
	return publicBaseURL + "/v1/" + url.PathEscape(tenantName) + "/" + string(kind) + "/" + url.PathEscape(urlToken) + "/receive"
}
