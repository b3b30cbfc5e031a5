package channels

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/reanhealth/botgateway/internal/errs"
)

// SecureCompare reports whether two secrets match in constant time.
func SecureCompare(a, b string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SignHMACSHA256 returns the lowercase hex HMAC-SHA256 of body.
func SignHMACSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// TokenAuthenticator verifies a shared token carried in a request header.
// Used by providers without body signing (Telegram secret token, D360 API
// key header).
type TokenAuthenticator struct {
	header string
	tokens WebhookTokens
}

// NewTokenAuthenticator creates a header-token authenticator.
func NewTokenAuthenticator(header string, tokens WebhookTokens) *TokenAuthenticator {
	return &TokenAuthenticator{header: header, tokens: tokens}
}

// Authenticate compares the configured header against the expected token.
func (a *TokenAuthenticator) Authenticate(r AuthRequest) error {
	got := strings.TrimSpace(r.Headers.Get(a.header))
	if got == "" {
		return errs.New(errs.KindUnauthorized, "missing %s header", a.header)
	}
	if !SecureCompare(got, a.tokens.HeaderToken) {
		return errs.New(errs.KindUnauthorized, "%s token mismatch", a.header)
	}
	return nil
}

// Tokens returns the authenticator's webhook tokens.
func (a *TokenAuthenticator) Tokens() WebhookTokens {
	return a.tokens
}

// HMACAuthenticator verifies an HMAC-SHA256 signature over the raw body
// against a provider signature header (WhatsApp Cloud X-Hub-Signature-256).
type HMACAuthenticator struct {
	header string
	prefix string
	secret string
	tokens WebhookTokens
}

// NewHMACAuthenticator creates a body-signature authenticator. prefix is
// stripped from the header value before comparison (e.g. "sha256=").
func NewHMACAuthenticator(header, prefix, secret string, tokens WebhookTokens) *HMACAuthenticator {
	return &HMACAuthenticator{header: header, prefix: prefix, secret: secret, tokens: tokens}
}

// Authenticate recomputes the body signature and compares in constant time.
func (a *HMACAuthenticator) Authenticate(r AuthRequest) error {
	got := strings.TrimSpace(r.Headers.Get(a.header))
	if got == "" {
		return errs.New(errs.KindUnauthorized, "missing %s header", a.header)
	}
	got = strings.TrimPrefix(got, a.prefix)
	want := SignHMACSHA256(a.secret, r.Body)
	if !SecureCompare(strings.ToLower(got), want) {
		return errs.New(errs.KindUnauthorized, "%s signature mismatch", a.header)
	}
	return nil
}

// Tokens returns the authenticator's webhook tokens.
func (a *HMACAuthenticator) Tokens() WebhookTokens {
	return a.tokens
}
