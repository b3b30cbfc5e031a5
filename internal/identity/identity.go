// Package identity resolves channel users against the platform's patient
// registry. When no registry is configured users get locally minted ids.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// Registrar obtains a stable external user id for a channel user seen for
// the first time.
type Registrar interface {
	Register(ctx context.Context, tenantName string, user messaging.ChannelUser) (string, error)
}

// Client registers users against the identity service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *slog.Logger
}

// NewClient creates an identity service client.
func NewClient(baseURL, apiKey string, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With(slog.String("component", "identity")),
	}
}

type registerRequest struct {
	Tenant        string `json:"tenant"`
	ChannelUserID string `json:"channel_user_id"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
}

// Register creates or looks up the user in the registry and returns its id.
// Transport and non-2xx failures classify as external-service errors so the
// queue retries them.
func (c *Client) Register(ctx context.Context, tenantName string, user messaging.ChannelUser) (string, error) {
	body, err := json.Marshal(registerRequest{
		Tenant:        tenantName,
		ChannelUserID: user.ChannelUserID,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Phone:         user.Phone,
		Email:         user.Email,
	})
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, err, "marshal register request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/users/register", bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, err, "build register request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.KindExternalService, err, "identity register")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errs.New(errs.KindExternalService, "identity register failed: %d %s", resp.StatusCode, respBody)
	}

	var parsed registerResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errs.Wrap(errs.KindExternalService, err, "decode register response")
	}
	if parsed.UserID == "" {
		return "", errs.New(errs.KindExternalService, "identity register returned empty user id")
	}
	return parsed.UserID, nil
}

// LocalRegistrar mints ids without an external registry.
type LocalRegistrar struct{}

func (LocalRegistrar) Register(ctx context.Context, tenantName string, user messaging.ChannelUser) (string, error) {
	return uuid.NewString(), nil
}

// FromConfig picks the HTTP client when a base URL is configured and the
// local registrar otherwise.
func FromConfig(baseURL, apiKey string, log *slog.Logger) Registrar {
	if baseURL == "" {
		return LocalRegistrar{}
	}
	return NewClient(baseURL, apiKey, log)
}
