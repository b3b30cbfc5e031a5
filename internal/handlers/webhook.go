package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/queue"
	"github.com/reanhealth/botgateway/internal/tenants"
)

// maxWebhookBody caps inbound payloads; providers stay well under 1 MiB.
const maxWebhookBody = 1 << 20

// capturedHeaders are the provider headers worth keeping with a job for
// auditing and retry diagnostics.
var capturedHeaders = []string{
	"Content-Type",
	"User-Agent",
	"X-Hub-Signature-256",
	"X-Slack-Signature",
	"X-Slack-Request-Timestamp",
	"X-Telegram-Bot-Api-Secret-Token",
	"X-Request-Id",
}

func captureHeaders(src http.Header) map[string]string {
	out := map[string]string{}
	for _, name := range capturedHeaders {
		if v := src.Get(name); v != "" {
			out[name] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Enqueuer is the slice of the job queue the webhook endpoint uses.
type Enqueuer interface {
	Enqueue(job queue.Job) error
}

// TenantDirectory looks tenants up by the name embedded in the webhook URL.
type TenantDirectory interface {
	GetByName(ctx context.Context, name string) (tenants.Tenant, error)
}

// WebhookHandler terminates provider webhooks: authenticate, acknowledge
// fast, enqueue for async processing.
type WebhookHandler struct {
	tenants  TenantDirectory
	registry *channels.Registry
	jobs     Enqueuer
	logger   *slog.Logger
}

func NewWebhookHandler(directory TenantDirectory, registry *channels.Registry, jobs Enqueuer, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		tenants:  directory,
		registry: registry,
		jobs:     jobs,
		logger:   log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/v1/:tenant/:channel/:token/receive", h.Receive)
	e.GET("/v1/:tenant/:channel/:token/webhook", h.Verify)
	// Meta sends the subscription handshake to the configured receive URL.
	e.GET("/v1/:tenant/:channel/:token/receive", h.Verify)
}

// resolve validates the URL path triple and returns the tenant and adapter.
func (h *WebhookHandler) resolve(c echo.Context) (tenants.Tenant, channels.Adapter, error) {
	kind, err := messaging.ParseChannelKind(c.Param("channel"))
	if err != nil {
		return tenants.Tenant{}, nil, echo.NewHTTPError(http.StatusNotFound, "unknown channel")
	}
	adapter, ok := h.registry.Get(kind)
	if !ok {
		return tenants.Tenant{}, nil, echo.NewHTTPError(http.StatusNotFound, "unknown channel")
	}

	tenant, err := h.tenants.GetByName(c.Request().Context(), c.Param("tenant"))
	if err != nil {
		return tenants.Tenant{}, nil, echo.NewHTTPError(http.StatusNotFound, "unknown tenant")
	}

	urlToken := adapter.Authenticator(tenant).Tokens().URLToken
	if !channels.SecureCompare(c.Param("token"), urlToken) {
		return tenants.Tenant{}, nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook token")
	}
	return tenant, adapter, nil
}

// Receive handles a provider delivery. The payload is verified and queued;
// processing happens on the workers so the provider gets its response fast.
func (h *WebhookHandler) Receive(c echo.Context) error {
	tenant, adapter, err := h.resolve(c)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if len(body) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}

	authReq := channels.AuthRequest{
		Body:    body,
		Headers: c.Request().Header,
		Query:   c.QueryParams(),
	}
	if err := adapter.Authenticator(tenant).Authenticate(authReq); err != nil {
		h.logger.Warn("webhook rejected",
			slog.String("tenant", tenant.Name),
			slog.String("channel", adapter.Kind().String()),
			slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
	}

	ack := adapter.Acknowledge(authReq)

	job := queue.NewJob(tenant.ID, tenant.Name, adapter.Kind(), body, captureHeaders(c.Request().Header))
	if err := h.jobs.Enqueue(job); err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			h.logger.Error("enqueue failed",
				slog.String("tenant", tenant.Name),
				slog.String("error", err.Error()))
			return echo.NewHTTPError(http.StatusServiceUnavailable, "try again later")
		}
		return err
	}

	status := ack.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if ack.Message != "" {
		return c.String(status, ack.Message)
	}
	if ack.Data != nil {
		return c.JSON(status, ack.Data)
	}
	return c.JSON(status, map[string]string{"status": "ok"})
}

// Verify answers the Meta-style GET subscription handshake.
func (h *WebhookHandler) Verify(c echo.Context) error {
	tenant, adapter, err := h.resolve(c)
	if err != nil {
		return err
	}

	creds, _ := tenant.Credentials(adapter.Kind())
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && challenge != "" && channels.SecureCompare(token, creds.VerifyToken) {
		return c.String(http.StatusOK, challenge)
	}
	return echo.NewHTTPError(http.StatusForbidden, "verification failed")
}
