package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/reanhealth/botgateway/internal/auth"
	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/config"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

var validate = validator.New()

// TenantWriter is the slice of the tenant store the admin API writes
// through.
type TenantWriter interface {
	Upsert(ctx context.Context, req tenants.UpsertRequest) (tenants.Tenant, error)
}

// TenantCacheInvalidator drops cached tenant entries after a write.
type TenantCacheInvalidator interface {
	Invalidate(name string)
}

// AdminHandler serves the operator API: login, tenant management, webhook
// registration.
type AdminHandler struct {
	cfg       config.Config
	store     TenantWriter
	directory TenantDirectory
	cache     TenantCacheInvalidator
	registry  *channels.Registry
	logger    *slog.Logger
}

func NewAdminHandler(cfg config.Config, store TenantWriter, directory TenantDirectory, cache TenantCacheInvalidator, registry *channels.Registry, log *slog.Logger) *AdminHandler {
	return &AdminHandler{
		cfg:       cfg,
		store:     store,
		directory: directory,
		cache:     cache,
		registry:  registry,
		logger:    log.With(slog.String("handler", "admin")),
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	e.POST("/v1/admin/login", h.Login)
	e.PUT("/v1/admin/tenants", h.UpsertTenant)
	e.GET("/v1/admin/tenants/:name", h.GetTenant)
	e.POST("/v1/admin/tenants/:name/channels/:channel/webhook", h.SetupWebhook)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges the operator credentials for a JWT.
func (h *AdminHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	if req.Username != h.cfg.Admin.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.cfg.Admin.PasswordHash), []byte(req.Password)) != nil {
		h.logger.Warn("login failed", slog.String("username", req.Username))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	expiresIn, err := time.ParseDuration(h.cfg.Auth.JWTExpiresIn)
	if err != nil {
		expiresIn = 24 * time.Hour
	}
	token, expiresAt, err := auth.GenerateToken(req.Username, h.cfg.Auth.JWTSecret, expiresIn)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// UpsertTenant creates or updates a tenant and its channel credentials.
func (h *AdminHandler) UpsertTenant(c echo.Context) error {
	var req tenants.UpsertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	tenant, err := h.store.Upsert(c.Request().Context(), req)
	if err != nil {
		return err
	}
	h.cache.Invalidate(tenant.Name)
	h.logger.Info("tenant upserted", slog.String("tenant", tenant.Name))
	return c.JSON(http.StatusOK, tenant)
}

// GetTenant returns a tenant by name.
func (h *AdminHandler) GetTenant(c echo.Context) error {
	tenant, err := h.directory.GetByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown tenant")
	}
	return c.JSON(http.StatusOK, tenant)
}

// SetupWebhook validates the tenant's channel credentials and registers the
// receive URL with the provider.
func (h *AdminHandler) SetupWebhook(c echo.Context) error {
	kind, err := messaging.ParseChannelKind(c.Param("channel"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown channel")
	}
	adapter, ok := h.registry.Get(kind)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown channel")
	}
	tenant, err := h.directory.GetByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown tenant")
	}

	ctx := c.Request().Context()
	if err := adapter.Init(ctx, tenant); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := adapter.SetupWebhook(ctx, tenant, h.cfg.Server.PublicBaseURL); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
