package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reanhealth/botgateway/internal/version"
)

// HealthHandler answers liveness checks from load balancers and the
// provider consoles that ping the gateway before enabling a webhook.
type HealthHandler struct {
	logger *slog.Logger
}

func NewHealthHandler(log *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: log.With(slog.String("handler", "health"))}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.Head)
}

func (h *HealthHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "botgateway",
		"version": version.GetInfo(),
	})
}

func (h *HealthHandler) Head(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
