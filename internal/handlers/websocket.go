package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/channels/webchannel"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/queue"
)

// WebSocketHandler upgrades web-widget connections and feeds their frames
// into the job queue. Replies come back over the same connection through
// the web adapter's hub.
type WebSocketHandler struct {
	tenants  TenantDirectory
	hub      *webchannel.Hub
	jobs     Enqueuer
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWebSocketHandler(directory TenantDirectory, hub *webchannel.Hub, jobs Enqueuer, log *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		tenants: directory,
		hub:     hub,
		jobs:    jobs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "websocket")),
	}
}

func (h *WebSocketHandler) Register(e *echo.Echo) {
	e.GET("/v1/:tenant/web/:token/ws", h.Connect)
}

// Connect authenticates the widget, upgrades, and pumps inbound frames into
// the queue until the client disconnects.
func (h *WebSocketHandler) Connect(c echo.Context) error {
	tenant, err := h.tenants.GetByName(c.Request().Context(), c.Param("tenant"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown tenant")
	}
	creds, ok := tenant.Credentials(messaging.ChannelWeb)
	if !ok || !channels.SecureCompare(c.Param("token"), creds.URLToken) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook token")
	}
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	h.hub.Attach(tenant.ID, userID, conn)
	h.logger.Info("widget connected",
		slog.String("tenant", tenant.Name),
		slog.String("user_id", userID))

	// Frames share the headers of the upgrade request that carried them.
	go h.readLoop(tenant.ID, tenant.Name, userID, captureHeaders(c.Request().Header), conn)
	return nil
}

func (h *WebSocketHandler) readLoop(tenantID, tenantName, userID string, headers map[string]string, conn *websocket.Conn) {
	defer func() {
		h.hub.Detach(tenantID, userID, conn)
		conn.Close()
	}()
	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		job := queue.NewJob(tenantID, tenantName, messaging.ChannelWeb, frame, headers)
		if err := h.jobs.Enqueue(job); err != nil {
			h.logger.Warn("widget frame dropped",
				slog.String("tenant", tenantName),
				slog.String("error", err.Error()))
		}
	}
}
