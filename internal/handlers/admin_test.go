package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/channels/whatsapp"
	"github.com/reanhealth/botgateway/internal/config"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

type fakeTenantWriter struct {
	upserted []tenants.UpsertRequest
}

func (f *fakeTenantWriter) Upsert(ctx context.Context, req tenants.UpsertRequest) (tenants.Tenant, error) {
	f.upserted = append(f.upserted, req)
	return tenants.Tenant{ID: "tenant-1", Name: req.Name, Channels: req.Channels}, nil
}

type fakeInvalidator struct {
	names []string
}

func (f *fakeInvalidator) Invalidate(name string) { f.names = append(f.names, name) }

func adminConfig(t *testing.T) config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	var cfg config.Config
	cfg.Admin.Username = "ops"
	cfg.Admin.PasswordHash = string(hash)
	cfg.Auth.JWTSecret = "test-secret-test-secret-test-1234"
	cfg.Auth.JWTExpiresIn = "1h"
	cfg.Server.PublicBaseURL = "https://bots.example.com"
	return cfg
}

func newAdminEnv(t *testing.T) (*echo.Echo, *fakeTenantWriter, *fakeInvalidator) {
	t.Helper()
	registry := channels.NewRegistry()
	registry.MustRegister(whatsapp.NewAdapter(slog.Default()))

	writer := &fakeTenantWriter{}
	inv := &fakeInvalidator{}
	directory := &fakeDirectory{tenant: webhookTenant()}
	h := NewAdminHandler(adminConfig(t), writer, directory, inv, registry, slog.Default())

	e := echo.New()
	h.Register(e)
	return e, writer, inv
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestLogin(t *testing.T) {
	t.Parallel()

	e, _, _ := newAdminEnv(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, postJSON("/v1/admin/login", `{"username":"ops","password":"hunter2"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, postJSON("/v1/admin/login", `{"username":"ops","password":"wrong"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, postJSON("/v1/admin/login", `{"username":"mallory","password":"hunter2"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpsertTenant(t *testing.T) {
	t.Parallel()

	e, writer, inv := newAdminEnv(t)

	body := `{"name":"clinic-b","channels":{"telegram":{"bot_token":"123:abc"}}}`
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/tenants", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, writer.upserted, 1)
	assert.Equal(t, "clinic-b", writer.upserted[0].Name)
	assert.Equal(t, "123:abc", writer.upserted[0].Channels[messaging.ChannelTelegram].BotToken)
	assert.Equal(t, []string{"clinic-b"}, inv.names)
}

func TestUpsertTenantRequiresName(t *testing.T) {
	t.Parallel()

	e, writer, _ := newAdminEnv(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/admin/tenants", strings.NewReader(`{"channels":{}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, writer.upserted)
}

func TestGetTenant(t *testing.T) {
	t.Parallel()

	e, _, _ := newAdminEnv(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/tenants/clinic-a", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"clinic-a"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/tenants/nobody", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupWebhook(t *testing.T) {
	t.Parallel()

	e, _, _ := newAdminEnv(t)

	// WhatsApp Cloud setup is dashboard-side, so a tenant with complete
	// credentials passes Init and succeeds.
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, postJSON("/v1/admin/tenants/clinic-a/channels/whatsapp/webhook", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, postJSON("/v1/admin/tenants/clinic-a/channels/telegram/webhook", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code, "kind without a registered adapter")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, postJSON("/v1/admin/tenants/nobody/channels/whatsapp/webhook", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupWebhookRejectsIncompleteCredentials(t *testing.T) {
	t.Parallel()

	registry := channels.NewRegistry()
	registry.MustRegister(whatsapp.NewAdapter(slog.Default()))

	tenant := tenants.Tenant{
		ID:   "tenant-2",
		Name: "clinic-c",
		Channels: map[messaging.ChannelKind]tenants.ChannelCredentials{
			messaging.ChannelWhatsApp: {BotToken: "only-a-token"},
		},
	}
	h := NewAdminHandler(adminConfig(t), &fakeTenantWriter{}, &fakeDirectory{tenant: tenant}, &fakeInvalidator{}, registry, slog.Default())

	e := echo.New()
	h.Register(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, postJSON("/v1/admin/tenants/clinic-c/channels/whatsapp/webhook", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
