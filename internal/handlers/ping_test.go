package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reanhealth/botgateway/internal/version"
)

func TestPingReportsServiceAndVersion(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewHealthHandler(slog.Default()).Register(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "botgateway", body["service"])
	assert.Equal(t, version.GetInfo(), body["version"])
}

func TestHealthHead(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewHealthHandler(slog.Default()).Register(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
