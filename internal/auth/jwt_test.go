package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestGenerateTokenValidation(t *testing.T) {
	t.Parallel()

	if _, _, err := GenerateToken("", "secret", time.Hour); err == nil {
		t.Error("empty subject should fail")
	}
	if _, _, err := GenerateToken("admin", "", time.Hour); err == nil {
		t.Error("empty secret should fail")
	}
	if _, _, err := GenerateToken("admin", "secret", 0); err == nil {
		t.Error("non-positive expiry should fail")
	}
}

func TestJWTMiddlewareRoundTrip(t *testing.T) {
	t.Parallel()

	token, expiresAt, err := GenerateToken("admin", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expiry should be in the future")
	}

	e := echo.New()
	e.Use(JWTMiddleware("secret", nil))
	e.GET("/protected", func(c echo.Context) error {
		subject, err := SubjectFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, subject)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "admin" {
		t.Errorf("expected subject admin, got %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusUnauthorized {
		t.Errorf("expected auth failure, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
