package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
)

func TestClientRegister(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/register", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req registerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "clinic-a", req.Tenant)
		assert.Equal(t, "15551234567", req.ChannelUserID)

		json.NewEncoder(w).Encode(registerResponse{UserID: "ext-1"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", slog.Default())
	id, err := client.Register(context.Background(), "clinic-a", messaging.ChannelUser{
		ChannelUserID: "15551234567",
		FirstName:     "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", id)
}

func TestClientRegisterFailureIsExternal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", slog.Default())
	_, err := client.Register(context.Background(), "clinic-a", messaging.ChannelUser{ChannelUserID: "u"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindExternalService))
	assert.True(t, errs.Retryable(err))
}

func TestLocalRegistrarMintsUniqueIDs(t *testing.T) {
	t.Parallel()

	reg := LocalRegistrar{}
	a, err := reg.Register(context.Background(), "clinic-a", messaging.ChannelUser{ChannelUserID: "u"})
	require.NoError(t, err)
	b, err := reg.Register(context.Background(), "clinic-a", messaging.ChannelUser{ChannelUserID: "u"})
	require.NoError(t, err)
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	assert.IsType(t, LocalRegistrar{}, FromConfig("", "", slog.Default()))
	assert.IsType(t, &Client{}, FromConfig("https://identity.internal", "k", slog.Default()))
}
