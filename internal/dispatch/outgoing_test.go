package dispatch

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

type fakeAdapter struct {
	sendResp  messaging.ProviderResponse
	sent      [][]byte
	processed int
}

func (a *fakeAdapter) Kind() messaging.ChannelKind { return messaging.ChannelWhatsApp }

func (a *fakeAdapter) Init(ctx context.Context, tenant tenants.Tenant) error { return nil }

func (a *fakeAdapter) SetupWebhook(ctx context.Context, tenant tenants.Tenant, publicBaseURL string) error {
	return nil
}

func (a *fakeAdapter) Authenticator(tenant tenants.Tenant) channels.Authenticator { return nil }

func (a *fakeAdapter) Converter() channels.Converter { return fakeConverter{} }

func (a *fakeAdapter) ProcessIncoming(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

func (a *fakeAdapter) ProcessOutgoing(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	a.processed++
	return msg, nil
}

func (a *fakeAdapter) Send(ctx context.Context, tenant tenants.Tenant, channelUserID string, payload []byte) messaging.ProviderResponse {
	a.sent = append(a.sent, payload)
	return a.sendResp
}

func (a *fakeAdapter) Acknowledge(r channels.AuthRequest) messaging.Acknowledgement {
	return messaging.AckOK()
}

type fakeConverter struct{}

func (fakeConverter) FromChannel(raw []byte) (*messaging.Message, error) { return nil, nil }

func (fakeConverter) ToChannel(msg *messaging.Message) ([]byte, error) {
	if msg.Content == "" {
		return nil, errs.New(errs.KindValidation, "empty content")
	}
	return []byte(msg.Content), nil
}

func TestOutgoingProcess(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{sendResp: messaging.ProviderResponse{OK: true, MessageID: "prov-1"}}
	recorder := newFakeRecorder()
	scope := testScope(&fakeFlows{})
	scope.Adapter = adapter
	scope.Messages = recorder

	proc := NewOutgoingProcessor(channels.NewSendLimiter(100, 10), slog.Default())

	out := inbound("seed").Reply(messaging.ContentText, "hello back")
	err := proc.Process(context.Background(), scope, out)
	require.NoError(t, err)

	assert.Equal(t, 1, adapter.processed)
	require.Len(t, adapter.sent, 1)
	assert.Equal(t, "hello back", string(adapter.sent[0]))

	require.Len(t, recorder.inserted, 1)
	stored := recorder.inserted[0]
	assert.Equal(t, messaging.DirectionOut, stored.Direction)
	assert.Equal(t, "prov-1", stored.ProviderResponseMessageID)
	assert.Equal(t, "sess-1", stored.SessionID)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "prov-1", recorder.stamped[stored.ID])

	assert.Len(t, scope.Cache.GetMessages("sess-1"), 1)
}

func TestOutgoingProcessSendFailureIsRetryable(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{sendResp: messaging.ProviderResponse{OK: false, StatusCode: 502, Body: "bad gateway"}}
	recorder := newFakeRecorder()
	scope := testScope(&fakeFlows{})
	scope.Adapter = adapter
	scope.Messages = recorder

	proc := NewOutgoingProcessor(channels.NewSendLimiter(100, 10), slog.Default())

	err := proc.Process(context.Background(), scope, inbound("seed").Reply(messaging.ContentText, "hello back"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindExternalService))
	assert.True(t, errs.Retryable(err))
	assert.Empty(t, recorder.inserted, "failed sends must not be recorded")
}

func TestOutgoingProcessConversionFailureIsValidation(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{sendResp: messaging.ProviderResponse{OK: true}}
	scope := testScope(&fakeFlows{})
	scope.Adapter = adapter

	proc := NewOutgoingProcessor(channels.NewSendLimiter(100, 10), slog.Default())

	err := proc.Process(context.Background(), scope, inbound("seed").Reply(messaging.ContentText, ""))
	require.Error(t, err)
	assert.False(t, errs.Retryable(err))
	assert.Empty(t, adapter.sent)
}
