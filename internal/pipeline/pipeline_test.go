package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/dispatch"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/identity"
	"github.com/reanhealth/botgateway/internal/intents"
	"github.com/reanhealth/botgateway/internal/messages"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/queue"
	"github.com/reanhealth/botgateway/internal/sessions"
	"github.com/reanhealth/botgateway/internal/tenants"
)

// wire format of the test channel.
type testFrame struct {
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	Statuses  []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"statuses,omitempty"`
}

type testConverter struct{}

func (testConverter) FromChannel(raw []byte) (*messaging.Message, error) {
	var f testFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "parse test frame")
	}
	if f.Content == "" {
		return nil, nil
	}
	return &messaging.Message{
		Direction:         messaging.DirectionIn,
		ChannelUserID:     f.UserID,
		ContentType:       messaging.ContentText,
		Content:           f.Content,
		ProviderMessageID: f.MessageID,
		Timestamp:         time.Now().UTC(),
		Metadata:          map[string]any{},
	}, nil
}

func (testConverter) ToChannel(msg *messaging.Message) ([]byte, error) {
	return []byte(msg.Content), nil
}

func (testConverter) StatusUpdates(raw []byte) []channels.StatusUpdate {
	var f testFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	var out []channels.StatusUpdate
	for _, s := range f.Statuses {
		out = append(out, channels.StatusUpdate{
			ProviderMessageID: s.ID,
			Status:            messaging.ParseDeliveryStatus(s.Status),
			RawStatus:         s.Status,
		})
	}
	return out
}

type testAdapter struct {
	sendResp messaging.ProviderResponse
	sent     []string
}

func (a *testAdapter) Kind() messaging.ChannelKind                             { return messaging.ChannelWeb }
func (a *testAdapter) Init(ctx context.Context, t tenants.Tenant) error        { return nil }
func (a *testAdapter) SetupWebhook(ctx context.Context, t tenants.Tenant, u string) error {
	return nil
}
func (a *testAdapter) Authenticator(t tenants.Tenant) channels.Authenticator { return nil }
func (a *testAdapter) Converter() channels.Converter                         { return testConverter{} }
func (a *testAdapter) ProcessIncoming(ctx context.Context, m *messaging.Message) (*messaging.Message, error) {
	return m, nil
}
func (a *testAdapter) ProcessOutgoing(ctx context.Context, m *messaging.Message) (*messaging.Message, error) {
	return m, nil
}
func (a *testAdapter) Send(ctx context.Context, t tenants.Tenant, channelUserID string, payload []byte) messaging.ProviderResponse {
	a.sent = append(a.sent, string(payload))
	return a.sendResp
}
func (a *testAdapter) Acknowledge(r channels.AuthRequest) messaging.Acknowledgement {
	return messaging.AckOK()
}

type fakeTenants struct {
	tenant tenants.Tenant
}

func (f *fakeTenants) GetByID(ctx context.Context, id string) (tenants.Tenant, error) {
	if id != f.tenant.ID {
		return tenants.Tenant{}, errs.New(errs.KindNotFound, "tenant not found: %s", id)
	}
	return f.tenant, nil
}

type fakePools struct{}

func (fakePools) Get(ctx context.Context, t tenants.Tenant) (*pgxpool.Pool, error) {
	return nil, nil
}

// fakeSessionStore mirrors the Postgres store's idempotent-create semantics.
type fakeSessionStore struct {
	mu       sync.Mutex
	users    map[string]sessions.User
	byID     map[string]sessions.User
	sessions map[string]sessions.Session
	flags    map[string][2]bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		users:    map[string]sessions.User{},
		byID:     map[string]sessions.User{},
		sessions: map[string]sessions.Session{},
		flags:    map[string][2]bool{},
	}
}

func (f *fakeSessionStore) GetUserByChannelUser(ctx context.Context, tenantID, channelUserID string) (sessions.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[tenantID+":"+channelUserID]
	if !ok {
		return sessions.User{}, errs.New(errs.KindNotFound, "no user")
	}
	return u, nil
}

func (f *fakeSessionStore) CreateUser(ctx context.Context, u sessions.User) (sessions.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := u.TenantID + ":" + u.ChannelUserID
	if existing, ok := f.users[k]; ok {
		return existing, nil
	}
	u.ID = uuid.NewString()
	f.users[k] = u
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeSessionStore) GetSessionByChannelUser(ctx context.Context, tenantID string, channel messaging.ChannelKind, channelUserID string) (sessions.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tenantID+":"+string(channel)+":"+channelUserID]
	if !ok {
		return sessions.Session{}, errs.New(errs.KindNotFound, "no session")
	}
	return s, nil
}

func (f *fakeSessionStore) CreateSession(ctx context.Context, s sessions.Session) (sessions.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := s.TenantID + ":" + string(s.Channel) + ":" + s.ChannelUserID
	if existing, ok := f.sessions[k]; ok {
		return existing, nil
	}
	s.ID = uuid.NewString()
	f.sessions[k] = s
	return s, nil
}

func (f *fakeSessionStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	return nil
}

func (f *fakeSessionStore) GetUser(ctx context.Context, userID string) (sessions.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return sessions.User{}, errs.New(errs.KindNotFound, "no user")
	}
	return u, nil
}

func (f *fakeSessionStore) SetFlowFlags(ctx context.Context, sessionID string, feedback, handoff bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[sessionID] = [2]bool{feedback, handoff}
	return nil
}

type fakeMessageStore struct {
	mu      sync.Mutex
	rows    []*messaging.Message
	seen    map[string]string
	stamped []channels.StatusUpdate
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{seen: map[string]string{}}
}

func (f *fakeMessageStore) Insert(ctx context.Context, msg *messaging.Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.Direction == messaging.DirectionIn && msg.ProviderMessageID != "" {
		key := msg.TenantID + ":" + string(msg.Channel) + ":" + msg.ProviderMessageID
		if existingID, ok := f.seen[key]; ok {
			msg.ID = existingID
			return false, nil
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		f.seen[key] = msg.ID
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	f.rows = append(f.rows, msg)
	return true, nil
}

func (f *fakeMessageStore) SetProviderResponseID(ctx context.Context, messageID, providerResponseID string) error {
	return nil
}

func (f *fakeMessageStore) StampDeliveryStatus(ctx context.Context, tenantID string, channel messaging.ChannelKind, update channels.StatusUpdate) error {
	f.stamped = append(f.stamped, update)
	return nil
}

type fixture struct {
	proc     *Processor
	adapter  *testAdapter
	msgStore *fakeMessageStore
	sessions *fakeSessionStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tenant := tenants.Tenant{ID: "tenant-1", Name: "clinic-a"}
	adapter := &testAdapter{sendResp: messaging.ProviderResponse{OK: true, MessageID: "out-1"}}

	registry := channels.NewRegistry()
	registry.MustRegister(adapter)

	router, err := dispatch.NewRouter(intents.NewKeywordRecognizer(intents.DefaultRules()),
		[]dispatch.Handler{dispatch.SmallTalkHandler{}, dispatch.FeedbackHandler{}, dispatch.HandoffHandler{}},
		slog.Default())
	require.NoError(t, err)

	msgStore := newFakeMessageStore()
	sessStore := newFakeSessionStore()

	proc := NewProcessor(
		&fakeTenants{tenant: tenant},
		registry,
		fakePools{},
		identity.LocalRegistrar{},
		router,
		dispatch.NewOutgoingProcessor(channels.NewSendLimiter(1000, 100), slog.Default()),
		messages.NewCache(50),
		queue.NewKeyMutex(),
		slog.Default(),
	)
	proc.newStores = func(pool *pgxpool.Pool) storeSet {
		return storeSet{sessions: sessStore, flows: sessStore, messages: msgStore}
	}
	return &fixture{proc: proc, adapter: adapter, msgStore: msgStore, sessions: sessStore}
}

func job(payload string) queue.Job {
	return queue.Job{
		ID:       uuid.NewString(),
		TenantID: "tenant-1",
		Channel:  messaging.ChannelWeb,
		Payload:  []byte(payload),
	}
}

func TestProcessJobHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.proc.ProcessJob(context.Background(), job(`{"user_id":"u-1","message_id":"pm-1","content":"hello"}`))
	require.NoError(t, err)

	require.Len(t, f.msgStore.rows, 2, "incoming and reply should be stored")
	in, out := f.msgStore.rows[0], f.msgStore.rows[1]
	assert.Equal(t, messaging.DirectionIn, in.Direction)
	assert.NotEmpty(t, in.SessionID)
	assert.NotEmpty(t, in.UserID)
	assert.Equal(t, messaging.DirectionOut, out.Direction)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.Equal(t, in.ID, out.PrevMessageID)
	assert.Equal(t, "out-1", out.ProviderResponseMessageID)
	require.Len(t, f.adapter.sent, 1)
}

func TestProcessJobDuplicateDeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	payload := `{"user_id":"u-1","message_id":"pm-1","content":"hello"}`
	require.NoError(t, f.proc.ProcessJob(context.Background(), job(payload)))
	require.NoError(t, f.proc.ProcessJob(context.Background(), job(payload)))

	assert.Len(t, f.adapter.sent, 1, "duplicate must not produce a second reply")
	assert.Len(t, f.msgStore.rows, 2)
}

func TestProcessJobNonActionableIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.proc.ProcessJob(context.Background(), job(`{"user_id":"u-1","message_id":"pm-2"}`))
	require.NoError(t, err)
	assert.Empty(t, f.msgStore.rows)
	assert.Empty(t, f.adapter.sent)
}

func TestProcessJobStampsDeliveryReceipts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.proc.ProcessJob(context.Background(), job(`{"user_id":"u-1","statuses":[{"id":"out-1","status":"read"}]}`))
	require.NoError(t, err)

	require.Len(t, f.msgStore.stamped, 1)
	assert.Equal(t, "out-1", f.msgStore.stamped[0].ProviderMessageID)
	assert.Equal(t, messaging.StatusRead, f.msgStore.stamped[0].Status)
	assert.Empty(t, f.adapter.sent)
}

func TestProcessJobUnknownTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	j := job(`{"user_id":"u-1","message_id":"pm-3","content":"hi"}`)
	j.TenantID = "missing"
	err := f.proc.ProcessJob(context.Background(), j)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestProcessJobUnknownChannelIsValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	j := job(`{"user_id":"u-1","message_id":"pm-4","content":"hi"}`)
	j.Channel = messaging.ChannelTeams
	err := f.proc.ProcessJob(context.Background(), j)
	require.Error(t, err)
	assert.False(t, errs.Retryable(err))
}

func TestProcessJobSendFailureRetriesWithoutDuplicateReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.adapter.sendResp = messaging.ProviderResponse{OK: false, StatusCode: 503}

	j := job(`{"user_id":"u-1","message_id":"pm-5","content":"hello"}`)
	err := f.proc.ProcessJob(context.Background(), j)
	require.Error(t, err)
	assert.True(t, errs.Retryable(err))

	// Retry of the same job continues past dedupe and succeeds.
	f.adapter.sendResp = messaging.ProviderResponse{OK: true, MessageID: "out-2"}
	j.Attempts = 1
	require.NoError(t, f.proc.ProcessJob(context.Background(), j))

	var inboundID string
	for _, row := range f.msgStore.rows {
		if row.Direction == messaging.DirectionIn {
			inboundID = row.ID
		}
	}
	require.NotEmpty(t, inboundID)

	var replies []*messaging.Message
	for _, row := range f.msgStore.rows {
		if row.Direction == messaging.DirectionOut {
			replies = append(replies, row)
		}
	}
	require.Len(t, replies, 1)
	// The retried reply references the row stored on the first attempt.
	assert.Equal(t, inboundID, replies[0].PrevMessageID)
}

func TestProcessJobConcurrentSameUserCreatesOneSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var wg sync.WaitGroup
	for _, payload := range []string{
		`{"user_id":"u-1","message_id":"pm-10","content":"first"}`,
		`{"user_id":"u-1","message_id":"pm-11","content":"second"}`,
	} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			assert.NoError(t, f.proc.ProcessJob(context.Background(), job(p)))
		}(payload)
	}
	wg.Wait()

	assert.Len(t, f.sessions.sessions, 1)
	assert.Len(t, f.sessions.users, 1)

	var sessionIDs []string
	for _, row := range f.msgStore.rows {
		if row.Direction == messaging.DirectionIn {
			sessionIDs = append(sessionIDs, row.SessionID)
		}
	}
	require.Len(t, sessionIDs, 2)
	assert.Equal(t, sessionIDs[0], sessionIDs[1])
}
