package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// Store persists users and sessions on a tenant's data partition.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over the tenant's pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, tenant_id, external_id, channel_user_id, first_name, last_name, phone, email, role, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.ExternalID, &u.ChannelUserID,
		&u.FirstName, &u.LastName, &u.Phone, &u.Email, &u.Role, &u.CreatedAt)
	return u, err
}

// GetUserByChannelUser looks up a user by its channel identity.
func (s *Store) GetUserByChannelUser(ctx context.Context, tenantID, channelUserID string) (User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND channel_user_id = $2`,
		tenantID, channelUserID)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, errs.New(errs.KindNotFound, "user not found: %s", channelUserID)
	}
	if err != nil {
		return User{}, errs.Wrap(errs.KindInternal, err, "get user")
	}
	return u, nil
}

// CreateUser inserts the user, returning the existing row when another
// worker already created it.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "patient"
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, tenant_id, external_id, channel_user_id, first_name, last_name, phone, email, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, channel_user_id)
		DO UPDATE SET channel_user_id = EXCLUDED.channel_user_id
		RETURNING `+userColumns,
		u.ID, u.TenantID, u.ExternalID, u.ChannelUserID,
		u.FirstName, u.LastName, u.Phone, u.Email, u.Role)
	created, err := scanUser(row)
	if err != nil {
		return User{}, errs.Wrap(errs.KindInternal, err, "create user")
	}
	return created, nil
}

const sessionColumns = `id, tenant_id, user_id, channel, channel_user_id, last_message_at, feedback_in_progress, handoff_in_progress, created_at`

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	var channel string
	err := row.Scan(&sess.ID, &sess.TenantID, &sess.UserID, &channel, &sess.ChannelUserID,
		&sess.LastMessageAt, &sess.FeedbackInProgress, &sess.HandoffInProgress, &sess.CreatedAt)
	sess.Channel = messaging.ChannelKind(channel)
	return sess, err
}

// GetSessionByChannelUser looks up the session for one channel identity.
func (s *Store) GetSessionByChannelUser(ctx context.Context, tenantID string, channel messaging.ChannelKind, channelUserID string) (Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE tenant_id = $1 AND channel = $2 AND channel_user_id = $3`,
		tenantID, string(channel), channelUserID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, errs.New(errs.KindNotFound, "session not found: %s/%s", channel, channelUserID)
	}
	if err != nil {
		return Session{}, errs.Wrap(errs.KindInternal, err, "get session")
	}
	return sess, nil
}

// CreateSession inserts the session, returning the existing row when
// another worker already created it.
func (s *Store) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, tenant_id, user_id, channel, channel_user_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, channel, channel_user_id)
		DO UPDATE SET channel_user_id = EXCLUDED.channel_user_id
		RETURNING `+sessionColumns,
		sess.ID, sess.TenantID, sess.UserID, string(sess.Channel), sess.ChannelUserID)
	created, err := scanSession(row)
	if err != nil {
		return Session{}, errs.Wrap(errs.KindInternal, err, "create session")
	}
	return created, nil
}

// TouchSession stamps the session's last activity.
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET last_message_at = $2 WHERE id = $1`, sessionID, at)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "touch session")
	}
	return nil
}

// SetFlowFlags persists the routing flags.
func (s *Store) SetFlowFlags(ctx context.Context, sessionID string, feedback, handoff bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET feedback_in_progress = $2, handoff_in_progress = $3 WHERE id = $1`,
		sessionID, feedback, handoff)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "set flow flags")
	}
	return nil
}

// GetUser looks a user up by primary key.
func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, errs.New(errs.KindNotFound, "user not found: %s", userID)
	}
	if err != nil {
		return User{}, errs.Wrap(errs.KindInternal, err, "get user")
	}
	return u, nil
}
