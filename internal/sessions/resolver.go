package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/identity"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// SessionStore is the slice of Store the resolver uses.
type SessionStore interface {
	GetUserByChannelUser(ctx context.Context, tenantID, channelUserID string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	GetSessionByChannelUser(ctx context.Context, tenantID string, channel messaging.ChannelKind, channelUserID string) (Session, error)
	CreateSession(ctx context.Context, sess Session) (Session, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	GetUser(ctx context.Context, userID string) (User, error)
}

// Resolver maps an inbound message's channel identity onto a durable user
// and session, creating both on first contact.
type Resolver struct {
	store     SessionStore
	registrar identity.Registrar
	log       *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(store SessionStore, registrar identity.Registrar, log *slog.Logger) *Resolver {
	return &Resolver{
		store:     store,
		registrar: registrar,
		log:       log.With(slog.String("component", "sessions.resolver")),
	}
}

// Resolve finds or creates the user and session for the message and stamps
// the session's activity. Creation is idempotent under concurrent delivery
// of the same first message.
func (r *Resolver) Resolve(ctx context.Context, tenantName string, msg *messaging.Message) (Resolution, error) {
	if msg.ChannelUserID == "" {
		return Resolution{}, errs.New(errs.KindValidation, "message has no channel user id")
	}

	sess, err := r.store.GetSessionByChannelUser(ctx, msg.TenantID, msg.Channel, msg.ChannelUserID)
	switch {
	case err == nil:
		user, err := r.store.GetUser(ctx, sess.UserID)
		if err != nil {
			return Resolution{}, err
		}
		if err := r.store.TouchSession(ctx, sess.ID, msg.Timestamp); err != nil {
			return Resolution{}, err
		}
		sess.LastMessageAt = msg.Timestamp
		return Resolution{User: user, Session: sess}, nil
	case !errs.IsKind(err, errs.KindNotFound):
		return Resolution{}, err
	}

	user, err := r.resolveUser(ctx, tenantName, msg)
	if err != nil {
		return Resolution{}, err
	}

	sess, err = r.store.CreateSession(ctx, Session{
		TenantID:      msg.TenantID,
		UserID:        user.ID,
		Channel:       msg.Channel,
		ChannelUserID: msg.ChannelUserID,
	})
	if err != nil {
		return Resolution{}, err
	}
	if err := r.store.TouchSession(ctx, sess.ID, msg.Timestamp); err != nil {
		return Resolution{}, err
	}
	sess.LastMessageAt = msg.Timestamp

	r.log.Info("session created",
		slog.String("tenant", tenantName),
		slog.String("channel", msg.Channel.String()),
		slog.String("session_id", sess.ID))
	return Resolution{User: user, Session: sess, Created: true}, nil
}

// resolveUser reuses an existing user for the channel identity and registers
// a new one otherwise. The same user reached over two channels stays two
// user rows; cross-channel identity merging belongs to the registry.
func (r *Resolver) resolveUser(ctx context.Context, tenantName string, msg *messaging.Message) (User, error) {
	user, err := r.store.GetUserByChannelUser(ctx, msg.TenantID, msg.ChannelUserID)
	if err == nil {
		return user, nil
	}
	if !errs.IsKind(err, errs.KindNotFound) {
		return User{}, err
	}

	channelUser := channelUserFromMessage(msg)
	externalID, err := r.registrar.Register(ctx, tenantName, channelUser)
	if err != nil {
		return User{}, err
	}

	return r.store.CreateUser(ctx, User{
		TenantID:      msg.TenantID,
		ExternalID:    externalID,
		ChannelUserID: msg.ChannelUserID,
		FirstName:     channelUser.FirstName,
		LastName:      channelUser.LastName,
		Phone:         channelUser.Phone,
		Email:         channelUser.Email,
	})
}

// channelUserFromMessage assembles the transit identity from adapter
// metadata. WhatsApp identities double as phone numbers.
func channelUserFromMessage(msg *messaging.Message) messaging.ChannelUser {
	user := messaging.ChannelUser{
		ChannelUserID: msg.ChannelUserID,
		FirstName:     msg.MetaString("first_name"),
		LastName:      msg.MetaString("last_name"),
	}
	if user.FirstName == "" {
		user.FirstName = msg.MetaString("profile_name")
	}
	switch msg.Channel {
	case messaging.ChannelWhatsApp, messaging.ChannelWhatsAppD360:
		user.Phone = msg.ChannelUserID
	}
	return user
}
