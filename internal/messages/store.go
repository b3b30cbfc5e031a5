// Package messages persists the canonical message log on the tenant data
// partition and keeps a small in-memory window per session for handlers.
package messages

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// Store persists messages.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over the tenant's pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert writes the message and reports whether a row was inserted. A
// duplicate inbound delivery (same tenant, channel and provider message id)
// inserts nothing, returns false, and stamps the already-stored row's id
// onto msg so callers keep referencing the real record.
func (s *Store) Insert(ctx context.Context, msg *messaging.Message) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return false, errs.Wrap(errs.KindInternal, err, "marshal metadata")
	}
	var intent []byte
	if msg.Intent != nil {
		if intent, err = json.Marshal(msg.Intent); err != nil {
			return false, errs.Wrap(errs.KindInternal, err, "marshal intent")
		}
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO messages (
			id, tenant_id, direction, channel, channel_user_id, session_id, user_id,
			content_type, content, translated_content, provider_message_id,
			provider_response_message_id, prev_message_id, primary_handler,
			intent, metadata, message_timestamp
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, NULLIF($7, '')::uuid,
			$8, $9, $10, $11, $12, NULLIF($13, '')::uuid, $14, $15, $16, $17)
		ON CONFLICT (tenant_id, channel, provider_message_id)
			WHERE direction = 'in' AND provider_message_id <> ''
		DO NOTHING`,
		msg.ID, msg.TenantID, string(msg.Direction), string(msg.Channel), msg.ChannelUserID,
		msg.SessionID, msg.UserID, string(msg.ContentType), msg.Content, msg.TranslatedContent,
		msg.ProviderMessageID, msg.ProviderResponseMessageID, msg.PrevMessageID,
		string(msg.PrimaryHandler), intent, metadata, msg.Timestamp)
	if err != nil {
		return false, errs.Wrap(errs.KindInternal, err, "insert message")
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var existingID string
	err = s.pool.QueryRow(ctx, `
		SELECT id FROM messages
		WHERE tenant_id = $1 AND channel = $2 AND provider_message_id = $3
		  AND direction = 'in'`,
		msg.TenantID, string(msg.Channel), msg.ProviderMessageID).Scan(&existingID)
	if err != nil {
		return false, errs.Wrap(errs.KindInternal, err, "load deduped message")
	}
	msg.ID = existingID
	return false, nil
}

// SetProviderResponseID records the id the provider assigned to a sent
// outgoing message.
func (s *Store) SetProviderResponseID(ctx context.Context, messageID, providerResponseID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET provider_response_message_id = $2, sent_at = now()
		WHERE id = $1`, messageID, providerResponseID)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "set provider response id")
	}
	return nil
}

// StampDeliveryStatus applies a provider delivery receipt to the outgoing
// message it refers to. Unknown receipts are ignored.
func (s *Store) StampDeliveryStatus(ctx context.Context, tenantID string, channel messaging.ChannelKind, update channels.StatusUpdate) error {
	var column string
	switch update.Status {
	case messaging.StatusSent:
		column = "sent_at"
	case messaging.StatusDelivered:
		column = "delivered_at"
	case messaging.StatusRead:
		column = "read_at"
	default:
		return nil
	}

	at := update.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET `+column+` = $4
		WHERE tenant_id = $1 AND channel = $2 AND provider_response_message_id = $3
		  AND direction = 'out' AND `+column+` IS NULL`,
		tenantID, string(channel), update.ProviderMessageID, at)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "stamp delivery status")
	}
	return nil
}

// RecentBySession returns the session's last messages, oldest first.
func (s *Store) RecentBySession(ctx context.Context, sessionID string, limit int) ([]*messaging.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, direction, tenant_id, channel, channel_user_id,
		       COALESCE(session_id::text, ''), COALESCE(user_id::text, ''),
		       content_type, content, translated_content, provider_message_id,
		       provider_response_message_id, COALESCE(prev_message_id::text, ''),
		       primary_handler, metadata, message_timestamp
		FROM messages
		WHERE session_id = $1
		ORDER BY message_timestamp DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "query recent messages")
	}
	defer rows.Close()

	var out []*messaging.Message
	for rows.Next() {
		var msg messaging.Message
		var direction, channel, contentType, handler string
		var metadata []byte
		if err := rows.Scan(&msg.ID, &direction, &msg.TenantID, &channel, &msg.ChannelUserID,
			&msg.SessionID, &msg.UserID, &contentType, &msg.Content, &msg.TranslatedContent,
			&msg.ProviderMessageID, &msg.ProviderResponseMessageID, &msg.PrevMessageID,
			&handler, &metadata, &msg.Timestamp); err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "scan message")
		}
		msg.Direction = messaging.Direction(direction)
		msg.Channel = messaging.ChannelKind(channel)
		msg.ContentType = messaging.ContentType(contentType)
		msg.PrimaryHandler = messaging.HandlerKind(handler)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &msg.Metadata)
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "iterate messages")
	}

	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
