// Package sessions owns the durable user and session records on the tenant
// data partition and the resolution of inbound channel identities onto them.
package sessions

import (
	"time"

	"github.com/reanhealth/botgateway/internal/messaging"
)

// User is a durable bot user inside one tenant.
type User struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ExternalID    string    `json:"external_id"`
	ChannelUserID string    `json:"channel_user_id"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Email         string    `json:"email,omitempty"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

// Session is one user's conversation state on one channel. The pair of
// in-progress flags steers routing: an active flow claims the next inbound
// message before intent recognition runs.
type Session struct {
	ID                 string                `json:"id"`
	TenantID           string                `json:"tenant_id"`
	UserID             string                `json:"user_id"`
	Channel            messaging.ChannelKind `json:"channel"`
	ChannelUserID      string                `json:"channel_user_id"`
	LastMessageAt      time.Time             `json:"last_message_at"`
	FeedbackInProgress bool                  `json:"feedback_in_progress"`
	HandoffInProgress  bool                  `json:"handoff_in_progress"`
	CreatedAt          time.Time             `json:"created_at"`
}

// Resolution is the outcome of resolving one inbound message.
type Resolution struct {
	User    User
	Session Session
	// Created reports that this message caused the user or session to be
	// created.
	Created bool
}
