// Package dispatch routes resolved inbound messages to conversation
// handlers and pushes their replies back out through the channel adapter.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/messages"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/sessions"
	"github.com/reanhealth/botgateway/internal/tenants"
)

// MessageRecorder is the slice of the message store handlers and the
// outgoing processor write through.
type MessageRecorder interface {
	Insert(ctx context.Context, msg *messaging.Message) (bool, error)
	SetProviderResponseID(ctx context.Context, messageID, providerResponseID string) error
}

// FlowStore persists the session routing flags.
type FlowStore interface {
	SetFlowFlags(ctx context.Context, sessionID string, feedback, handoff bool) error
}

// Scope carries everything one job's handlers need. It is built per job on
// the tenant's data partition and never shared across jobs.
type Scope struct {
	Tenant   tenants.Tenant
	User     sessions.User
	Session  sessions.Session
	Adapter  channels.Adapter
	Messages MessageRecorder
	Flows    FlowStore
	Cache    *messages.Cache
	Log      *slog.Logger
}

// History returns the session's cached conversation window, oldest first.
func (s *Scope) History() []*messaging.Message {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.GetMessages(s.Session.ID)
}

// SetFlowFlags updates the flags on both the session row and the in-scope
// copy so later routing in the same job sees the change.
func (s *Scope) SetFlowFlags(ctx context.Context, feedback, handoff bool) error {
	if err := s.Flows.SetFlowFlags(ctx, s.Session.ID, feedback, handoff); err != nil {
		return err
	}
	s.Session.FeedbackInProgress = feedback
	s.Session.HandoffInProgress = handoff
	return nil
}
