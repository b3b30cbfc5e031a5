// Package messaging defines the canonical message model shared by all
// channel adapters and the processing pipeline.
package messaging

import (
	"fmt"
	"strings"
	"time"
)

// ChannelKind identifies a messaging provider/surface.
type ChannelKind string

const (
	ChannelWhatsApp     ChannelKind = "whatsapp"
	ChannelWhatsAppD360 ChannelKind = "whatsapp_d360"
	ChannelTelegram     ChannelKind = "telegram"
	ChannelSlack        ChannelKind = "slack"
	ChannelTeams        ChannelKind = "teams"
	ChannelWeb          ChannelKind = "web"
	ChannelMobile       ChannelKind = "mobile"
	ChannelClickup      ChannelKind = "clickup"
)

// String returns the channel kind as a plain string.
func (c ChannelKind) String() string {
	return string(c)
}

// ParseChannelKind normalizes a channel path segment into a ChannelKind.
func ParseChannelKind(raw string) (ChannelKind, error) {
	kind := ChannelKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case ChannelWhatsApp, ChannelWhatsAppD360, ChannelTelegram, ChannelSlack,
		ChannelTeams, ChannelWeb, ChannelMobile, ChannelClickup:
		return kind, nil
	}
	return "", fmt.Errorf("unknown channel: %q", raw)
}

// ContentType classifies message content across providers.
type ContentType string

const (
	ContentText            ContentType = "text"
	ContentImage           ContentType = "image"
	ContentVideo           ContentType = "video"
	ContentAudio           ContentType = "audio"
	ContentLocation        ContentType = "location"
	ContentFile            ContentType = "file"
	ContentOptionChoice    ContentType = "option_choice"
	ContentOptionsUI       ContentType = "options_ui"
	ContentFeedback        ContentType = "feedback"
	ContentMessageReaction ContentType = "message_reaction"
	ContentSharedContact   ContentType = "shared_contact"
	ContentOther           ContentType = "other"
)

// Direction marks a message as inbound or outbound relative to the gateway.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// HandlerKind tags which message handler produced an outgoing message.
type HandlerKind string

const (
	HandlerAssessment   HandlerKind = "assessment"
	HandlerReminder     HandlerKind = "reminder"
	HandlerTask         HandlerKind = "task"
	HandlerFeedback     HandlerKind = "feedback"
	HandlerHumanHandoff HandlerKind = "human_handoff"
	HandlerQnA          HandlerKind = "qna"
	HandlerSmallTalk    HandlerKind = "small_talk"
)

// DeliveryStatus is a provider-reported delivery state for an outbound message.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
	StatusUnknown   DeliveryStatus = "unknown"
)

// ParseDeliveryStatus maps a provider status string onto a DeliveryStatus.
func ParseDeliveryStatus(raw string) DeliveryStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent":
		return StatusSent
	case "delivered":
		return StatusDelivered
	case "read":
		return StatusRead
	case "failed", "undelivered":
		return StatusFailed
	}
	return StatusUnknown
}

// Intent is a recognized intent attached to a classified message.
type Intent struct {
	Name       string            `json:"name"`
	Confidence float64           `json:"confidence,omitempty"`
	Slots      map[string]string `json:"slots,omitempty"`
}

// Assessment carries assessment-flow state on an outgoing message.
type Assessment struct {
	TemplateID string `json:"template_id,omitempty"`
	NodeID     string `json:"node_id,omitempty"`
	Question   string `json:"question,omitempty"`
	Answer     string `json:"answer,omitempty"`
}

// Feedback carries a collected user rating and comment.
type Feedback struct {
	Rating  int    `json:"rating,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// HumanHandoff marks a conversation escalated to a human agent.
type HumanHandoff struct {
	TicketID string `json:"ticket_id,omitempty"`
	Active   bool   `json:"active"`
}

// QnA carries a question/answer pair produced by a QnA handler.
type QnA struct {
	Question   string  `json:"question,omitempty"`
	Answer     string  `json:"answer,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Message is the canonical message record, used for both directions with a
// direction flag. Outgoing replies always carry PrevMessageID pointing at
// the stored incoming message that triggered them.
type Message struct {
	ID                string         `json:"id,omitempty"`
	Direction         Direction      `json:"direction"`
	TenantID          string         `json:"tenant_id"`
	TenantName        string         `json:"tenant_name,omitempty"`
	UserID            string         `json:"user_id,omitempty"`
	Channel           ChannelKind    `json:"channel"`
	ChannelUserID     string         `json:"channel_user_id"`
	SessionID         string         `json:"session_id,omitempty"`
	ContentType       ContentType    `json:"content_type"`
	Content           string         `json:"content,omitempty"`
	TranslatedContent string         `json:"translated_content,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	// ProviderResponseMessageID is the id the provider assigned when the
	// gateway sent this record's reply (outgoing records only).
	ProviderResponseMessageID string         `json:"provider_response_message_id,omitempty"`
	PrevMessageID             string         `json:"prev_message_id,omitempty"`
	Timestamp                 time.Time      `json:"timestamp"`
	Metadata                  map[string]any `json:"metadata,omitempty"`

	PrimaryHandler HandlerKind   `json:"primary_handler,omitempty"`
	Intent         *Intent       `json:"intent,omitempty"`
	Assessment     *Assessment   `json:"assessment,omitempty"`
	Feedback       *Feedback     `json:"feedback,omitempty"`
	HumanHandoff   *HumanHandoff `json:"human_handoff,omitempty"`
	QnA            *QnA          `json:"qna,omitempty"`
}

// Reply builds an outgoing message answering m, carrying over the tenant,
// session, and channel identity and back-referencing the incoming record.
func (m *Message) Reply(contentType ContentType, content string) *Message {
	meta := make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		meta[k] = v
	}
	return &Message{
		Direction:     DirectionOut,
		TenantID:      m.TenantID,
		TenantName:    m.TenantName,
		UserID:        m.UserID,
		Channel:       m.Channel,
		ChannelUserID: m.ChannelUserID,
		SessionID:     m.SessionID,
		ContentType:   contentType,
		Content:       content,
		PrevMessageID: m.ID,
		Timestamp:     time.Now().UTC(),
		Metadata:      meta,
	}
}

// MetaString returns the metadata value for key as a trimmed string.
func (m *Message) MetaString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	if v, ok := m.Metadata[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// ChannelUser is the channel-scoped identity extracted by an adapter. It is
// a transit record only; durable identity lives in the sessions package.
type ChannelUser struct {
	ChannelUserID string `json:"channel_user_id"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
}

// DisplayName returns the user's name, falling back to the channel user id.
func (u ChannelUser) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	return u.ChannelUserID
}

// Acknowledgement tells the webhook endpoint how to answer the provider for
// one delivery. Transient, one per webhook call.
type Acknowledgement struct {
	ShouldAcknowledge bool           `json:"should_acknowledge"`
	Message           string         `json:"message,omitempty"`
	StatusCode        int            `json:"status_code,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
}

// AckOK is the default fast acknowledgment.
func AckOK() Acknowledgement {
	return Acknowledgement{ShouldAcknowledge: true, StatusCode: 200}
}

// ProviderResponse is the outcome of one outbound provider send call.
// A failed send is reported with OK=false rather than an error so callers
// decide whether to retry.
type ProviderResponse struct {
	OK         bool   `json:"ok"`
	MessageID  string `json:"message_id,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Body       string `json:"body,omitempty"`
}
