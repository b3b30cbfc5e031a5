package dispatch

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/reanhealth/botgateway/internal/messaging"
)

// Handler produces at most one reply for an inbound message. A nil reply
// with a nil error means the handler consumed the message silently.
type Handler interface {
	Kind() messaging.HandlerKind
	Handle(ctx context.Context, scope *Scope, msg *messaging.Message) (*messaging.Message, error)
}

// SmallTalkHandler is the fallback for messages no flow or intent claims.
type SmallTalkHandler struct{}

func (SmallTalkHandler) Kind() messaging.HandlerKind { return messaging.HandlerSmallTalk }

func (SmallTalkHandler) Handle(ctx context.Context, scope *Scope, msg *messaging.Message) (*messaging.Message, error) {
	text := strings.ToLower(msg.Content)
	var reply string
	switch {
	case msg.ContentType != messaging.ContentText:
		reply = "Thanks! I can only read text messages for now."
	case strings.Contains(text, "hello") || strings.Contains(text, "hi "), text == "hi":
		name := scope.User.FirstName
		if name == "" {
			name = "there"
		}
		reply = "Hi " + name + "! How can I help you today?"
	case strings.Contains(text, "thank"):
		reply = "You're welcome!"
	case strings.Contains(text, "bye"):
		reply = "Take care! Message me any time."
	default:
		reply = "I didn't quite get that. You can ask me a question, start a check-in, or say \"agent\" to reach a person."
	}
	out := msg.Reply(messaging.ContentText, reply)
	out.PrimaryHandler = messaging.HandlerSmallTalk
	return out, nil
}

// FeedbackHandler runs the two-step rating flow: ask for a rating, then
// record the answer. While the flow is active it claims every inbound
// message of the session.
type FeedbackHandler struct{}

func (FeedbackHandler) Kind() messaging.HandlerKind { return messaging.HandlerFeedback }

func (h FeedbackHandler) Handle(ctx context.Context, scope *Scope, msg *messaging.Message) (*messaging.Message, error) {
	if !scope.Session.FeedbackInProgress {
		return h.start(ctx, scope, msg)
	}
	return h.collect(ctx, scope, msg)
}

func (FeedbackHandler) start(ctx context.Context, scope *Scope, msg *messaging.Message) (*messaging.Message, error) {
	if err := scope.SetFlowFlags(ctx, true, scope.Session.HandoffInProgress); err != nil {
		return nil, err
	}
	out := msg.Reply(messaging.ContentOptionsUI, "How would you rate your experience so far?")
	out.PrimaryHandler = messaging.HandlerFeedback
	out.Metadata["options"] = []string{"1", "2", "3", "4", "5"}
	return out, nil
}

func (FeedbackHandler) collect(ctx context.Context, scope *Scope, msg *messaging.Message) (*messaging.Message, error) {
	rating, ok := parseRating(msg)
	if !ok {
		out := msg.Reply(messaging.ContentOptionsUI, "Please pick a rating from 1 to 5.")
		out.PrimaryHandler = messaging.HandlerFeedback
		out.Metadata["options"] = []string{"1", "2", "3", "4", "5"}
		return out, nil
	}

	if err := scope.SetFlowFlags(ctx, false, scope.Session.HandoffInProgress); err != nil {
		return nil, err
	}
	record := msg.Reply(messaging.ContentText, "Thank you for your feedback!")
	record.PrimaryHandler = messaging.HandlerFeedback
	record.Feedback = &messaging.Feedback{Rating: rating, Comment: msg.Content}
	return record, nil
}

// parseRating accepts a bare number or an option choice like "option_4".
func parseRating(msg *messaging.Message) (int, bool) {
	raw := strings.TrimSpace(msg.Content)
	raw = strings.TrimPrefix(raw, "option_")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}

// HandoffHandler escalates the conversation to a human agent and silences
// the bot until the user closes the handoff.
type HandoffHandler struct{}

func (HandoffHandler) Kind() messaging.HandlerKind { return messaging.HandlerHumanHandoff }

func (h HandoffHandler) Handle(ctx context.Context, scope *Scope, msg *messaging.Message) (*messaging.Message, error) {
	if !scope.Session.HandoffInProgress {
		return h.escalate(ctx, scope, msg)
	}
	if isHandoffClose(msg.Content) {
		if err := scope.SetFlowFlags(ctx, scope.Session.FeedbackInProgress, false); err != nil {
			return nil, err
		}
		out := msg.Reply(messaging.ContentText, "Okay, I'm back! How can I help?")
		out.PrimaryHandler = messaging.HandlerHumanHandoff
		return out, nil
	}
	// The conversation belongs to the agent; the bot stays quiet.
	return nil, nil
}

func (HandoffHandler) escalate(ctx context.Context, scope *Scope, msg *messaging.Message) (*messaging.Message, error) {
	if err := scope.SetFlowFlags(ctx, scope.Session.FeedbackInProgress, true); err != nil {
		return nil, err
	}
	out := msg.Reply(messaging.ContentText, "I've asked a member of the care team to join this conversation. Say \"resume bot\" to talk to me again.")
	out.PrimaryHandler = messaging.HandlerHumanHandoff
	out.HumanHandoff = &messaging.HumanHandoff{TicketID: uuid.NewString(), Active: true}
	return out, nil
}

func isHandoffClose(content string) bool {
	text := strings.ToLower(strings.TrimSpace(content))
	return strings.Contains(text, "resume bot") || strings.Contains(text, "back to bot")
}
