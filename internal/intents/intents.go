// Package intents classifies inbound messages so the router can pick a
// handler.
package intents

import (
	"context"
	"strings"

	"github.com/reanhealth/botgateway/internal/messaging"
)

// Recognizer classifies one inbound message. A nil intent means nothing
// matched and the router falls through to small talk.
type Recognizer interface {
	Recognize(ctx context.Context, msg *messaging.Message) (*messaging.Intent, error)
}

// Rule maps trigger phrases onto an intent routed to a handler.
type Rule struct {
	Intent   string
	Handler  messaging.HandlerKind
	Triggers []string
}

// KeywordRecognizer matches case-insensitive trigger phrases. It is the
// default recognizer; an NLU service can replace it behind the same
// interface.
type KeywordRecognizer struct {
	rules []Rule
}

// DefaultRules cover the built-in conversation flows.
func DefaultRules() []Rule {
	return []Rule{
		{Intent: "feedback", Handler: messaging.HandlerFeedback, Triggers: []string{"feedback", "rate", "rating"}},
		{Intent: "human_handoff", Handler: messaging.HandlerHumanHandoff, Triggers: []string{"agent", "human", "talk to someone", "representative"}},
		{Intent: "assessment", Handler: messaging.HandlerAssessment, Triggers: []string{"assessment", "check-in", "checkin", "symptom"}},
		{Intent: "reminder", Handler: messaging.HandlerReminder, Triggers: []string{"remind", "reminder"}},
		{Intent: "task", Handler: messaging.HandlerTask, Triggers: []string{"task", "todo", "exercise plan"}},
		{Intent: "qna", Handler: messaging.HandlerQnA, Triggers: []string{"?", "what", "how", "when", "why"}},
	}
}

// NewKeywordRecognizer creates a recognizer over the given rules.
func NewKeywordRecognizer(rules []Rule) *KeywordRecognizer {
	return &KeywordRecognizer{rules: rules}
}

// Recognize returns the first rule whose trigger appears in the message
// text. Non-text messages never match.
func (r *KeywordRecognizer) Recognize(ctx context.Context, msg *messaging.Message) (*messaging.Intent, error) {
	if msg.ContentType != messaging.ContentText {
		return nil, nil
	}
	text := strings.ToLower(msg.Content)
	for _, rule := range r.rules {
		for _, trigger := range rule.Triggers {
			if strings.Contains(text, trigger) {
				return &messaging.Intent{
					Name:       rule.Intent,
					Confidence: 1,
					Slots:      map[string]string{"handler": string(rule.Handler)},
				}, nil
			}
		}
	}
	return nil, nil
}

// HandlerFor maps a recognized intent back onto the handler kind it routes
// to.
func HandlerFor(intent *messaging.Intent) (messaging.HandlerKind, bool) {
	if intent == nil || intent.Slots == nil {
		return "", false
	}
	h, ok := intent.Slots["handler"]
	if !ok || h == "" {
		return "", false
	}
	return messaging.HandlerKind(h), true
}
