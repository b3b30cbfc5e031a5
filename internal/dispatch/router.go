package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reanhealth/botgateway/internal/intents"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// Router picks the handlers for an inbound message. Active flows outrank
// recognized intents: a feedback or handoff in progress claims the message
// before intent recognition runs.
type Router struct {
	recognizer intents.Recognizer
	handlers   map[messaging.HandlerKind]Handler
	fallback   Handler
	log        *slog.Logger
}

// NewRouter creates a Router over the given handlers. The small-talk
// handler is the fallback and must be present.
func NewRouter(recognizer intents.Recognizer, handlers []Handler, log *slog.Logger) (*Router, error) {
	r := &Router{
		recognizer: recognizer,
		handlers:   make(map[messaging.HandlerKind]Handler, len(handlers)),
		log:        log.With(slog.String("component", "dispatch.router")),
	}
	for _, h := range handlers {
		if _, dup := r.handlers[h.Kind()]; dup {
			return nil, fmt.Errorf("duplicate handler: %s", h.Kind())
		}
		r.handlers[h.Kind()] = h
	}
	fallback, ok := r.handlers[messaging.HandlerSmallTalk]
	if !ok {
		return nil, fmt.Errorf("small talk handler is required")
	}
	r.fallback = fallback
	return r, nil
}

// Route picks the handlers for the message and attaches the recognized
// intent. An open feedback flow claims the message first, then an open
// handoff flow, then matched intents. Recognition failures fall back to
// small talk instead of failing the job.
func (r *Router) Route(ctx context.Context, scope *Scope, msg *messaging.Message) ([]Handler, error) {
	if scope.Session.FeedbackInProgress {
		if h, ok := r.handlers[messaging.HandlerFeedback]; ok {
			msg.PrimaryHandler = messaging.HandlerFeedback
			return []Handler{h}, nil
		}
	}
	if scope.Session.HandoffInProgress {
		if h, ok := r.handlers[messaging.HandlerHumanHandoff]; ok {
			msg.PrimaryHandler = messaging.HandlerHumanHandoff
			return []Handler{h}, nil
		}
	}

	intent, err := r.recognizer.Recognize(ctx, msg)
	if err != nil {
		r.log.Warn("intent recognition failed", slog.String("error", err.Error()))
	}
	if intent != nil {
		msg.Intent = intent
		if kind, ok := intents.HandlerFor(intent); ok {
			if h, ok := r.handlers[kind]; ok {
				msg.PrimaryHandler = kind
				return []Handler{h}, nil
			}
		}
	}

	msg.PrimaryHandler = messaging.HandlerSmallTalk
	return []Handler{r.fallback}, nil
}
