package slackchannel

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// Events API envelope. Only message events inside a thread are actionable:
// each thread is one conversation with the bot, so top-level channel chatter
// and bot echoes are dropped during conversion.

type eventEnvelope struct {
	Type      string     `json:"type"`
	Challenge string     `json:"challenge,omitempty"`
	TeamID    string     `json:"team_id,omitempty"`
	Event     innerEvent `json:"event,omitempty"`
}

type innerEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	Text     string `json:"text,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// outboundPayload is the intermediate send payload produced by ToChannel and
// consumed by Adapter.Send.
type outboundPayload struct {
	Channel  string `json:"channel"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Text     string `json:"text"`
}

// Converter translates Slack Events API deliveries to and from the
// canonical message model.
type Converter struct{}

// NewConverter creates a Slack converter.
func NewConverter() *Converter {
	return &Converter{}
}

// FromChannel parses an Events API delivery. URL verification handshakes,
// bot messages, and messages outside a thread return (nil, nil).
func (c *Converter) FromChannel(raw []byte) (*messaging.Message, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "parse slack payload")
	}

	if env.Type != "event_callback" {
		return nil, nil
	}
	ev := env.Event
	if ev.Type != "message" || ev.BotID != "" || ev.Subtype != "" {
		return nil, nil
	}
	if ev.ThreadTS == "" || ev.ThreadTS == ev.TS {
		// A thread parent or free-standing channel message, not a reply in
		// a bot conversation.
		return nil, nil
	}
	if ev.User == "" || ev.Text == "" {
		return nil, nil
	}

	return &messaging.Message{
		Direction:         messaging.DirectionIn,
		Channel:           messaging.ChannelSlack,
		ChannelUserID:     ev.User,
		ContentType:       messaging.ContentText,
		Content:           ev.Text,
		ProviderMessageID: ev.TS,
		Timestamp:         parseSlackTS(ev.TS),
		Metadata: map[string]any{
			"slack_channel": ev.Channel,
			"thread_ts":     ev.ThreadTS,
		},
	}, nil
}

// ToChannel serializes an outgoing message into the intermediate send
// payload. Option prompts render as a bulleted text message since the
// thread reply surface has no native reply buttons here.
func (c *Converter) ToChannel(msg *messaging.Message) ([]byte, error) {
	channel := msg.MetaString("slack_channel")
	if channel == "" {
		return nil, errs.New(errs.KindValidation, "outgoing slack message is missing slack_channel metadata")
	}

	text := msg.Content
	if msg.ContentType == messaging.ContentOptionsUI {
		if options := optionTitles(msg); len(options) > 0 {
			var b strings.Builder
			b.WriteString(msg.Content)
			for _, opt := range options {
				b.WriteString("\n• ")
				b.WriteString(opt)
			}
			text = b.String()
		}
	}

	body, err := json.Marshal(outboundPayload{
		Channel:  channel,
		ThreadTS: msg.MetaString("thread_ts"),
		Text:     text,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "marshal slack payload")
	}
	return body, nil
}

func optionTitles(msg *messaging.Message) []string {
	raw, ok := msg.Metadata["options"]
	if !ok {
		return nil
	}
	switch opts := raw.(type) {
	case []string:
		return opts
	case []any:
		var titles []string
		for _, o := range opts {
			if s, ok := o.(string); ok {
				titles = append(titles, s)
			}
		}
		return titles
	}
	return nil
}

func parseSlackTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil || f <= 0 {
		return time.Now().UTC()
	}
	secs := int64(f)
	nanos := int64((f - float64(secs)) * 1e9)
	return time.Unix(secs, nanos).UTC()
}
