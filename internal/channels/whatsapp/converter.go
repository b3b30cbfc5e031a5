package whatsapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// Webhook payload shapes for the WhatsApp Business Cloud API. The same wire
// format is served by 360dialog, so the converter is shared between both
// adapters and parameterized by channel kind.

type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         valueMetadata    `json:"metadata"`
	Contacts         []waContact      `json:"contacts"`
	Messages         []inboundMessage `json:"messages"`
	Statuses         []statusUpdate   `json:"statuses"`
}

type valueMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *inboundMedia `json:"image,omitempty"`
	Video    *inboundMedia `json:"video,omitempty"`
	Audio    *inboundMedia `json:"audio,omitempty"`
	Sticker  *inboundMedia `json:"sticker,omitempty"`
	Document *struct {
		inboundMedia
		Filename string `json:"filename"`
	} `json:"document,omitempty"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Name      string  `json:"name"`
		Address   string  `json:"address"`
	} `json:"location,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
	Reaction *struct {
		MessageID string `json:"message_id"`
		Emoji     string `json:"emoji"`
	} `json:"reaction,omitempty"`
	Contacts []struct {
		Name struct {
			FormattedName string `json:"formatted_name"`
			FirstName     string `json:"first_name"`
			LastName      string `json:"last_name"`
		} `json:"name"`
		Phones []struct {
			Phone string `json:"phone"`
			Type  string `json:"type"`
		} `json:"phones"`
	} `json:"contacts,omitempty"`
}

type inboundMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	SHA256   string `json:"sha256"`
}

type statusUpdate struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// Outbound payload shapes, POSTed to /{phone_number_id}/messages.

type outboundMessage struct {
	MessagingProduct string               `json:"messaging_product"`
	RecipientType    string               `json:"recipient_type"`
	To               string               `json:"to"`
	Type             string               `json:"type"`
	Text             *outboundText        `json:"text,omitempty"`
	Image            *outboundMedia       `json:"image,omitempty"`
	Video            *outboundMedia       `json:"video,omitempty"`
	Audio            *outboundMedia       `json:"audio,omitempty"`
	Document         *outboundMedia       `json:"document,omitempty"`
	Interactive      *outboundInteractive `json:"interactive,omitempty"`
}

type outboundText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type outboundMedia struct {
	Link    string `json:"link,omitempty"`
	ID      string `json:"id,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type outboundInteractive struct {
	Type   string `json:"type"`
	Body   struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []outboundButton `json:"buttons"`
	} `json:"action"`
}

type outboundButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// Converter translates WhatsApp Cloud webhook deliveries to and from the
// canonical message model.
type Converter struct {
	kind messaging.ChannelKind
}

// NewConverter creates a converter tagging messages with the given kind.
func NewConverter(kind messaging.ChannelKind) *Converter {
	return &Converter{kind: kind}
}

// FromChannel parses a webhook delivery into a canonical inbound message.
// Status-only deliveries and payloads without messages return (nil, nil).
func (c *Converter) FromChannel(raw []byte) (*messaging.Message, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "parse whatsapp payload")
	}
	if payload.Object != "whatsapp_business_account" {
		return nil, errs.New(errs.KindValidation, "unexpected webhook object: %q", payload.Object)
	}

	for _, e := range payload.Entry {
		for _, ch := range e.Changes {
			if len(ch.Value.Messages) == 0 {
				continue
			}
			return c.convertMessage(ch.Value, ch.Value.Messages[0])
		}
	}
	return nil, nil
}

func (c *Converter) convertMessage(v changeValue, in inboundMessage) (*messaging.Message, error) {
	msg := &messaging.Message{
		Direction:         messaging.DirectionIn,
		Channel:           c.kind,
		ChannelUserID:     in.From,
		ProviderMessageID: in.ID,
		Timestamp:         parseUnixSeconds(in.Timestamp),
		Metadata:          map[string]any{},
	}
	if v.Metadata.PhoneNumberID != "" {
		msg.Metadata["phone_number_id"] = v.Metadata.PhoneNumberID
	}
	for _, contact := range v.Contacts {
		if contact.WaID == in.From && contact.Profile.Name != "" {
			msg.Metadata["profile_name"] = contact.Profile.Name
		}
	}

	switch in.Type {
	case "text":
		msg.ContentType = messaging.ContentText
		if in.Text != nil {
			msg.Content = in.Text.Body
		}
	case "image":
		c.applyMedia(msg, messaging.ContentImage, in.Image)
	case "sticker":
		c.applyMedia(msg, messaging.ContentImage, in.Sticker)
	case "video":
		c.applyMedia(msg, messaging.ContentVideo, in.Video)
	case "audio":
		c.applyMedia(msg, messaging.ContentAudio, in.Audio)
	case "document":
		msg.ContentType = messaging.ContentFile
		if in.Document != nil {
			msg.Content = in.Document.Caption
			if msg.Content == "" {
				msg.Content = in.Document.Filename
			}
			msg.Metadata["media_id"] = in.Document.ID
			msg.Metadata["mime_type"] = in.Document.MimeType
			msg.Metadata["filename"] = in.Document.Filename
		}
	case "location":
		msg.ContentType = messaging.ContentLocation
		if in.Location != nil {
			msg.Content = fmt.Sprintf("%f,%f", in.Location.Latitude, in.Location.Longitude)
			msg.Metadata["latitude"] = in.Location.Latitude
			msg.Metadata["longitude"] = in.Location.Longitude
			if in.Location.Name != "" {
				msg.Metadata["location_name"] = in.Location.Name
			}
			if in.Location.Address != "" {
				msg.Metadata["location_address"] = in.Location.Address
			}
		}
	case "interactive":
		msg.ContentType = messaging.ContentOptionChoice
		if in.Interactive != nil {
			switch {
			case in.Interactive.ButtonReply != nil:
				msg.Content = in.Interactive.ButtonReply.ID
				msg.Metadata["option_title"] = in.Interactive.ButtonReply.Title
			case in.Interactive.ListReply != nil:
				msg.Content = in.Interactive.ListReply.ID
				msg.Metadata["option_title"] = in.Interactive.ListReply.Title
			}
		}
	case "button":
		msg.ContentType = messaging.ContentOptionChoice
		if in.Button != nil {
			msg.Content = in.Button.Payload
			msg.Metadata["option_title"] = in.Button.Text
		}
	case "reaction":
		msg.ContentType = messaging.ContentMessageReaction
		if in.Reaction != nil {
			msg.Content = in.Reaction.Emoji
			msg.Metadata["reacted_message_id"] = in.Reaction.MessageID
		}
	case "contacts":
		msg.ContentType = messaging.ContentSharedContact
		if len(in.Contacts) > 0 {
			shared := in.Contacts[0]
			msg.Content = shared.Name.FormattedName
			if len(shared.Phones) > 0 {
				msg.Metadata["shared_phone"] = shared.Phones[0].Phone
			}
		}
	default:
		msg.ContentType = messaging.ContentOther
		msg.Content = in.Type
		msg.Metadata["raw_type"] = in.Type
	}
	return msg, nil
}

func (c *Converter) applyMedia(msg *messaging.Message, contentType messaging.ContentType, media *inboundMedia) {
	msg.ContentType = contentType
	if media == nil {
		return
	}
	msg.Content = media.Caption
	msg.Metadata["media_id"] = media.ID
	msg.Metadata["mime_type"] = media.MimeType
}

// ToChannel serializes an outgoing message into the Cloud API send payload.
// Unsupported content types fall back to a plain text message.
func (c *Converter) ToChannel(msg *messaging.Message) ([]byte, error) {
	out := outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               msg.ChannelUserID,
	}

	switch msg.ContentType {
	case messaging.ContentImage:
		out.Type = "image"
		out.Image = mediaFromMeta(msg)
	case messaging.ContentVideo:
		out.Type = "video"
		out.Video = mediaFromMeta(msg)
	case messaging.ContentAudio:
		out.Type = "audio"
		out.Audio = mediaFromMeta(msg)
	case messaging.ContentFile:
		out.Type = "document"
		out.Document = mediaFromMeta(msg)
	case messaging.ContentOptionsUI:
		interactive, ok := interactiveFromMeta(msg)
		if !ok {
			break
		}
		out.Type = "interactive"
		out.Interactive = interactive
	}

	if out.Type == "" || (out.Type != "text" && out.Type != "interactive" && mediaLinkMissing(out)) {
		out.Type = "text"
		out.Image, out.Video, out.Audio, out.Document = nil, nil, nil, nil
		out.Text = &outboundText{Body: msg.Content}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "marshal whatsapp payload")
	}
	return body, nil
}

// StatusUpdates extracts sent/delivered/read receipts from a webhook
// delivery. Malformed payloads yield no updates.
func (c *Converter) StatusUpdates(raw []byte) []channels.StatusUpdate {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	var updates []channels.StatusUpdate
	for _, e := range payload.Entry {
		for _, ch := range e.Changes {
			for _, s := range ch.Value.Statuses {
				updates = append(updates, channels.StatusUpdate{
					ProviderMessageID: s.ID,
					Status:            messaging.ParseDeliveryStatus(s.Status),
					RawStatus:         s.Status,
					Timestamp:         parseUnixSeconds(s.Timestamp),
					Recipient:         s.RecipientID,
				})
			}
		}
	}
	return updates
}

func mediaFromMeta(msg *messaging.Message) *outboundMedia {
	link := msg.MetaString("media_url")
	if link == "" {
		return nil
	}
	return &outboundMedia{Link: link, Caption: msg.Content}
}

func mediaLinkMissing(out outboundMessage) bool {
	switch out.Type {
	case "image":
		return out.Image == nil
	case "video":
		return out.Video == nil
	case "audio":
		return out.Audio == nil
	case "document":
		return out.Document == nil
	}
	return false
}

// interactiveFromMeta builds a reply-button message from the "options"
// metadata slice. WhatsApp caps reply buttons at three.
func interactiveFromMeta(msg *messaging.Message) (*outboundInteractive, bool) {
	rawOptions, ok := msg.Metadata["options"]
	if !ok {
		return nil, false
	}
	var titles []string
	switch opts := rawOptions.(type) {
	case []string:
		titles = opts
	case []any:
		for _, o := range opts {
			if s, ok := o.(string); ok {
				titles = append(titles, s)
			}
		}
	}
	if len(titles) == 0 {
		return nil, false
	}
	if len(titles) > 3 {
		titles = titles[:3]
	}

	interactive := &outboundInteractive{Type: "button"}
	interactive.Body.Text = msg.Content
	for i, title := range titles {
		var btn outboundButton
		btn.Type = "reply"
		btn.Reply.ID = "option_" + strconv.Itoa(i+1)
		btn.Reply.Title = truncate(title, 20)
		interactive.Action.Buttons = append(interactive.Action.Buttons, btn)
	}
	return interactive, true
}

// truncate limits s to max characters without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

func parseUnixSeconds(raw string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
