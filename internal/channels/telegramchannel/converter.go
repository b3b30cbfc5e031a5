package telegramchannel

import (
	"encoding/json"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// outboundPayload is the intermediate send payload produced by ToChannel and
// consumed by Adapter.Send.
type outboundPayload struct {
	ChatID  int64    `json:"chat_id"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// Converter translates Telegram webhook updates to and from the canonical
// message model. The chat id is the channel user id: every private chat with
// the bot is one conversation.
type Converter struct{}

// NewConverter creates a Telegram converter.
func NewConverter() *Converter {
	return &Converter{}
}

// FromChannel parses a webhook update. Edited messages, channel posts and
// other update kinds without a message or callback return (nil, nil).
func (c *Converter) FromChannel(raw []byte) (*messaging.Message, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "parse telegram update")
	}

	if update.CallbackQuery != nil {
		return c.convertCallback(update.CallbackQuery), nil
	}
	if update.Message == nil || update.Message.Chat == nil {
		return nil, nil
	}
	if update.Message.From != nil && update.Message.From.IsBot {
		return nil, nil
	}
	return c.convertMessage(update.Message), nil
}

func (c *Converter) convertCallback(cb *tgbotapi.CallbackQuery) *messaging.Message {
	if cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	msg := &messaging.Message{
		Direction:         messaging.DirectionIn,
		Channel:           messaging.ChannelTelegram,
		ChannelUserID:     strconv.FormatInt(cb.Message.Chat.ID, 10),
		ContentType:       messaging.ContentOptionChoice,
		Content:           cb.Data,
		ProviderMessageID: cb.ID,
		Timestamp:         time.Now().UTC(),
		Metadata:          map[string]any{"callback_message_id": cb.Message.MessageID},
	}
	applySender(msg, cb.From)
	return msg
}

func (c *Converter) convertMessage(in *tgbotapi.Message) *messaging.Message {
	msg := &messaging.Message{
		Direction:         messaging.DirectionIn,
		Channel:           messaging.ChannelTelegram,
		ChannelUserID:     strconv.FormatInt(in.Chat.ID, 10),
		ProviderMessageID: strconv.Itoa(in.MessageID),
		Timestamp:         time.Unix(int64(in.Date), 0).UTC(),
		Metadata:          map[string]any{},
	}
	applySender(msg, in.From)

	switch {
	case in.Text != "":
		msg.ContentType = messaging.ContentText
		msg.Content = in.Text
	case len(in.Photo) > 0:
		msg.ContentType = messaging.ContentImage
		msg.Content = in.Caption
		msg.Metadata["media_id"] = in.Photo[len(in.Photo)-1].FileID
	case in.Video != nil:
		msg.ContentType = messaging.ContentVideo
		msg.Content = in.Caption
		msg.Metadata["media_id"] = in.Video.FileID
	case in.Voice != nil:
		msg.ContentType = messaging.ContentAudio
		msg.Metadata["media_id"] = in.Voice.FileID
	case in.Audio != nil:
		msg.ContentType = messaging.ContentAudio
		msg.Content = in.Caption
		msg.Metadata["media_id"] = in.Audio.FileID
	case in.Document != nil:
		msg.ContentType = messaging.ContentFile
		msg.Content = in.Caption
		if msg.Content == "" {
			msg.Content = in.Document.FileName
		}
		msg.Metadata["media_id"] = in.Document.FileID
		msg.Metadata["filename"] = in.Document.FileName
	case in.Location != nil:
		msg.ContentType = messaging.ContentLocation
		msg.Content = strconv.FormatFloat(in.Location.Latitude, 'f', -1, 64) + "," +
			strconv.FormatFloat(in.Location.Longitude, 'f', -1, 64)
		msg.Metadata["latitude"] = in.Location.Latitude
		msg.Metadata["longitude"] = in.Location.Longitude
	case in.Contact != nil:
		msg.ContentType = messaging.ContentSharedContact
		msg.Content = in.Contact.FirstName + " " + in.Contact.LastName
		msg.Metadata["shared_phone"] = in.Contact.PhoneNumber
	case in.Sticker != nil:
		msg.ContentType = messaging.ContentImage
		msg.Metadata["media_id"] = in.Sticker.FileID
	default:
		msg.ContentType = messaging.ContentOther
	}
	return msg
}

func applySender(msg *messaging.Message, from *tgbotapi.User) {
	if from == nil {
		return
	}
	if from.FirstName != "" {
		msg.Metadata["first_name"] = from.FirstName
	}
	if from.LastName != "" {
		msg.Metadata["last_name"] = from.LastName
	}
	if from.UserName != "" {
		msg.Metadata["username"] = from.UserName
	}
}

// ToChannel serializes an outgoing message into the intermediate send
// payload. Option prompts carry their choices for an inline keyboard.
func (c *Converter) ToChannel(msg *messaging.Message) ([]byte, error) {
	chatID, err := strconv.ParseInt(msg.ChannelUserID, 10, 64)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "telegram chat id %q", msg.ChannelUserID)
	}

	out := outboundPayload{ChatID: chatID, Text: msg.Content}
	if msg.ContentType == messaging.ContentOptionsUI {
		out.Options = optionTitles(msg)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "marshal telegram payload")
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
