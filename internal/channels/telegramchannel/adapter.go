// Package telegramchannel implements the Telegram channel adapter on the
// Bot API webhook surface.
package telegramchannel

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/tenants"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Adapter drives the Telegram Bot API. Bot clients are cached per token
// because constructing one performs a getMe call.
type Adapter struct {
	conv *Converter
	log  *slog.Logger

	mu   sync.RWMutex
	bots map[string]*tgbotapi.BotAPI
}

// NewAdapter creates the Telegram adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	return &Adapter{
		conv: NewConverter(),
		log:  log.With(slog.String("component", "channels.telegram")),
		bots: make(map[string]*tgbotapi.BotAPI),
	}
}

var getOrCreateBotForTest func(a *Adapter, token string) (*tgbotapi.BotAPI, error)

func (a *Adapter) getOrCreateBot(token string) (*tgbotapi.BotAPI, error) {
	if getOrCreateBotForTest != nil {
		return getOrCreateBotForTest(a, token)
	}
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalService, err, "create telegram bot")
	}
	a.bots[token] = bot
	return bot, nil
}

func (a *Adapter) Kind() messaging.ChannelKind { return messaging.ChannelTelegram }

// Init constructs the bot client eagerly so a bad token fails at tenant
// setup instead of on the first send.
func (a *Adapter) Init(ctx context.Context, tenant tenants.Tenant) error {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return errs.New(errs.KindValidation, "tenant %s has no %s credentials", tenant.Name, a.Kind())
	}
	if creds.BotToken == "" {
		return errs.New(errs.KindValidation, "tenant %s: telegram requires bot_token", tenant.Name)
	}
	_, err := a.getOrCreateBot(creds.BotToken)
	return err
}

// SetupWebhook points the bot at the tenant's receive URL. The secret token
// parameter makes Telegram echo the header token on every delivery.
func (a *Adapter) SetupWebhook(ctx context.Context, tenant tenants.Tenant, publicBaseURL string) error {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return errs.New(errs.KindValidation, "tenant %s has no %s credentials", tenant.Name, a.Kind())
	}
	bot, err := a.getOrCreateBot(creds.BotToken)
	if err != nil {
		return err
	}

	params := tgbotapi.Params{
		"url":          channels.ReceiveURL(publicBaseURL, tenant.Name, a.Kind(), creds.URLToken),
		"secret_token": creds.HeaderToken,
	}
	resp, err := bot.MakeRequest("setWebhook", params)
	if err != nil {
		return errs.Wrap(errs.KindExternalService, err, "telegram setWebhook")
	}
	if !resp.Ok {
		return errs.New(errs.KindExternalService, "telegram setWebhook: %s", resp.Description)
	}
	a.log.Info("telegram webhook configured",
		slog.String("tenant", tenant.Name),
		slog.String("url", params["url"]))
	return nil
}

func (a *Adapter) Authenticator(tenant tenants.Tenant) channels.Authenticator {
	creds, _ := tenant.Credentials(a.Kind())
	return channels.NewTokenAuthenticator(secretTokenHeader,
		channels.WebhookTokens{HeaderToken: creds.HeaderToken, URLToken: creds.URLToken})
}

func (a *Adapter) Converter() channels.Converter { return a.conv }

func (a *Adapter) ProcessIncoming(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

func (a *Adapter) ProcessOutgoing(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	return msg, nil
}

// Send delivers the payload as a sendMessage call, attaching an inline
// keyboard when the payload carries options.
func (a *Adapter) Send(ctx context.Context, tenant tenants.Tenant, channelUserID string, payload []byte) messaging.ProviderResponse {
	creds, ok := tenant.Credentials(a.Kind())
	if !ok {
		return messaging.ProviderResponse{OK: false, Body: "missing telegram credentials"}
	}
	var out outboundPayload
	if err := json.Unmarshal(payload, &out); err != nil {
		return messaging.ProviderResponse{OK: false, Body: "bad telegram payload: " + err.Error()}
	}

	bot, err := a.getOrCreateBot(creds.BotToken)
	if err != nil {
		return messaging.ProviderResponse{OK: false, Body: err.Error()}
	}

	msg := tgbotapi.NewMessage(out.ChatID, out.Text)
	if len(out.Options) > 0 {
		var buttons [][]tgbotapi.InlineKeyboardButton
		for i, opt := range out.Options {
			data := "option_" + strconv.Itoa(i+1)
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(opt, data)))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	}

	sent, err := bot.Send(msg)
	if err != nil {
		a.log.Warn("telegram send failed",
			slog.String("tenant", tenant.Name),
			slog.String("error", err.Error()))
		return messaging.ProviderResponse{OK: false, Body: err.Error()}
	}
	return messaging.ProviderResponse{
		OK:         true,
		MessageID:  strconv.Itoa(sent.MessageID),
		StatusCode: 200,
	}
}

func (a *Adapter) Acknowledge(r channels.AuthRequest) messaging.Acknowledgement {
	return messaging.AckOK()
}
