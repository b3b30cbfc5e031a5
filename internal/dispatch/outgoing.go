package dispatch

import (
	"context"
	"log/slog"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// OutgoingProcessor pushes handler replies out through the channel adapter
// and records them.
type OutgoingProcessor struct {
	limiter *channels.SendLimiter
	log     *slog.Logger
}

// NewOutgoingProcessor creates an OutgoingProcessor.
func NewOutgoingProcessor(limiter *channels.SendLimiter, log *slog.Logger) *OutgoingProcessor {
	return &OutgoingProcessor{
		limiter: limiter,
		log:     log.With(slog.String("component", "dispatch.outgoing")),
	}
}

// Process serializes, rate-limits, sends, and persists one outgoing
// message. Provider failures classify as external-service errors so the
// queue retries the job.
func (p *OutgoingProcessor) Process(ctx context.Context, scope *Scope, out *messaging.Message) error {
	out.Direction = messaging.DirectionOut
	if out.SessionID == "" {
		out.SessionID = scope.Session.ID
	}
	if out.UserID == "" {
		out.UserID = scope.User.ID
	}

	out, err := scope.Adapter.ProcessOutgoing(ctx, out)
	if err != nil {
		return err
	}

	payload, err := scope.Adapter.Converter().ToChannel(out)
	if err != nil {
		return err
	}

	if err := p.limiter.Wait(ctx, scope.Tenant.ID, out.Channel); err != nil {
		return errs.Wrap(errs.KindInternal, err, "send rate limit")
	}

	resp := scope.Adapter.Send(ctx, scope.Tenant, out.ChannelUserID, payload)
	if !resp.OK {
		return errs.New(errs.KindExternalService, "%s send failed: %d %s", out.Channel, resp.StatusCode, resp.Body)
	}
	out.ProviderResponseMessageID = resp.MessageID

	if _, err := scope.Messages.Insert(ctx, out); err != nil {
		return err
	}
	if resp.MessageID != "" {
		if err := scope.Messages.SetProviderResponseID(ctx, out.ID, resp.MessageID); err != nil {
			return err
		}
	}
	if scope.Cache != nil {
		scope.Cache.AddMessage(out.SessionID, out)
	}

	p.log.Debug("message sent",
		slog.String("tenant", scope.Tenant.Name),
		slog.String("channel", out.Channel.String()),
		slog.String("handler", string(out.PrimaryHandler)))
	return nil
}
