// Package pipeline processes queued webhook deliveries: convert, resolve,
// deduplicate, route, reply.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/dispatch"
	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/identity"
	"github.com/reanhealth/botgateway/internal/messages"
	"github.com/reanhealth/botgateway/internal/messaging"
	"github.com/reanhealth/botgateway/internal/queue"
	"github.com/reanhealth/botgateway/internal/sessions"
	"github.com/reanhealth/botgateway/internal/tenants"
)

// tenantReader is the slice of the tenant service the pipeline uses.
type tenantReader interface {
	GetByID(ctx context.Context, id string) (tenants.Tenant, error)
}

// poolProvider hands out the tenant's database pool.
type poolProvider interface {
	Get(ctx context.Context, tenant tenants.Tenant) (*pgxpool.Pool, error)
}

// messageStore is the slice of the message store the pipeline writes
// through.
type messageStore interface {
	dispatch.MessageRecorder
	StampDeliveryStatus(ctx context.Context, tenantID string, channel messaging.ChannelKind, update channels.StatusUpdate) error
}

// storeSet bundles the per-job stores bound to the tenant's pool.
type storeSet struct {
	sessions sessions.SessionStore
	flows    dispatch.FlowStore
	messages messageStore
}

// Processor turns one queued delivery into stored messages and replies. It
// is stateless per job apart from the shared caches; per-user ordering
// comes from the key mutex.
type Processor struct {
	tenantSvc tenantReader
	registry  *channels.Registry
	pools     poolProvider
	registrar identity.Registrar
	router    *dispatch.Router
	outgoing  *dispatch.OutgoingProcessor
	cache     *messages.Cache
	keys      *queue.KeyMutex
	log       *slog.Logger

	newStores func(pool *pgxpool.Pool) storeSet
}

// NewProcessor creates a Processor.
func NewProcessor(
	tenantSvc tenantReader,
	registry *channels.Registry,
	pools poolProvider,
	registrar identity.Registrar,
	router *dispatch.Router,
	outgoing *dispatch.OutgoingProcessor,
	cache *messages.Cache,
	keys *queue.KeyMutex,
	log *slog.Logger,
) *Processor {
	return &Processor{
		tenantSvc: tenantSvc,
		registry:  registry,
		pools:     pools,
		registrar: registrar,
		router:    router,
		outgoing:  outgoing,
		cache:     cache,
		keys:      keys,
		log:       log.With(slog.String("component", "pipeline")),
		newStores: func(pool *pgxpool.Pool) storeSet {
			sessStore := sessions.NewStore(pool)
			return storeSet{
				sessions: sessStore,
				flows:    sessStore,
				messages: messages.NewStore(pool),
			}
		},
	}
}

// ProcessJob is the queue processor. Validation failures are no-ops;
// not-found, external-service and internal failures bubble up for retry.
func (p *Processor) ProcessJob(ctx context.Context, job queue.Job) error {
	tenant, err := p.tenantSvc.GetByID(ctx, job.TenantID)
	if err != nil {
		return err
	}

	adapter, ok := p.registry.Get(job.Channel)
	if !ok {
		return errs.New(errs.KindValidation, "no adapter for channel %s", job.Channel)
	}

	pool, err := p.pools.Get(ctx, tenant)
	if err != nil {
		return err
	}
	stores := p.newStores(pool)

	// Delivery receipts ride the same webhook; stamp them before looking
	// for an actionable message.
	if reporter, ok := adapter.Converter().(channels.StatusReporter); ok {
		for _, update := range reporter.StatusUpdates(job.Payload) {
			if err := stores.messages.StampDeliveryStatus(ctx, tenant.ID, job.Channel, update); err != nil {
				return err
			}
		}
	}

	msg, err := adapter.Converter().FromChannel(job.Payload)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	msg.TenantID = tenant.ID
	msg.TenantName = tenant.Name
	msg.Channel = job.Channel

	// One conversation at a time per channel user; concurrent messages from
	// the same user process in arrival order.
	unlock := p.keys.Lock(string(job.Channel) + ":" + msg.ChannelUserID)
	defer unlock()

	resolver := sessions.NewResolver(stores.sessions, p.registrar, p.log)
	res, err := resolver.Resolve(ctx, tenant.Name, msg)
	if err != nil {
		return err
	}
	msg.SessionID = res.Session.ID
	msg.UserID = res.User.ID

	inserted, err := stores.messages.Insert(ctx, msg)
	if err != nil {
		return err
	}
	if !inserted && job.Attempts == 0 {
		// Re-delivered webhook; the first delivery already handled it.
		p.log.Info("duplicate delivery dropped",
			slog.String("tenant", tenant.Name),
			slog.String("channel", job.Channel.String()),
			slog.String("provider_message_id", msg.ProviderMessageID))
		return nil
	}
	p.cache.AddMessage(msg.SessionID, msg)

	msg, err = adapter.ProcessIncoming(ctx, msg)
	if err != nil {
		return err
	}

	scope := &dispatch.Scope{
		Tenant:   tenant,
		User:     res.User,
		Session:  res.Session,
		Adapter:  adapter,
		Messages: stores.messages,
		Flows:    stores.flows,
		Cache:    p.cache,
		Log:      p.log,
	}

	routed, err := p.router.Route(ctx, scope, msg)
	if err != nil {
		return err
	}
	for _, handler := range routed {
		reply, err := handler.Handle(ctx, scope, msg)
		if err != nil {
			return err
		}
		if reply == nil {
			continue
		}
		if err := p.outgoing.Process(ctx, scope, reply); err != nil {
			return err
		}
	}
	return nil
}
