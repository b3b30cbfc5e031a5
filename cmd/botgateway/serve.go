package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/reanhealth/botgateway/internal/channels"
	"github.com/reanhealth/botgateway/internal/channels/slackchannel"
	"github.com/reanhealth/botgateway/internal/channels/telegramchannel"
	"github.com/reanhealth/botgateway/internal/channels/webchannel"
	"github.com/reanhealth/botgateway/internal/channels/whatsapp"
	"github.com/reanhealth/botgateway/internal/channels/whatsappd360"
	"github.com/reanhealth/botgateway/internal/config"
	"github.com/reanhealth/botgateway/internal/db"
	"github.com/reanhealth/botgateway/internal/dispatch"
	"github.com/reanhealth/botgateway/internal/handlers"
	"github.com/reanhealth/botgateway/internal/identity"
	"github.com/reanhealth/botgateway/internal/intents"
	"github.com/reanhealth/botgateway/internal/logger"
	"github.com/reanhealth/botgateway/internal/maintenance"
	"github.com/reanhealth/botgateway/internal/messages"
	"github.com/reanhealth/botgateway/internal/pipeline"
	"github.com/reanhealth/botgateway/internal/queue"
	"github.com/reanhealth/botgateway/internal/server"
	"github.com/reanhealth/botgateway/internal/tenants"
	"github.com/reanhealth/botgateway/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideTenantPools,
			provideTenantStore,
			provideTenantService,
			webchannel.NewHub,
			provideChannelRegistry,
			provideSendLimiter,
			provideMessageCache,
			queue.NewKeyMutex,
			provideRecognizer,
			provideRouter,
			provideOutgoingProcessor,
			provideRegistrar,
			provideProcessor,
			provideQueue,
			provideMaintenance,
			provideServerHandler(provideHealthHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideAdminHandler),
			provideServerHandler(provideWebSocketHandler),
			provideServer,
		),
		fx.Invoke(
			startQueue,
			startMaintenance,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideTenantPools(lc fx.Lifecycle, log *slog.Logger, conn *pgxpool.Pool) *db.TenantPools {
	pools := db.NewTenantPools(log, conn)
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pools.Close(); return nil }})
	return pools
}

func provideTenantStore(log *slog.Logger, conn *pgxpool.Pool) *tenants.Store {
	return tenants.NewStore(log, conn)
}

func provideTenantService(log *slog.Logger, store *tenants.Store, cfg config.Config) *tenants.Service {
	ttl, err := time.ParseDuration(cfg.Cache.TenantTTL)
	if err != nil || ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return tenants.NewService(log, store, ttl)
}

func provideChannelRegistry(log *slog.Logger, hub *webchannel.Hub) *channels.Registry {
	registry := channels.NewRegistry()
	registry.MustRegister(whatsapp.NewAdapter(log))
	registry.MustRegister(whatsappd360.NewAdapter(log))
	registry.MustRegister(slackchannel.NewAdapter(log))
	registry.MustRegister(telegramchannel.NewAdapter(log))
	registry.MustRegister(webchannel.NewAdapter(hub, log))
	return registry
}

func provideSendLimiter(cfg config.Config) *channels.SendLimiter {
	return channels.NewSendLimiter(cfg.Send.PerSecond, cfg.Send.Burst)
}

func provideMessageCache(cfg config.Config) *messages.Cache {
	return messages.NewCache(cfg.Cache.MessagesPerSession)
}

func provideRecognizer() intents.Recognizer {
	return intents.NewKeywordRecognizer(intents.DefaultRules())
}

func provideRouter(recognizer intents.Recognizer, log *slog.Logger) (*dispatch.Router, error) {
	return dispatch.NewRouter(recognizer, []dispatch.Handler{
		dispatch.SmallTalkHandler{},
		dispatch.FeedbackHandler{},
		dispatch.HandoffHandler{},
	}, log)
}

func provideOutgoingProcessor(limiter *channels.SendLimiter, log *slog.Logger) *dispatch.OutgoingProcessor {
	return dispatch.NewOutgoingProcessor(limiter, log)
}

func provideRegistrar(cfg config.Config, log *slog.Logger) identity.Registrar {
	return identity.FromConfig(cfg.Identity.BaseURL, cfg.Identity.APIKey, log)
}

func provideProcessor(
	tenantSvc *tenants.Service,
	registry *channels.Registry,
	pools *db.TenantPools,
	registrar identity.Registrar,
	router *dispatch.Router,
	outgoing *dispatch.OutgoingProcessor,
	cache *messages.Cache,
	keys *queue.KeyMutex,
	log *slog.Logger,
) *pipeline.Processor {
	return pipeline.NewProcessor(tenantSvc, registry, pools, registrar, router, outgoing, cache, keys, log)
}

func provideQueue(log *slog.Logger, proc *pipeline.Processor, cfg config.Config) *queue.Queue {
	return queue.New(log, proc.ProcessJob, queue.Options{
		Workers:     cfg.Queue.Workers,
		Capacity:    cfg.Queue.Capacity,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Queue.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Queue.MaxDelayMs) * time.Millisecond,
		DeadLetter: func(job queue.Job, err error) {
			log.Error("job dead lettered",
				slog.String("job_id", job.ID),
				slog.String("tenant", job.TenantName),
				slog.String("channel", job.Channel.String()),
				slog.Int("attempts", job.Attempts),
				slog.Any("error", err))
		},
	})
}

func provideMaintenance(q *queue.Queue, tenantSvc *tenants.Service, log *slog.Logger) *maintenance.Service {
	return maintenance.NewService(q, tenantSvc, log)
}

func provideHealthHandler(log *slog.Logger) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log)
}

func provideWebhookHandler(tenantSvc *tenants.Service, registry *channels.Registry, q *queue.Queue, log *slog.Logger) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(tenantSvc, registry, q, log)
}

func provideAdminHandler(cfg config.Config, store *tenants.Store, tenantSvc *tenants.Service, registry *channels.Registry, log *slog.Logger) *handlers.AdminHandler {
	return handlers.NewAdminHandler(cfg, store, tenantSvc, tenantSvc, registry, log)
}

func provideWebSocketHandler(tenantSvc *tenants.Service, hub *webchannel.Hub, q *queue.Queue, log *slog.Logger) *handlers.WebSocketHandler {
	return handlers.NewWebSocketHandler(tenantSvc, hub, q, log)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	addr := params.Config.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	return server.NewServer(addr, params.Config.Auth.JWTSecret, params.ServerHandlers, params.Logger)
}

func startQueue(lc fx.Lifecycle, q *queue.Queue) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { q.Start(ctx); return nil },
		OnStop:  func(ctx context.Context) error { return q.Stop(ctx) },
	})
}

func startMaintenance(lc fx.Lifecycle, svc *maintenance.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return svc.Start() },
		OnStop:  func(ctx context.Context) error { return svc.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting botgateway %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
