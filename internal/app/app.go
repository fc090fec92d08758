// Package app assembles the bot from configuration: storage, sessions,
// events, the registration workflow and the Telegram routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	corebootstrap "github.com/m3rciful/fingames/core/bootstrap"
	"github.com/m3rciful/fingames/core/buildinfo"
	corecmd "github.com/m3rciful/fingames/core/cmd"
	"github.com/m3rciful/fingames/core/logger"
	coretelegram "github.com/m3rciful/fingames/core/telegram"
	"github.com/m3rciful/fingames/core/telegram/router"
	tgsender "github.com/m3rciful/fingames/core/telegram/sender"
	"github.com/m3rciful/fingames/core/telegram/state"
	"github.com/m3rciful/fingames/internal/bot"
	"github.com/m3rciful/fingames/internal/catalog"
	"github.com/m3rciful/fingames/internal/config"
	"github.com/m3rciful/fingames/internal/events"
	"github.com/m3rciful/fingames/internal/moderation"
	"github.com/m3rciful/fingames/internal/registration"
	"github.com/m3rciful/fingames/internal/storage/memory"
	"github.com/m3rciful/fingames/internal/storage/postgres"
	"github.com/m3rciful/fingames/internal/voucher"
	"github.com/m3rciful/fingames/internal/workflow"
)

const redisPingTimeout = 5 * time.Second

// App owns every long-lived component of the bot.
type App struct {
	cfg *config.Config

	infra       *corebootstrap.Result
	redis       *redis.Client
	sessions    state.Manager
	stopJanitor context.CancelFunc
	emitter     *events.Emitter

	moderators moderation.Moderators
	notifier   *bot.Notifier
	handlers   *bot.Handlers
}

// Bootstrap adapts New to the command runner.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	return New(cfg, Deps{})
}

// Deps overrides infrastructure, mostly for tests. Zero values are built
// from configuration.
type Deps struct {
	Bootstrap func(corebootstrap.Options) (*corebootstrap.Result, error)
	Publisher events.Publisher
}

// New initializes infrastructure and wires the domain services.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	boot := deps.Bootstrap
	if boot == nil {
		boot = corebootstrap.Run
	}
	infra, err := boot(corebootstrap.Options{
		Config:      &cfg.Config,
		Database:    cfg.Database.Config,
		UseDatabase: cfg.Database.Enabled,
	})
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, infra: infra}
	if err := a.wire(deps); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(deps Deps) error {
	log := logger.L.With("component", "app")

	catCfg, err := a.cfg.CatalogConfig()
	if err != nil {
		return err
	}
	cat, err := catalog.New(catCfg)
	if err != nil {
		return err
	}

	var store registration.Store
	if a.infra.DB != nil {
		store = postgres.New(a.infra.DB)
	} else {
		store = memory.New()
		log.Warn("registrations kept in memory",
			slog.String("event", "storage"),
			slog.String("storage", "memory"),
		)
	}

	if err := a.initSessions(); err != nil {
		return err
	}

	pub := deps.Publisher
	if pub == nil {
		pub, err = a.newPublisher()
		if err != nil {
			return err
		}
	}
	a.emitter = events.NewEmitter(pub, a.cfg.Events.QueueSize)

	a.moderators = moderation.NewModerators(a.cfg.Telegram.AdminIDs...)
	a.notifier = bot.NewNotifier(a.moderators, cat)

	engine := workflow.NewEngine(store, cat, a.sessions, voucher.NewGenerator(store),
		workflow.WithListener(a.notifier),
		workflow.WithListener(a.emitter),
	)
	mod := moderation.NewService(store, cat, moderation.WithRedeemListener(a.emitter))
	a.handlers = bot.New(engine, mod, a.moderators, bot.WithExportDir(a.cfg.Registration.ExportDir))

	log.Info("app wired",
		slog.String("event", "wire"),
		slog.String("build", buildinfo.Current().String()),
		slog.Int("games", len(cat.Games())),
		slog.Int("slots", len(cat.Slots())),
		slog.Int("capacity", cat.Capacity()),
		slog.Int("moderators", a.moderators.Len()),
		slog.String("sessions", a.cfg.Session.Backend),
		slog.Bool("events", a.cfg.Events.Enabled()),
	)
	return nil
}

func (a *App) initSessions() error {
	sc := a.cfg.Session
	if sc.Backend == config.SessionRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		mgr := state.NewRedisManager(client, sc.RedisPrefix, sc.IdleTTL)
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := mgr.Ping(ctx); err != nil {
			_ = client.Close()
			return fmt.Errorf("app: redis not reachable at %s: %w", sc.RedisAddr, err)
		}
		a.redis = client
		a.sessions = mgr
		return nil
	}

	mgr := state.NewMemoryManager(state.WithIdleTTL(sc.IdleTTL))
	ctx, cancel := context.WithCancel(context.Background())
	go mgr.RunJanitor(ctx, sc.JanitorInterval)
	a.stopJanitor = cancel
	a.sessions = mgr
	return nil
}

func (a *App) newPublisher() (events.Publisher, error) {
	ec := a.cfg.Events
	if !ec.Enabled() {
		return events.Noop{}, nil
	}
	pub, err := events.NewAMQPPublisher(ec.AMQPURL, ec.Exchange)
	if err != nil {
		return nil, fmt.Errorf("app: events: %w", err)
	}
	logger.EVT.Info("publisher ready",
		slog.String("event", "amqp.connect"),
		slog.String("exchange", ec.Exchange),
	)
	return pub, nil
}

// TelegramRunOptions builds the registry, routes and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	if err := a.handlers.Register(reg, a.sessions); err != nil {
		return coretelegram.RunOptions{}, err
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{Admins: a.moderators})
	routes = append(routes, router.TextRoutes(a.sessions, reg, router.TextOptions{Media: a.handlers.OnMedia})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:   &a.cfg.Config,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			QueueSize: 256,
			Workers:   4,
		},
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Config, a.handlers.OnRateLimited),
		Routes:      routes,
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			a.notifier.Attach(rt.Bot, rt.Dispatcher)
			return nil
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			a.notifier.Attach(nil, nil)
			return nil
		},
	}, nil
}

// Close flushes pending events and releases connections.
func (a *App) Close() error {
	var errs []error
	if a.stopJanitor != nil {
		a.stopJanitor()
	}
	if a.emitter != nil {
		errs = append(errs, a.emitter.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.infra.Close())
	return errors.Join(errs...)
}
