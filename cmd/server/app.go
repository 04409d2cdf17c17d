package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/config"
	"github.com/iliyamo/estock/internal/database"
	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/export"
	"github.com/iliyamo/estock/internal/handler"
	"github.com/iliyamo/estock/internal/identity"
	"github.com/iliyamo/estock/internal/mail"
	"github.com/iliyamo/estock/internal/middleware"
	"github.com/iliyamo/estock/internal/queue"
	"github.com/iliyamo/estock/internal/router"
	publisher "github.com/iliyamo/estock/internal/service"
	"github.com/iliyamo/estock/internal/session"
	"github.com/iliyamo/estock/internal/table"
)

// newApp assembles the server process.  Lifecycle hooks run in provide
// order on start and in reverse on stop.
func newApp(cfg config.Config) *fx.App {
	return fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			newLogger,
			provideDB,
			provideRedis,
			provideStore,
			provideMail,
			provideIdentity,
			provideRegistry,
			provideEcho,
			func(store docstore.Store) *session.Profiles { return &session.Profiles{Store: store} },
			func(log *zap.Logger) *export.Ranked { return export.NewRanked(log.Named("export"), export.XLSXBackend{}) },
		),
		fx.Invoke(registerRoutes, runMailConsumer, runServer),
	)
}

func newLogger(cfg config.Config) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if cfg.Dev() {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func provideDB(lc fx.Lifecycle, cfg config.Config) (*sql.DB, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	lc.Append(fx.StopHook(db.Close))
	return db, nil
}

// provideRedis returns nil when Redis is disabled or unreachable; every
// consumer then falls back to in-process behavior.
func provideRedis(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		if cfg.Redis.Enabled {
			log.Warn("redis unreachable; change notifications stay in-process", zap.String("addr", cfg.Redis.Addr))
		}
		return nil
	}
	lc.Append(fx.StopHook(rdb.Close))
	return rdb
}

func provideStore(db *sql.DB, rdb *redis.Client, log *zap.Logger) docstore.Store {
	var notifier docstore.Notifier
	if rdb != nil {
		notifier = docstore.NewRedisNotifier(rdb, "docstore")
	}
	return docstore.NewSQLStore(db, notifier, log.Named("store"))
}

// mailTransport is the configured Sender plus, for the queue transport, the
// consumer that performs the deliveries.
type mailTransport struct {
	Sender   mail.Sender
	Consumer *queue.Consumer
}

func provideMail(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (mailTransport, mail.Sender, error) {
	mc := cfg.Mail
	if !mc.Configured() {
		log.Warn("mail sender not configured; provisioning and reset emails will fail")
		return mailTransport{Sender: mail.Unconfigured{}}, mail.Unconfigured{}, nil
	}
	switch mc.Transport {
	case config.TransportLog:
		s := &mail.LogSender{Log: log.Named("mail")}
		return mailTransport{Sender: s}, s, nil
	case config.TransportQueue:
		journal, closer, err := queue.OpenJournal(mc.JournalDir)
		if err != nil {
			return mailTransport{}, nil, err
		}
		lc.Append(fx.StopHook(closer.Close))
		s := mail.QueueSender{Publisher: &publisher.Publisher{URL: cfg.AMQPURL, Log: log.Named("publisher")}}
		t := mailTransport{
			Sender: s,
			Consumer: &queue.Consumer{
				URL:     cfg.AMQPURL,
				Deliver: mail.Deliverer(mail.NewSendGridSender(mc.SendGridAPIKey, mc.BrandName)),
				Journal: journal,
				Log:     log.Named("mail-consumer"),
			},
		}
		return t, s, nil
	default:
		s := mail.NewSendGridSender(mc.SendGridAPIKey, mc.BrandName)
		return mailTransport{Sender: s}, s, nil
	}
}

func identityConfig(cfg config.Config) identity.Config {
	return identity.Config{
		Secret:      cfg.JWTSecret,
		AccessTTL:   cfg.AccessTTL,
		RefreshTTL:  cfg.RefreshTTL,
		ResetTTL:    cfg.ResetTTL,
		BcryptCost:  cfg.BcryptCost,
		ResetURL:    cfg.ResetURL,
		ContinueURL: cfg.ResetContinueURL,
		Brand:       cfg.Mail.BrandName,
		From:        cfg.Mail.From,
	}
}

func provideIdentity(cfg config.Config, db *sql.DB, sender mail.Sender, log *zap.Logger) *identity.Service {
	return identity.NewService(identityConfig(cfg), db, sender, log.Named("identity"))
}

func provideRegistry(lc fx.Lifecycle, cfg config.Config, store docstore.Store, log *zap.Logger) (*table.Registry, error) {
	catalog, err := config.LoadCatalog(cfg.CollectionsFile)
	if err != nil {
		return nil, err
	}
	reg := table.NewRegistry(catalog, store, log.Named("table"))
	lc.Append(fx.Hook{
		OnStart: reg.Start,
		OnStop: func(context.Context) error {
			reg.Close()
			return nil
		},
	})
	return reg, nil
}

func provideEcho(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(log.Named("http")))
	return e
}

func registerRoutes(
	e *echo.Echo,
	cfg config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	ids *identity.Service,
	store docstore.Store,
	profiles *session.Profiles,
	reg *table.Registry,
	exp *export.Ranked,
	mt mailTransport,
) {
	gate := middleware.Gate{
		Resolver: session.NewResolver(ids, store, log.Named("session")),
		Revoker:  ids,
		LoginURL: cfg.LoginURL,
		Log:      log.Named("gate"),
	}
	limit := middleware.NewTokenBucket(cfg.RateLimit, rdb, log.Named("ratelimit"))
	cache := middleware.NewRedisCache(cfg.Cache, rdb)

	router.RegisterRoutes(e, &handler.HealthHandler{Registry: reg})
	router.RegisterAuth(e, handler.NewAuthHandler(ids, profiles, cfg.LoginURL, log.Named("auth")), limit)
	router.RegisterApp(e, gate, cfg.DefaultPageURL,
		&handler.MeHandler{Profiles: profiles, Identities: ids, Log: log.Named("me")},
		handler.NewCollectionHandler(reg, store, exp, cfg.LoginURL, log.Named("collections")),
		cache,
	)
	router.RegisterAdmin(e, gate, &handler.AdminHandler{
		Identity:    ids,
		Profiles:    profiles,
		Mailer:      mt.Sender,
		Brand:       cfg.Mail.BrandName,
		From:        cfg.Mail.From,
		ContinueURL: cfg.ResetContinueURL,
		Log:         log.Named("admin"),
	}, limit)
}

// runMailConsumer drains the mail queue for as long as the process runs.
func runMailConsumer(lc fx.Lifecycle, mt mailTransport) {
	if mt.Consumer == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				_ = mt.Consumer.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stop.Done():
				return stop.Err()
			}
		},
	})
}

func runServer(lc fx.Lifecycle, sd fx.Shutdowner, e *echo.Echo, cfg config.Config, log *zap.Logger) {
	addr := ":" + cfg.Port
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
			go func() {
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := e.Shutdown(ctx)
			_ = log.Sync()
			return err
		},
	})
}
