package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edjs/theatre-booking/internal/config"
	"github.com/edjs/theatre-booking/internal/database"
	"github.com/edjs/theatre-booking/internal/document"
	"github.com/edjs/theatre-booking/internal/handler"
	"github.com/edjs/theatre-booking/internal/lifecycle"
	"github.com/edjs/theatre-booking/internal/middleware"
	"github.com/edjs/theatre-booking/internal/notify"
	"github.com/edjs/theatre-booking/internal/queue"
	"github.com/edjs/theatre-booking/internal/repository"
	"github.com/edjs/theatre-booking/internal/reservation"
	"github.com/edjs/theatre-booking/internal/router"
	"github.com/edjs/theatre-booking/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "theatre-booking").Logger()
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("bye")
}

// stores are the persistence backends picked by STORE_MODE.
type stores struct {
	booking repository.Store
	users   handler.UserStore
	tokens  handler.TokenStore
	db      *sql.DB
}

func openStores(ctx context.Context, cfg config.Config, log zerolog.Logger) (stores, error) {
	if cfg.StoreMode == config.StoreMemory {
		mem := repository.NewMemoryStore()
		users := repository.NewMemoryUserRepo()
		if err := repository.SeedDemo(ctx, mem, users, cfg.DemoPassword, cfg.BcryptCost); err != nil {
			return stores{}, err
		}
		log.Warn().Msg("using the in-memory store with demo data; nothing is persisted")
		return stores{booking: mem, users: users, tokens: repository.NewMemoryTokenRepo()}, nil
	}

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		return stores{}, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, err
		}
		log.Info().Msg("schema migrated")
	}
	return stores{
		booking: repository.NewSQLStore(db),
		users:   repository.NewUserRepo(db),
		tokens:  repository.NewTokenRepo(db),
		db:      db,
	}, nil
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unreachable: drafts kept in memory, cache and rate limit disabled")
	} else {
		defer rdb.Close()
	}
	var drafts reservation.DraftStore = reservation.NewMemoryDraftStore(cfg.DraftTTL)
	if rdb != nil {
		drafts = reservation.NewRedisDraftStore(rdb, "draft", cfg.DraftTTL)
	}

	quotes := document.NewQuoteRenderer(cfg.DocumentDir, cfg.DocumentBaseURL)
	lcCfg := lifecycle.Config{RequireVerifiedOrg: cfg.Policy.RequireVerifiedOrg}
	deps := reservation.Deps{
		Store:  st.booking,
		Drafts: drafts,
		Quotes: quotes,
		Log:    log,
	}
	if cfg.Queue.Enabled {
		pub := service.NewQueuePublisher(cfg.Queue.URL, cfg.Queue.PublishTimeout, log)
		lcCfg.Listener = pub
		deps.Notifier = pub
	}
	lc := lifecycle.NewService(st.booking, log, lcCfg)
	deps.Lifecycle = lc
	flow := reservation.NewFlow(deps)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, handler.Ready(readiness(st.db, rdb)))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, st.users, st.tokens, st.booking), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewSessionHandler(st.booking, flow), middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterCustomer(e,
		handler.NewReservationHandler(flow),
		handler.NewBookingHandler(st.booking, lc, quotes),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	)
	router.RegisterAdmin(e, handler.NewAdminHandler(st.booking, lc), cfg.JWTSecret)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreMode).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
			return err
		}
		return nil
	})
	if cfg.Queue.Enabled && cfg.Queue.Consume {
		m := cfg.Mail
		mailer := notify.NewMailer(m.Host, m.Port, m.Username, m.Password, m.From, log)
		consumer := queue.NewConsumer(cfg.Queue.URL, mailer, log)
		g.Go(func() error {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func readiness(db *sql.DB, rdb *redis.Client) map[string]handler.Pinger {
	deps := map[string]handler.Pinger{}
	if db != nil {
		deps["mysql"] = db.PingContext
	}
	if rdb != nil {
		deps["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return deps
}
