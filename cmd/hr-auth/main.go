package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	auth "github.com/goliatone/hr-auth"
	"github.com/goliatone/hr-auth/config"
	"github.com/goliatone/hr-auth/jobs"
	"github.com/goliatone/hr-auth/logging"
	"github.com/goliatone/hr-auth/metrics"
	"github.com/goliatone/hr-auth/middleware/authfilter"
	"github.com/goliatone/hr-auth/social"
	"github.com/goliatone/hr-auth/social/providers/github"
	"github.com/goliatone/hr-auth/social/providers/google"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogrus(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	db, err := openDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	repo := auth.NewUserRepository(db, auth.WithDeterministicIDs(cfg.Auth.DeterministicIDs))
	if err := repo.CreateSchema(ctx); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	store := auth.NewCachedCredentialStore(repo, cfg.Auth.IdentityCacheSize, cfg.Auth.IdentityCacheTTL, collector)

	tokens, err := auth.NewTokenService(
		[]byte(cfg.JWT.Secret),
		cfg.JWT.Expiration,
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithTokenLogger(logger.With("component", "tokens")),
	)
	if err != nil {
		return err
	}

	activity := auth.LoggingActivitySink(logger.With("component", "activity"))

	svc := auth.NewService(
		store,
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		tokens,
		auth.WithLogger(logger.With("component", "auth")),
		auth.WithActivitySink(activity),
		auth.WithAuthObserver(collector),
	)

	policy, err := authfilter.ParsePolicy(cfg.Auth.InvalidTokenPolicy)
	if err != nil {
		return err
	}
	exempt := cfg.Auth.PublicPaths
	if len(exempt) == 0 {
		exempt = authfilter.DefaultExemptPaths()
	}

	app := fiber.New(fiber.Config{
		AppName:      "hr-auth",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: auth.ErrorHandler(logger.With("component", "http")),
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.PingContext(c.UserContext()); err != nil {
			return auth.WrapInternal(err, "database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(reg)))

	app.Use(authfilter.New(authfilter.Config{
		Tokens:      tokens,
		Store:       store,
		ExemptPaths: exempt,
		Policy:      policy,
		Logger:      logger.With("component", "authfilter"),
		Observer:    collector,
	}))

	limiter := auth.NewRateLimiter(auth.RateLimiterConfig{
		Rate:      cfg.Auth.LoginRate,
		Burst:     cfg.Auth.LoginBurst,
		OnLimited: collector.RateLimited,
	})
	auth.NewAuthController(svc,
		auth.WithControllerLogger(logger.With("component", "auth:ctrl")),
		auth.WithLoginLimiter(limiter),
	).RegisterRoutes(app)

	exchanger := newExchanger(cfg, store, tokens, activity, logger, collector)
	social.NewHTTPController(exchanger, social.HTTPConfig{
		FrontendCallbackURL: cfg.Server.FrontendCallbackURL,
		Logger:              logger.With("component", "oauth2:ctrl"),
	}).RegisterRoutes(app)

	scheduler := jobs.NewScheduler(logger.With("component", "jobs"))
	if cfg.Jobs.UserStatsSchedule != "" {
		stats := &jobs.UserStats{
			Counter: svc,
			Sink:    collector,
			Logger:  logger.With("component", "jobs"),
			Timeout: 30 * time.Second,
		}
		if err := scheduler.Add(cfg.Jobs.UserStatsSchedule, stats); err != nil {
			return fmt.Errorf("schedule user stats: %w", err)
		}
		if err := scheduler.RunNow(ctx, stats); err != nil {
			logger.Warn("initial user stats refresh failed, relying on schedule", "error", err)
		}
	}
	scheduler.Start()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address, "providers", exchanger.Providers())
		errc <- app.Listen(cfg.Server.Address)
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-waitExitSignal():
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	scheduler.Stop(shutdownCtx)
	return app.ShutdownWithContext(shutdownCtx)
}

func openDB(cfg config.Database) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.Driver {
	case "postgres":
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db, nil
}

func newExchanger(cfg *config.Config, store auth.CredentialStore, tokens auth.TokenService, sink auth.ActivitySink, logger *logging.Logrus, collector *metrics.Collector) *social.Exchanger {
	opts := []social.Option{
		social.WithActivitySink(sink),
		social.WithLogger(logger.With("component", "oauth2")),
		social.WithObserver(collector),
		social.WithStateManager(social.NewJWTStateManager([]byte(cfg.JWT.Secret), cfg.OAuth2.StateTTL)),
	}

	if p := cfg.OAuth2.Google; p.Enabled() {
		opts = append(opts, social.WithProvider(google.New(google.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
		})))
	}
	if p := cfg.OAuth2.GitHub; p.Enabled() {
		opts = append(opts, social.WithProvider(github.New(github.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
		})))
	}

	return social.NewExchanger(store, tokens, social.Config{
		Timeout:      cfg.OAuth2.Timeout,
		RequireState: cfg.OAuth2.RequireState,
		DefaultRole:  auth.RoleUser,
	}, opts...)
}

func waitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	return ch
}
