package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	gconfig "github.com/goliatone/go-config/config"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"

	provisioning "github.com/goliatone/go-provisioning"
	"github.com/goliatone/go-provisioning/activitymap"
	"github.com/goliatone/go-provisioning/adapters/amqpmail"
	"github.com/goliatone/go-provisioning/adapters/kafkasink"
	"github.com/goliatone/go-provisioning/adapters/redislock"
	"github.com/goliatone/go-provisioning/adapters/smtpmail"
	"github.com/goliatone/go-provisioning/cmd/provisioner/config"
	"github.com/goliatone/go-provisioning/middleware/jwtware"
)

type App struct {
	config       *gconfig.Container[*config.BaseConfig]
	bunDB        *bun.DB
	repo         provisioning.RepositoryManager
	orchestrator *provisioning.Orchestrator
	worker       *provisioning.OutboxWorker
	srv          router.Server[*fiber.App]
	metrics      *http.Server
	registry     *prometheus.Registry
	logger       *glog.BaseLogger
	closers      []func() error
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func (a *App) loggerProvider() provisioning.LoggerProvider {
	return provisioning.LoggerProviderFunc(func(name string) provisioning.Logger {
		return a.GetLogger(name)
	})
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("provisioner"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	if cfg.Raw().Server.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))
		fmt.Println("============")
	}

	app := &App{
		config:   cfg,
		logger:   lgr,
		registry: prometheus.NewRegistry(),
	}
	defer app.Close()

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithProvisioning(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	if err := app.Run(ctx); err != nil {
		lgr.GetLogger("app").Error("provisioner stopped", "error", err)
		os.Exit(1)
	}
}

// Run serves the admin API and the metrics listener and runs the outbox
// worker until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	logger := a.GetLogger("app")

	g.Go(func() error {
		addr := a.Config().Server.Address
		logger.Info("serving admin API", "address", addr)
		return a.srv.Serve(addr)
	})

	if a.metrics != nil {
		g.Go(func() error {
			logger.Info("serving metrics", "address", a.metrics.Addr)
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if a.worker != nil {
		if err := a.worker.Start(); err != nil {
			return err
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		if a.worker != nil {
			a.worker.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if a.metrics != nil {
			if err := a.metrics.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.GetLogger("app").Warn("close failed", "error", err)
		}
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.Config().GetPersistence()

	var (
		db      *sql.DB
		dialect schema.Dialect
		err     error
	)

	switch cfg.GetDriver() {
	case "postgres":
		db = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.GetDSN())))
		dialect = pgdialect.New()
	default:
		db, err = sql.Open(sqliteshim.ShimName, cfg.GetDSN())
		if err != nil {
			return err
		}
		dialect = sqlitedialect.New()
	}

	persistence.RegisterModel((*provisioning.User)(nil))
	persistence.RegisterModel((*provisioning.UserToken)(nil))
	persistence.RegisterModel((*provisioning.Workshop)(nil))
	persistence.RegisterModel((*provisioning.AdminAccount)(nil))
	persistence.RegisterModel((*provisioning.AdminWorkshop)(nil))
	persistence.RegisterModel((*provisioning.ChangeLogEntry)(nil))
	persistence.RegisterModel((*provisioning.OutboxMessage)(nil))

	client, err := persistence.New(cfg, db, dialect)
	if err != nil {
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(provisioning.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)
	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.onClose(app.bunDB.Close)

	app.repo = provisioning.NewRepositoryManager(app.bunDB)
	return app.repo.Validate()
}

func WithProvisioning(ctx context.Context, app *App) error {
	cfg := app.Config()
	provider := app.loggerProvider()

	pcfg := cfg.Provisioning.Apply(provisioning.DefaultConfig())

	identity := provisioning.NewIdentityStore(app.repo,
		provisioning.WithTokenLifetime(pcfg.Invitation.TokenLifetime),
	)

	renderer, err := provisioning.NewTemplateRenderer(provisioning.GetTemplatesFS())
	if err != nil {
		return err
	}

	sender, err := mailSender(app)
	if err != nil {
		return err
	}

	invitations := provisioning.NewInvitationDispatcher(identity, renderer, sender, pcfg.Invitation).
		WithLogger(provider.GetLogger("invitations"))

	metrics := provisioning.NewPrometheusMetrics(app.registry)
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if addr := cfg.Metrics.Address; addr != "" {
		app.metrics = &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	opts := []provisioning.Option{
		provisioning.WithConfig(pcfg),
		provisioning.WithMetrics(metrics),
		provisioning.WithLoggerProvider(provider),
	}

	if cfg.Redis.URL != "" {
		client, err := redislock.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		app.onClose(client.Close)
		opts = append(opts, provisioning.WithEmailLock(redislock.New(client,
			redislock.WithTTL(cfg.Redis.GetLockTTL()),
			redislock.WithLogger(provider.GetLogger("redislock")),
		)))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sink, client, err := kafkasink.Dial(cfg.Kafka.Brokers, cfg.Kafka.Topic, activitymap.WithRoleAsObjectType())
		if err != nil {
			return err
		}
		app.onClose(func() error {
			client.Close()
			return nil
		})
		opts = append(opts, provisioning.WithActivitySink(sink))
	}

	orchestrator, err := provisioning.NewOrchestrator(app.repo, identity, invitations, opts...)
	if err != nil {
		return err
	}
	app.orchestrator = orchestrator

	if deliverer := orchestrator.Deliverer(); deliverer != nil {
		app.worker = provisioning.NewOutboxWorker(deliverer, cfg.Provisioning.GetOutboxSchedule()).
			WithLogger(provider.GetLogger("outbox"))
	}

	return nil
}

func mailSender(app *App) (provisioning.MailSender, error) {
	cfg := app.Config().Mail

	switch cfg.Transport {
	case "amqp":
		publisher, conn, err := amqpmail.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		if err != nil {
			return nil, err
		}
		app.onClose(conn.Close)
		return publisher, nil
	default:
		return smtpmail.New(cfg.SMTP)
	}
}

func WithHTTPServer(ctx context.Context, app *App) error {
	cfg := app.Config()

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: cfg.Server.Debug,
			StrictRouting:     false,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	auth := jwtware.New(jwtConfig(cfg.Auth))

	base := cfg.Server.BasePath
	if base == "" {
		base = "/"
	}
	api := srv.Router().Group(base)
	provisioning.RegisterAdminRoutes(api, app.orchestrator,
		provisioning.WithControllerLogger(app.GetLogger("admins")),
		provisioning.WithControllerMiddleware(auth),
		provisioning.WithControllerDebug(cfg.Server.Debug),
	)

	app.srv = srv
	return nil
}

func jwtConfig(cfg config.Auth) jwtware.Config {
	out := jwtware.Config{
		Issuer:       cfg.Issuer,
		Audience:     cfg.Audience,
		AllowedRoles: cfg.AllowedRoles,
		Leeway:       30 * time.Second,
	}

	if cfg.JWKSetURL != "" {
		out.JWKSetURLs = []string{cfg.JWKSetURL}
		return out
	}

	alg := cfg.SigningAlg
	if alg == "" {
		alg = "HS256"
	}
	out.SigningKey = jwtware.SigningKey{
		JWTAlg: alg,
		Key:    []byte(cfg.SigningKey),
	}
	return out
}
