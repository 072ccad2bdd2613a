package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/show-booking-engine/internal/booking"
	"github.com/metinatakli/show-booking-engine/internal/coupon"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/metinatakli/show-booking-engine/internal/inventory"
	"github.com/metinatakli/show-booking-engine/internal/mailer"
	"github.com/metinatakli/show-booking-engine/internal/notify"
	"github.com/metinatakli/show-booking-engine/internal/payment"
	"github.com/metinatakli/show-booking-engine/internal/popularity"
	"github.com/metinatakli/show-booking-engine/internal/repository"
	"github.com/metinatakli/show-booking-engine/internal/scheduler"
	appvalidator "github.com/metinatakli/show-booking-engine/internal/validator"
	"github.com/metinatakli/show-booking-engine/internal/vcs"
	"github.com/metinatakli/show-booking-engine/migrations"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

var (
	version = vcs.Version()
)

type catalog interface {
	domain.ShowCatalog
	domain.MovieCatalog
}

type stores struct {
	shows    domain.ShowRepository
	bookings domain.BookingRepository
	catalog  catalog
	coupons  domain.CouponStore
}

type Application struct {
	config    Config
	logger    *slog.Logger
	db        *pgxpool.Pool
	redis     redis.UniversalClient
	validator *validator.Validate

	inventory  *inventory.Service
	bookings   *booking.Service
	publisher  *notify.AMQPPublisher
	schedulers []*scheduler.Runner
}

func Run() error {
	loadEnv()

	cfg, displayVersion, err := parseConfig(os.Args[1:])
	if err != nil {
		return err
	}

	if displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	app := &Application{
		config:    cfg,
		logger:    newLogger(os.Stdout, cfg.Env),
		validator: appvalidator.NewValidator(),
	}

	shutdownTelemetry, err := app.InitTelemetry()
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	st, err := app.openStores()
	if err != nil {
		return err
	}
	defer app.close()

	if err = app.wire(st); err != nil {
		return err
	}

	return app.run()
}

func (app *Application) openStores() (stores, error) {
	if app.config.Store == storeMemory {
		app.logger.Warn("using the in-memory store, data is lost on restart")

		catalog := repository.NewMemoryCatalog()
		return stores{
			shows:    repository.NewMemoryShowRepository(),
			bookings: repository.NewMemoryBookingRepository(),
			catalog:  catalog,
			coupons:  catalog,
		}, nil
	}

	if app.config.DB.Migrate {
		if err := migrations.Up(app.config.DB.DSN); err != nil {
			return stores{}, fmt.Errorf("migrate database: %w", err)
		}
		app.logger.Info("database migrations applied")
	}

	db, err := newDatabasePool(app.config)
	if err != nil {
		return stores{}, err
	}
	app.db = db

	if app.config.Redis.URL != "" {
		rdb, err := newRedisClient(app.config)
		if err != nil {
			return stores{}, err
		}
		app.redis = rdb
	}

	return stores{
		shows:    repository.NewPostgresShowRepository(db),
		bookings: repository.NewPostgresBookingRepository(db),
		catalog:  repository.NewPostgresCatalogRepository(db),
		coupons:  repository.NewPostgresCouponRepository(db),
	}, nil
}

func (app *Application) wire(st stores) error {
	cfg := app.config

	var gateway domain.PaymentGateway
	if cfg.Stripe.SecretKey != "" {
		stripe.Key = cfg.Stripe.SecretKey
		gateway = payment.NewStripeGateway(cfg.Stripe.FailureUrl, cfg.Stripe.SuccessUrl, cfg.Stripe.SigningSecret)
	} else {
		app.logger.Warn("stripe key not set, payments are settled locally")
		gateway = payment.NewLocalGateway(cfg.Stripe.SigningSecret)
	}

	notifiers := notify.Multi{
		notify.NewMailNotifier(mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender)),
	}

	if cfg.AMQP.URL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQP.URL)
		if err != nil {
			return err
		}
		app.publisher = publisher
		notifiers = append(notifiers, publisher)
	}

	scorer := popularity.NewScorer(st.shows, st.catalog, app.logger)
	app.inventory = inventory.NewService(st.shows, st.catalog, st.catalog, app.validator, app.logger,
		inventory.WithViewRecorder(scorer))

	bookingCfg := booking.DefaultConfig()
	bookingCfg.FeeRate = decimal.NewFromFloat(cfg.Booking.ConvenienceFee)
	bookingCfg.Currency = cfg.Booking.Currency
	bookingCfg.HoldTimeout = cfg.Booking.HoldTimeout

	app.bookings = booking.NewService(booking.Deps{
		Shows:     st.shows,
		Bookings:  st.bookings,
		Inventory: app.inventory,
		Coupons:   coupon.NewEngine(st.coupons, st.bookings, app.logger, nil),
		Scorer:    scorer,
		Catalog:   st.catalog,
		Movies:    st.catalog,
		Payments:  gateway,
		Notifier:  notifiers,
		Validator: app.validator,
		Logger:    app.logger,
	}, bookingCfg)

	var opts []scheduler.Option
	if app.redis != nil {
		opts = append(opts, scheduler.WithLocker(scheduler.NewRedisLocker(app.redis, serviceName)))
	}

	app.schedulers = []*scheduler.Runner{
		scheduler.NewReservationExpiry(app.bookings, cfg.Booking.ExpiryInterval, app.logger, opts...),
		scheduler.NewShowStatus(app.inventory, cfg.Booking.ShowStatusInterval, app.logger, opts...),
	}

	return nil
}

func (app *Application) close() {
	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.Error("failed to close broker connection", "error", err)
		}
	}

	if app.redis != nil {
		app.redis.Close()
	}

	if app.db != nil {
		app.db.Close()
	}
}

func newRedisClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	if err := errors.Join(redisotel.InstrumentTracing(rdb), redisotel.InstrumentMetrics(rdb)); err != nil {
		rdb.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := rdb.Ping(ctx).Err()
	if err != nil {
		rdb.Close()
		return nil, err
	}

	return rdb, nil
}

func newDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (app *Application) run() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	for _, s := range app.schedulers {
		s.Start(context.Background())
	}

	shutdownError := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.logger.Info("shutting down server", "signal", s.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, runner := range app.schedulers {
			runner.Stop()
		}

		err := srv.Shutdown(ctx)

		app.logger.Info("waiting for pending notifications")
		app.bookings.Wait()

		shutdownError <- err
	}()

	app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env, "store", app.config.Store)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownError
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}
