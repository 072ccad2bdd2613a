package app

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	Env              string
	Store            string
	OtelCollectorUrl string

	DB struct {
		DSN          string
		MaxOpenConns int
		MaxIdleTime  time.Duration
		Migrate      bool
	}
	Redis struct {
		URL          string
		MaxOpenConns int
		MaxIdleConns int
		MaxIdleTime  time.Duration
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		Sender   string
	}
	Stripe struct {
		SecretKey     string
		SigningSecret string
		SuccessUrl    string
		FailureUrl    string
	}
	AMQP struct {
		URL string
	}
	Booking struct {
		HoldTimeout        time.Duration
		ExpiryInterval     time.Duration
		ShowStatusInterval time.Duration
		ConvenienceFee     float64
		Currency           string
	}
}

const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

// loadEnv reads a .env file into the environment when one exists. Values
// already set in the environment win.
func loadEnv() {
	_ = godotenv.Load()
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func parseConfig(args []string) (Config, bool, error) {
	var cfg Config

	fs := flag.NewFlagSet("show-booking-engine", flag.ContinueOnError)

	fs.IntVar(&cfg.Port, "port", envIntOr("PORT", 3000), "server port")
	fs.StringVar(&cfg.Env, "env", envOr("ENV", "dev"), "Environment (dev|staging|prod)")
	fs.StringVar(&cfg.Store, "store", envOr("STORE", storePostgres), "Storage backend (postgres|memory)")
	fs.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", envOr("OTEL_COLLECTOR_URL", ""), "OpenTelemetry collector gRPC endpoint")

	fs.StringVar(&cfg.DB.DSN, "db-dsn", envOr("DB_DSN", ""), "PostgreSQL DSN")
	fs.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	fs.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")
	fs.BoolVar(&cfg.DB.Migrate, "db-migrate", false, "Apply database migrations on startup")

	fs.StringVar(&cfg.Redis.URL, "redis-url", envOr("REDIS_URL", ""), "Redis URL")
	fs.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	fs.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	fs.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	fs.StringVar(&cfg.SMTP.Host, "smtp-host", envOr("SMTP_HOST", "sandbox.smtp.mailtrap.io"), "SMTP host")
	fs.IntVar(&cfg.SMTP.Port, "smtp-port", envIntOr("SMTP_PORT", 2525), "SMTP port")
	fs.StringVar(&cfg.SMTP.Username, "smtp-username", envOr("SMTP_USERNAME", ""), "SMTP username")
	fs.StringVar(&cfg.SMTP.Password, "smtp-password", envOr("SMTP_PASSWORD", ""), "SMTP password")
	fs.StringVar(&cfg.SMTP.Sender, "smtp-sender", envOr("SMTP_SENDER", "Box Office <no-reply@example.com>"), "SMTP sender")

	fs.StringVar(&cfg.Stripe.SecretKey, "stripe-key", envOr("STRIPE_KEY", ""), "Stripe secret key")
	fs.StringVar(&cfg.Stripe.SigningSecret, "payment-signing-secret", envOr("PAYMENT_SIGNING_SECRET", ""), "Secret for payment confirmation signatures")
	fs.StringVar(&cfg.Stripe.SuccessUrl, "stripe-success-url", "https://example.com/success.html", "Stripe payment success page")
	fs.StringVar(&cfg.Stripe.FailureUrl, "stripe-failure-url", "https://example.com/failure.html", "Stripe payment failure page")

	fs.StringVar(&cfg.AMQP.URL, "amqp-url", envOr("AMQP_URL", ""), "RabbitMQ URL for ticket events")

	fs.DurationVar(&cfg.Booking.HoldTimeout, "hold-timeout", 10*time.Minute, "How long seats stay held without payment")
	fs.DurationVar(&cfg.Booking.ExpiryInterval, "expiry-interval", time.Minute, "Interval of the reservation expiry sweep")
	fs.DurationVar(&cfg.Booking.ShowStatusInterval, "show-status-interval", 5*time.Minute, "Interval of the show status sweep")
	fs.Float64Var(&cfg.Booking.ConvenienceFee, "convenience-fee", 5, "Convenience fee in percent of the subtotal")
	fs.StringVar(&cfg.Booking.Currency, "currency", "USD", "Booking currency")

	displayVersion := fs.Bool("version", false, "Display version and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}

	if *displayVersion {
		return cfg, true, nil
	}

	return cfg, false, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.Store {
	case storeMemory:
	case storePostgres:
		if cfg.DB.DSN == "" {
			return fmt.Errorf("-db-dsn is required with the %s store", storePostgres)
		}
	default:
		return fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.Booking.HoldTimeout <= 0 || cfg.Booking.ExpiryInterval <= 0 || cfg.Booking.ShowStatusInterval <= 0 {
		return fmt.Errorf("hold timeout and sweep intervals must be positive")
	}

	if cfg.Booking.ConvenienceFee < 0 || cfg.Booking.ConvenienceFee > 100 {
		return fmt.Errorf("convenience fee must be between 0 and 100")
	}

	return nil
}
