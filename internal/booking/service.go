// Package booking drives a purchase through its lifecycle: seats are held,
// priced and paid for, then confirmed, cancelled, refunded or expired.
package booking

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/coupon"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	appvalidator "github.com/metinatakli/show-booking-engine/internal/validator"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/metinatakli/show-booking-engine/internal/booking"

	lateCancellationWindow = 24 * time.Hour
	lateRefundPercent      = 75
	checkInWindow          = 2 * time.Hour

	systemActor = "system"
)

type SeatInventory interface {
	Reserve(ctx context.Context, showID int64, seatIDs []string, bookingID uuid.UUID) error
	Confirm(ctx context.Context, showID int64, seatIDs []string, bookingID uuid.UUID) error
	Release(ctx context.Context, showID int64, seatIDs []string, bookingID uuid.UUID) error
}

type CouponValidator interface {
	Validate(ctx context.Context, check coupon.Check) (*coupon.Result, error)
	RecordUsage(ctx context.Context, code string) error
}

type PopularityRecorder interface {
	RecordAttempt(ctx context.Context, showID int64) error
	RecordSale(ctx context.Context, booking *domain.Booking) error
}

type Config struct {
	// FeeRate is the convenience fee in percent of the subtotal.
	FeeRate        decimal.Decimal
	Currency       string
	HoldTimeout    time.Duration
	NumberAttempts int
	NotifyTimeout  time.Duration
	SweepBatchSize int
}

func DefaultConfig() Config {
	return Config{
		FeeRate:        decimal.NewFromInt(5),
		Currency:       "USD",
		HoldTimeout:    10 * time.Minute,
		NumberAttempts: 5,
		NotifyTimeout:  10 * time.Second,
		SweepBatchSize: 100,
	}
}

type Deps struct {
	Shows     domain.ShowRepository
	Bookings  domain.BookingRepository
	Inventory SeatInventory
	Coupons   CouponValidator
	Scorer    PopularityRecorder
	Catalog   domain.ShowCatalog
	Movies    domain.MovieCatalog
	Payments  domain.PaymentGateway
	Notifier  domain.Notifier
	Validator *validator.Validate
	Logger    *slog.Logger
}

type Service struct {
	shows     domain.ShowRepository
	bookings  domain.BookingRepository
	inventory SeatInventory
	coupons   CouponValidator
	scorer    PopularityRecorder
	catalog   domain.ShowCatalog
	movies    domain.MovieCatalog
	payments  domain.PaymentGateway
	notifier  domain.Notifier
	validator *validator.Validate
	logger    *slog.Logger

	cfg       Config
	now       func() time.Time
	newNumber func(time.Time) string

	tracer  trace.Tracer
	metrics metrics

	notifications sync.WaitGroup
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithNumberGenerator replaces the booking number generator.
func WithNumberGenerator(fn func(time.Time) string) Option {
	return func(s *Service) {
		s.newNumber = fn
	}
}

func NewService(deps Deps, cfg Config, opts ...Option) *Service {
	s := &Service{
		shows:     deps.Shows,
		bookings:  deps.Bookings,
		inventory: deps.Inventory,
		coupons:   deps.Coupons,
		scorer:    deps.Scorer,
		catalog:   deps.Catalog,
		movies:    deps.Movies,
		payments:  deps.Payments,
		notifier:  deps.Notifier,
		validator: deps.Validator,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       time.Now,
		newNumber: NewBookingNumber,
		tracer:    otel.Tracer(instrumentationName),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.metrics = newMetrics(otel.Meter(instrumentationName), s.logger)

	return s
}

type metrics struct {
	initiated metric.Int64Counter
	confirmed metric.Int64Counter
	cancelled metric.Int64Counter
	expired   metric.Int64Counter
}

func newMetrics(meter metric.Meter, logger *slog.Logger) metrics {
	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			logger.Error("failed to create counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return metrics{
		initiated: counter("bookings.initiated", "Bookings that reached PAYMENT_PENDING"),
		confirmed: counter("bookings.confirmed", "Bookings confirmed after payment"),
		cancelled: counter("bookings.cancelled", "Confirmed bookings cancelled"),
		expired:   counter("holds.expired", "Seat holds reclaimed after the hold timeout"),
	}
}

// NewBookingNumber returns a human readable booking number such as
// BK260310-7QX2MF4A. Uniqueness is enforced by the store.
func NewBookingNumber(at time.Time) string {
	return fmt.Sprintf("BK%s-%s", at.UTC().Format("060102"), rand.Text()[:8])
}

// Wait blocks until every in-flight ticket notification has finished.
func (s *Service) Wait() {
	s.notifications.Wait()
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*domain.Booking, error) {
	return s.bookings.GetByNumber(ctx, number)
}

type ListInput struct {
	UserID   int64 `validate:"required,gt=0"`
	Page     int   `validate:"gte=1,lte=10000"`
	PageSize int   `validate:"gte=1,lte=100"`
}

func (s *Service) ListForUser(ctx context.Context, input ListInput) ([]domain.Booking, *domain.Metadata, error) {
	if err := appvalidator.Struct(s.validator, input); err != nil {
		return nil, nil, err
	}

	return s.bookings.ListByUser(ctx, input.UserID, domain.Pagination{Page: input.Page, PageSize: input.PageSize})
}

// releaseHold gives the seats of a booking back to the inventory. Failures are
// logged; the reconciliation sweep frees any seat left behind.
func (s *Service) releaseHold(ctx context.Context, booking *domain.Booking, logger *slog.Logger) {
	err := s.inventory.Release(ctx, booking.ShowID, booking.SeatIDs(), booking.ID)
	if err != nil {
		logger.Error("failed to release seats", "booking_id", booking.ID, "error", err)
	}
}

func (s *Service) notify(booking *domain.Booking, event domain.TicketEvent, showTime time.Time) {
	if s.notifier == nil {
		return
	}

	n := booking.Notification(event, s.now(), showTime)

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.NotifyTimeout)
		defer cancel()

		if err := s.notifier.SendTicket(ctx, n); err != nil {
			s.logger.Error("failed to send ticket notification",
				"booking_id", n.BookingID, "event", n.Event, "error", err)
		}
	}()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
