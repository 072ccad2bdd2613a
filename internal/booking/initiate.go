package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/coupon"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	appvalidator "github.com/metinatakli/show-booking-engine/internal/validator"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type InitiateInput struct {
	UserID       int64    `validate:"required,gt=0"`
	ShowID       int64    `validate:"required,gt=0"`
	SeatIDs      []string `validate:"required,min=1,max=10,unique,dive,seat_id"`
	CouponCode   string   `validate:"omitempty,max=32"`
	ContactEmail string   `validate:"omitempty,email"`
}

// Initiate holds the requested seats, prices them, applies the coupon and
// persists the booking as PAYMENT_PENDING. When anything after the hold fails
// the seats are released again.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (_ *domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Initiate", trace.WithAttributes(
		attribute.Int64("show.id", input.ShowID),
		attribute.Int("seats", len(input.SeatIDs)),
	))
	defer func() { endSpan(span, err) }()

	logger := s.logger.With("user_id", input.UserID, "show_id", input.ShowID)

	if err = appvalidator.Struct(s.validator, input); err != nil {
		return nil, err
	}

	show, err := s.shows.GetByID(ctx, input.ShowID)
	if err != nil {
		return nil, err
	}

	if _, err = s.movies.GetMovie(ctx, show.MovieID); err != nil {
		return nil, err
	}

	theater, err := s.catalog.GetTheater(ctx, show.TheaterID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !show.Status.Bookable() || !show.ShowTime.After(now) {
		logger.Warn("booking rejected: show is not bookable", "status", show.Status)
		return nil, domain.ErrShowNotBookable
	}

	seats := make([]domain.BookingSeat, 0, len(input.SeatIDs))
	for _, id := range input.SeatIDs {
		seat, ok := show.Seat(id)
		if !ok {
			return nil, domain.NewValidationError("SeatIDs", fmt.Sprintf("unknown seat %s", id))
		}
		seats = append(seats, domain.BookingSeat{SeatID: id, Category: seat.Category})
	}

	booking := &domain.Booking{
		ID:            uuid.New(),
		UserID:        input.UserID,
		ShowID:        show.ID,
		ContactEmail:  input.ContactEmail,
		Seats:         seats,
		Currency:      s.cfg.Currency,
		Status:        domain.BookingPaymentPending,
		TicketStatus:  domain.TicketNotIssued,
		HoldStartedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.scorer.RecordAttempt(ctx, show.ID); err != nil {
		logger.Error("failed to record booking attempt", "error", err)
	}

	if err = s.inventory.Reserve(ctx, show.ID, input.SeatIDs, booking.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			logger.Warn("booking rejected: seats already reserved", "seat_ids", input.SeatIDs)
		}
		return nil, err
	}

	if err = s.price(ctx, booking, show, theater, input.CouponCode, logger); err != nil {
		s.releaseHold(ctx, booking, logger)
		return nil, err
	}

	if err = s.persist(ctx, booking, logger); err != nil {
		s.releaseHold(ctx, booking, logger)
		return nil, err
	}

	s.metrics.initiated.Add(ctx, 1)
	logger.Info("booking initiated",
		"booking_id", booking.ID,
		"booking_number", booking.BookingNumber,
		"total", booking.TotalAmount.String())

	return booking, nil
}

// price locks in the current tier price of every seat and fills in the
// monetary totals. An unknown or rejected coupon leaves the discount at zero.
func (s *Service) price(
	ctx context.Context,
	booking *domain.Booking,
	show *domain.Show,
	theater *domain.Theater,
	code string,
	logger *slog.Logger) error {

	for i := range booking.Seats {
		tier, ok := show.Pricing[booking.Seats[i].Category]
		if !ok {
			logger.Error("seat category has no price tier", "category", booking.Seats[i].Category)
			return fmt.Errorf("%w: %s", domain.ErrMissingPriceTier, booking.Seats[i].Category)
		}
		booking.Seats[i].Price = tier.FinalPrice
	}

	booking.ApplyTotals(decimal.Zero, s.cfg.FeeRate)

	if code == "" {
		return nil
	}

	result, err := s.coupons.Validate(ctx, coupon.Check{
		Code:       code,
		UserID:     booking.UserID,
		MovieID:    show.MovieID,
		TheaterID:  theater.ID,
		Experience: show.Experience,
		City:       theater.City,
		Amount:     booking.SubtotalAmount,
	})

	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		logger.Info("unknown coupon ignored", "code", code)
		return nil
	case err != nil:
		return fmt.Errorf("validate coupon: %w", err)
	case !result.Valid:
		logger.Info("coupon not applied", "code", code, "reason", result.Reason)
		return nil
	}

	booking.Coupon = &domain.AppliedCoupon{
		Code:     result.Coupon.Code,
		Discount: result.Discount,
		Type:     result.Coupon.DiscountType,
	}
	booking.ApplyTotals(result.Discount, s.cfg.FeeRate)

	return nil
}

// persist stores the booking under a fresh booking number, retrying on number
// collisions.
func (s *Service) persist(ctx context.Context, booking *domain.Booking, logger *slog.Logger) error {
	for attempt := 1; ; attempt++ {
		booking.BookingNumber = s.newNumber(s.now())

		err := s.bookings.Create(ctx, booking)
		if err == nil {
			return nil
		}

		if !errors.Is(err, domain.ErrDuplicateBookingNumber) || attempt >= s.cfg.NumberAttempts {
			return err
		}

		logger.Warn("booking number collision, retrying", "booking_number", booking.BookingNumber, "attempt", attempt)
	}
}
