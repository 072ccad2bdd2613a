package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	appvalidator "github.com/metinatakli/show-booking-engine/internal/validator"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type CancelInput struct {
	BookingID uuid.UUID `validate:"required"`
	Reason    string    `validate:"max=500"`
	Actor     string    `validate:"required,max=64"`
}

// Cancel cancels a confirmed booking of a show that has not started yet and
// frees its seats.
func (s *Service) Cancel(ctx context.Context, input CancelInput) (_ *domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Cancel",
		trace.WithAttributes(attribute.String("booking.id", input.BookingID.String())))
	defer func() { endSpan(span, err) }()

	logger := s.logger.With("booking_id", input.BookingID, "actor", input.Actor)

	if err = appvalidator.Struct(s.validator, input); err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status != domain.BookingConfirmed || booking.TicketStatus == domain.TicketCheckedIn {
		logger.Warn("cancellation rejected", "status", booking.Status, "ticket_status", booking.TicketStatus)
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	show, err := s.shows.GetByID(ctx, booking.ShowID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !show.ShowTime.After(now) {
		logger.Warn("cancellation rejected: show already started", "show_time", show.ShowTime)
		return nil, fmt.Errorf("%w: show already started", domain.ErrInvalidState)
	}

	booking.Status = domain.BookingCancelled
	booking.Cancellation = &domain.Cancellation{
		Reason:      input.Reason,
		Actor:       input.Actor,
		CancelledAt: now,
	}
	booking.UpdatedAt = now

	// Seats must never be sellable while the booking still reads CONFIRMED.
	if err = s.bookings.Update(ctx, booking, domain.BookingConfirmed); err != nil {
		return nil, err
	}

	if err = s.inventory.Release(ctx, booking.ShowID, booking.SeatIDs(), booking.ID); err != nil {
		logger.Error("failed to release seats of cancelled booking", "error", err)
		return nil, err
	}

	s.metrics.cancelled.Add(ctx, 1)
	logger.Info("booking cancelled", "booking_number", booking.BookingNumber)

	s.notify(booking, domain.TicketEventCancelled, show.ShowTime)

	return booking, nil
}

// RefundAmount is the amount refunded for a booking cancelled at cancelledAt.
// Cancellations within a day of the show are refunded at 75 percent.
func RefundAmount(total decimal.Decimal, showTime, cancelledAt time.Time) decimal.Decimal {
	if showTime.Sub(cancelledAt) <= lateCancellationWindow {
		return domain.Percent(total, decimal.NewFromInt(lateRefundPercent))
	}
	return domain.RoundMoney(total)
}

// RequestRefund records a PENDING refund for a cancelled booking.
func (s *Service) RequestRefund(ctx context.Context, bookingID uuid.UUID) (_ *domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.RequestRefund",
		trace.WithAttributes(attribute.String("booking.id", bookingID.String())))
	defer func() { endSpan(span, err) }()

	logger := s.logger.With("booking_id", bookingID)

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status != domain.BookingCancelled || booking.Cancellation == nil || booking.Refund != nil {
		logger.Warn("refund request rejected", "status", booking.Status)
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	show, err := s.shows.GetByID(ctx, booking.ShowID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	booking.Refund = &domain.Refund{
		Amount:      RefundAmount(booking.TotalAmount, show.ShowTime, booking.Cancellation.CancelledAt),
		Status:      domain.RefundPending,
		RequestedAt: now,
	}
	booking.UpdatedAt = now

	if err = s.bookings.Update(ctx, booking, domain.BookingCancelled); err != nil {
		return nil, err
	}

	logger.Info("refund requested", "amount", booking.Refund.Amount.String())

	return booking, nil
}

// ProcessRefund sends a pending or previously failed refund to the payment
// gateway. A successful refund moves the booking to REFUNDED; a failed one is
// recorded on the booking and can be retried.
func (s *Service) ProcessRefund(ctx context.Context, bookingID uuid.UUID) (_ *domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.ProcessRefund",
		trace.WithAttributes(attribute.String("booking.id", bookingID.String())))
	defer func() { endSpan(span, err) }()

	logger := s.logger.With("booking_id", bookingID)

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status != domain.BookingCancelled || booking.Refund == nil ||
		booking.Refund.Status == domain.RefundProcessed {
		logger.Warn("refund processing rejected", "status", booking.Status)
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	ref, refundErr := s.payments.Refund(ctx, booking.Payment.TransactionRef, booking.Refund.Amount)
	now := s.now()
	booking.UpdatedAt = now

	if refundErr != nil {
		logger.Error("refund failed", "error", refundErr)

		booking.Refund.Status = domain.RefundFailed
		booking.Refund.FailureReason = refundErr.Error()

		if err = s.bookings.Update(ctx, booking, domain.BookingCancelled); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPaymentUnavailable, refundErr)
	}

	booking.Status = domain.BookingRefunded
	booking.Refund.Status = domain.RefundProcessed
	booking.Refund.Ref = ref
	booking.Refund.FailureReason = ""
	booking.Refund.ProcessedAt = &now

	if err = s.bookings.Update(ctx, booking, domain.BookingCancelled); err != nil {
		return nil, err
	}

	logger.Info("refund processed", "refund_ref", ref, "amount", booking.Refund.Amount.String())

	return booking, nil
}

// CheckIn marks the ticket of a confirmed booking as used. It is accepted from
// two hours before until two hours after the show time.
func (s *Service) CheckIn(ctx context.Context, bookingNumber string) (_ *domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.CheckIn",
		trace.WithAttributes(attribute.String("booking.number", bookingNumber)))
	defer func() { endSpan(span, err) }()

	logger := s.logger.With("booking_number", bookingNumber)

	booking, err := s.bookings.GetByNumber(ctx, bookingNumber)
	if err != nil {
		return nil, err
	}

	if booking.Status != domain.BookingConfirmed || booking.TicketStatus != domain.TicketIssued {
		logger.Warn("check-in rejected", "status", booking.Status, "ticket_status", booking.TicketStatus)
		return nil, fmt.Errorf("%w: ticket is %s", domain.ErrInvalidState, booking.TicketStatus)
	}

	show, err := s.shows.GetByID(ctx, booking.ShowID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if now.Before(show.ShowTime.Add(-checkInWindow)) || now.After(show.ShowTime.Add(checkInWindow)) {
		logger.Warn("check-in outside the window", "show_time", show.ShowTime)
		return nil, domain.ErrCheckInWindow
	}

	booking.TicketStatus = domain.TicketCheckedIn
	booking.CheckedInAt = &now
	booking.UpdatedAt = now

	if err = s.bookings.Update(ctx, booking, domain.BookingConfirmed); err != nil {
		return nil, err
	}

	logger.Info("ticket checked in", "booking_id", booking.ID)

	return booking, nil
}
