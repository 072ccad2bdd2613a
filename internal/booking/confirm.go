package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	appvalidator "github.com/metinatakli/show-booking-engine/internal/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreatePaymentOrder opens an order with the payment gateway for a booking
// awaiting payment and stores the order reference on it.
func (s *Service) CreatePaymentOrder(ctx context.Context, bookingID uuid.UUID) (_ *domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.CreatePaymentOrder",
		trace.WithAttributes(attribute.String("booking.id", bookingID.String())))
	defer func() { endSpan(span, err) }()

	logger := s.logger.With("booking_id", bookingID)

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status != domain.BookingPaymentPending {
		logger.Warn("payment order rejected", "status", booking.Status)
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	ref, err := s.payments.Initiate(ctx, domain.PaymentOrder{
		BookingID:     booking.ID.String(),
		BookingNumber: booking.BookingNumber,
		Amount:        booking.TotalAmount,
		Currency:      booking.Currency,
	})
	if err != nil {
		logger.Error("failed to create payment order", "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrPaymentUnavailable, err)
	}

	booking.Payment.OrderRef = ref
	booking.UpdatedAt = s.now()

	if err = s.bookings.Update(ctx, booking, domain.BookingPaymentPending); err != nil {
		return nil, err
	}

	logger.Info("payment order created", "order_ref", ref)

	return booking, nil
}

type PaymentConfirmation struct {
	BookingID  uuid.UUID `validate:"required"`
	OrderRef   string    `validate:"max=255"`
	PaymentRef string    `validate:"required,max=255"`
	Signature  string    `validate:"max=512"`
}

// Confirm verifies the payment, moves the booking to CONFIRMED and turns the
// held seats into BOOKED. The status change is made first and is the single
// point where concurrent confirmations of one booking are decided: exactly one
// caller claims the booking, every other caller either sees its own payment
// already applied or gets its payment refunded. Statistics, coupon usage and
// the ticket notification follow only once the seats are booked.
func (s *Service) Confirm(ctx context.Context, input PaymentConfirmation) (_ *domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Confirm",
		trace.WithAttributes(attribute.String("booking.id", input.BookingID.String())))
	defer func() { endSpan(span, err) }()

	logger := s.logger.With("booking_id", input.BookingID)

	if err = appvalidator.Struct(s.validator, input); err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status != domain.BookingPaymentPending {
		logger.Warn("confirmation rejected", "status", booking.Status)
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	orderRef := input.OrderRef
	if orderRef == "" {
		orderRef = booking.Payment.OrderRef
	}

	ok, err := s.payments.Verify(ctx, orderRef, input.PaymentRef, input.Signature)
	if err != nil {
		logger.Error("failed to verify payment", "payment_ref", input.PaymentRef, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrPaymentUnavailable, err)
	}
	if !ok {
		logger.Warn("payment verification failed", "payment_ref", input.PaymentRef)
		return nil, domain.ErrPaymentRejected
	}

	now := s.now()
	booking.Status = domain.BookingConfirmed
	booking.TicketStatus = domain.TicketIssued
	booking.Payment = domain.PaymentDetails{
		OrderRef:       orderRef,
		PaymentRef:     input.PaymentRef,
		TransactionRef: input.PaymentRef,
		PaidAt:         &now,
	}
	booking.UpdatedAt = now

	if err = s.bookings.Update(ctx, booking, domain.BookingPaymentPending); err != nil {
		return nil, s.settleLostClaim(ctx, booking, input.PaymentRef, err, logger)
	}

	if err = s.inventory.Confirm(ctx, booking.ShowID, booking.SeatIDs(), booking.ID); err != nil {
		logger.Warn("seat hold lost before confirmation", "error", err)
		s.revertConfirmation(ctx, booking, logger)
		return nil, err
	}

	s.metrics.confirmed.Add(ctx, 1)
	logger.Info("booking confirmed", "booking_number", booking.BookingNumber, "total", booking.TotalAmount.String())

	s.afterConfirm(ctx, booking, logger)

	return booking, nil
}

// settleLostClaim handles a verified payment whose booking could not be moved
// to CONFIRMED. A repeated delivery of the payment that already confirmed the
// booking is rejected without a refund; any other payment is refunded.
func (s *Service) settleLostClaim(
	ctx context.Context,
	booking *domain.Booking,
	paymentRef string,
	cause error,
	logger *slog.Logger) error {

	current, err := s.bookings.GetByID(ctx, booking.ID)
	switch {
	case err == nil && current.Status == domain.BookingConfirmed && current.Payment.PaymentRef == paymentRef:
		logger.Warn("payment already applied to the booking", "payment_ref", paymentRef)
		return fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, current.Status)
	case err != nil && !errors.Is(err, domain.ErrRecordNotFound):
		logger.Error("failed to reload booking, payment left unrefunded", "payment_ref", paymentRef, "error", err)
		return cause
	}

	logger.Warn("booking changed during confirmation", "error", cause)
	s.refundUnclaimed(ctx, booking, paymentRef, logger)

	return cause
}

// revertConfirmation cancels a booking that was claimed by a payment but
// whose seats could no longer be booked, and refunds the payment in full.
// Nothing happens when the booking has moved on in the meantime.
func (s *Service) revertConfirmation(ctx context.Context, booking *domain.Booking, logger *slog.Logger) {
	now := s.now()
	booking.Status = domain.BookingCancelled
	booking.TicketStatus = domain.TicketNotIssued
	booking.Cancellation = &domain.Cancellation{
		Reason:      "seat hold lost before confirmation",
		Actor:       systemActor,
		CancelledAt: now,
	}
	booking.Refund = &domain.Refund{
		Amount:      booking.TotalAmount,
		Status:      domain.RefundPending,
		RequestedAt: now,
	}
	booking.UpdatedAt = now

	if err := s.bookings.Update(ctx, booking, domain.BookingConfirmed); err != nil {
		logger.Error("failed to revert confirmation", "error", err)
		return
	}

	s.releaseHold(ctx, booking, logger)

	if _, err := s.ProcessRefund(ctx, booking.ID); err != nil {
		logger.Error("failed to refund reverted confirmation", "error", err)
	}
}

func (s *Service) afterConfirm(ctx context.Context, booking *domain.Booking, logger *slog.Logger) {
	if booking.Coupon != nil {
		if err := s.coupons.RecordUsage(ctx, booking.Coupon.Code); err != nil {
			logger.Error("failed to record coupon usage", "code", booking.Coupon.Code, "error", err)
		}
	}

	if err := s.scorer.RecordSale(ctx, booking); err != nil {
		logger.Error("failed to record sale", "error", err)
	}

	show, err := s.shows.GetByID(ctx, booking.ShowID)
	if err != nil {
		logger.Error("failed to load show for notification", "error", err)
		return
	}

	s.notify(booking, domain.TicketEventConfirmed, show.ShowTime)
}

// refundUnclaimed returns a captured payment whose booking could not be
// confirmed.
func (s *Service) refundUnclaimed(ctx context.Context, booking *domain.Booking, paymentRef string, logger *slog.Logger) {
	ref, err := s.payments.Refund(ctx, paymentRef, booking.TotalAmount)
	if err != nil {
		logger.Error("failed to refund unclaimed payment", "payment_ref", paymentRef, "error", err)
		return
	}

	logger.Info("unclaimed payment refunded", "payment_ref", paymentRef, "refund_ref", ref)
}
