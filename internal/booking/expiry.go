package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/domain"
)

// Delete removes a booking that never reached CONFIRMED. Seats still held by
// it are released first.
func (s *Service) Delete(ctx context.Context, bookingID uuid.UUID) error {
	logger := s.logger.With("booking_id", bookingID)

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	if !booking.Status.In(domain.DeletableStatuses...) {
		logger.Warn("delete rejected", "status", booking.Status)
		return fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	// The conditional delete decides against a concurrent confirmation; seats
	// left held by a crash after it are picked up by reconciliation.
	if err = s.bookings.Delete(ctx, bookingID, domain.DeletableStatuses...); err != nil {
		return err
	}

	if booking.Status.In(domain.HoldStatuses...) {
		s.releaseHold(ctx, booking, logger)
	}

	logger.Info("booking deleted", "booking_number", booking.BookingNumber)

	return nil
}

// Expire moves a booking whose hold timed out to EXPIRED and releases its
// seats. It fails with domain.ErrInvalidState when the booking left the hold
// statuses in the meantime.
func (s *Service) Expire(ctx context.Context, booking *domain.Booking) error {
	if !booking.Status.In(domain.HoldStatuses...) {
		return fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	booking.Status = domain.BookingExpired
	booking.UpdatedAt = s.now()

	if err := s.bookings.Update(ctx, booking, domain.HoldStatuses...); err != nil {
		return err
	}

	if err := s.inventory.Release(ctx, booking.ShowID, booking.SeatIDs(), booking.ID); err != nil {
		return fmt.Errorf("release seats of expired booking %s: %w", booking.ID, err)
	}

	return nil
}

// ExpireStaleHolds expires every booking whose hold started before
// now minus the hold timeout and returns how many were expired.
func (s *Service) ExpireStaleHolds(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.bookings.ListStaleHolds(ctx, now.Add(-s.cfg.HoldTimeout), s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	var errs []error
	expired := 0

	for i := range stale {
		booking := &stale[i]

		err = s.Expire(ctx, booking)
		switch {
		case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrRecordNotFound):
			s.logger.Info("stale hold already settled", "booking_id", booking.ID)
		case err != nil:
			errs = append(errs, err)
		default:
			s.logger.Info("booking expired",
				"booking_id", booking.ID,
				"show_id", booking.ShowID,
				"hold_started_at", booking.HoldStartedAt)
			expired++
		}
	}

	if expired > 0 {
		s.metrics.expired.Add(ctx, int64(expired))
	}

	return expired, errors.Join(errs...)
}

// ReconcileOrphanedHolds frees BLOCKED seats older than the hold timeout whose
// booking no longer holds them: the booking is gone or has already left the
// hold statuses. Seats of a CONFIRMED booking are booked instead of freed.
// BOOKED seats left behind by a cancelled or deleted booking are freed too.
func (s *Service) ReconcileOrphanedHolds(ctx context.Context, now time.Time) (int, error) {
	holds, err := s.shows.ListStaleSeatHolds(ctx, now.Add(-s.cfg.HoldTimeout))
	if err != nil {
		return 0, err
	}

	var errs []error
	reconciled := 0

	for _, hold := range holds {
		logger := s.logger.With("show_id", hold.ShowID, "booking_id", hold.BookingID, "seat_ids", hold.SeatIDs)

		booking, err := s.bookings.GetByID(ctx, hold.BookingID)
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
		case err != nil:
			errs = append(errs, err)
			continue
		case booking.Status.In(domain.HoldStatuses...):
			continue
		case booking.Status == domain.BookingConfirmed:
			if err = s.inventory.Confirm(ctx, hold.ShowID, hold.SeatIDs, hold.BookingID); err != nil {
				errs = append(errs, err)
				continue
			}
			logger.Warn("booked seats of a confirmed booking left blocked")
			reconciled++
			continue
		}

		if err = s.inventory.Release(ctx, hold.ShowID, hold.SeatIDs, hold.BookingID); err != nil {
			errs = append(errs, err)
			continue
		}

		logger.Warn("released orphaned seat hold", "held_since", hold.HeldSince)
		reconciled++
	}

	released, err := s.releaseOrphanedBookedSeats(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}

	return reconciled + released, errors.Join(errs...)
}

// releaseOrphanedBookedSeats frees BOOKED seats whose booking is gone or was
// cancelled without its seats being released.
func (s *Service) releaseOrphanedBookedSeats(ctx context.Context, now time.Time) (int, error) {
	groups, err := s.shows.ListStaleBookedSeats(ctx, now.Add(-s.cfg.HoldTimeout))
	if err != nil {
		return 0, err
	}

	var errs []error
	released := 0

	for _, group := range groups {
		booking, err := s.bookings.GetByID(ctx, group.BookingID)
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
		case err != nil:
			errs = append(errs, err)
			continue
		case booking.Status == domain.BookingConfirmed:
			continue
		}

		if err = s.inventory.Release(ctx, group.ShowID, group.SeatIDs, group.BookingID); err != nil {
			errs = append(errs, err)
			continue
		}

		s.logger.Warn("released booked seats of an inactive booking",
			"show_id", group.ShowID, "booking_id", group.BookingID, "seat_ids", group.SeatIDs)
		released++
	}

	return released, errors.Join(errs...)
}
