package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	ReservationExpiryName = "reservation-expiry"
	ShowStatusName        = "show-status"
)

type HoldSweeper interface {
	ExpireStaleHolds(ctx context.Context, now time.Time) (int, error)
	ReconcileOrphanedHolds(ctx context.Context, now time.Time) (int, error)
}

type ShowAdvancer interface {
	AdvanceShowStatuses(ctx context.Context, now time.Time) (int, error)
}

// NewReservationExpiry expires bookings whose hold timed out and then frees
// seats left BLOCKED without a live booking.
func NewReservationExpiry(sweeper HoldSweeper, interval time.Duration, logger *slog.Logger, opts ...Option) *Runner {
	task := func(ctx context.Context, now time.Time) (int, error) {
		expired, expireErr := sweeper.ExpireStaleHolds(ctx, now)
		released, reconcileErr := sweeper.ReconcileOrphanedHolds(ctx, now)

		return expired + released, errors.Join(expireErr, reconcileErr)
	}

	return NewRunner(ReservationExpiryName, interval, task, logger, opts...)
}

func NewShowStatus(advancer ShowAdvancer, interval time.Duration, logger *slog.Logger, opts ...Option) *Runner {
	return NewRunner(ShowStatusName, interval, advancer.AdvanceShowStatuses, logger, opts...)
}
