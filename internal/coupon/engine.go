package coupon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	ReasonInactive         = "coupon is not active"
	ReasonExpired          = "coupon is outside its validity window"
	ReasonUsageExhausted   = "coupon usage limit reached"
	ReasonBelowMinimum     = "booking amount is below the coupon minimum"
	ReasonMovie            = "coupon is not valid for this movie"
	ReasonTheater          = "coupon is not valid for this theater"
	ReasonExperience       = "coupon is not valid for this experience"
	ReasonCity             = "coupon is not valid in this city"
	ReasonFirstBookingOnly = "coupon is only valid on a first booking"
	ReasonPerUserExhausted = "coupon already used the maximum number of times"
)

// Check describes the booking a coupon is evaluated against.
type Check struct {
	Code       string
	UserID     int64
	MovieID    int64
	TheaterID  int64
	Experience string
	City       string
	Amount     decimal.Decimal
}

// Result is the outcome of a validation. An invalid coupon is not an error;
// Reason says why it was rejected and Discount is zero.
type Result struct {
	Valid    bool
	Discount decimal.Decimal
	Reason   string
	Coupon   *domain.Coupon
}

type Engine struct {
	coupons domain.CouponStore
	history domain.BookingHistory
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(
	coupons domain.CouponStore,
	history domain.BookingHistory,
	logger *slog.Logger,
	now func() time.Time) *Engine {

	if now == nil {
		now = time.Now
	}

	return &Engine{
		coupons: coupons,
		history: history,
		logger:  logger,
		now:     now,
	}
}

// Validate runs the eligibility checks in order and stops at the first
// failing one. It returns domain.ErrRecordNotFound for unknown codes.
func (e *Engine) Validate(ctx context.Context, check Check) (*Result, error) {
	coupon, err := e.coupons.GetByCode(ctx, check.Code)
	if err != nil {
		return nil, err
	}

	reason, err := e.rejection(ctx, coupon, check)
	if err != nil {
		return nil, err
	}

	if reason != "" {
		e.logger.Info("coupon rejected", "code", coupon.Code, "user_id", check.UserID, "reason", reason)
		return &Result{Discount: decimal.Zero, Reason: reason, Coupon: coupon}, nil
	}

	return &Result{
		Valid:    true,
		Discount: coupon.Discount(check.Amount),
		Coupon:   coupon,
	}, nil
}

func (e *Engine) rejection(ctx context.Context, coupon *domain.Coupon, check Check) (string, error) {
	now := e.now()

	switch {
	case coupon.Status != domain.CouponActive:
		return ReasonInactive, nil
	case !coupon.ActiveAt(now):
		return ReasonExpired, nil
	case coupon.Exhausted():
		return ReasonUsageExhausted, nil
	case check.Amount.LessThan(coupon.MinBookingAmount):
		return ReasonBelowMinimum, nil
	case !coupon.AppliesToMovie(check.MovieID):
		return ReasonMovie, nil
	case !coupon.AppliesToTheater(check.TheaterID):
		return ReasonTheater, nil
	case !coupon.AppliesToExperience(check.Experience):
		return ReasonExperience, nil
	case !coupon.AppliesToCity(check.City):
		return ReasonCity, nil
	}

	if coupon.FirstBookingOnly {
		confirmed, err := e.history.CountConfirmedByUser(ctx, check.UserID)
		if err != nil {
			return "", fmt.Errorf("count confirmed bookings: %w", err)
		}

		if confirmed > 0 {
			return ReasonFirstBookingOnly, nil
		}
	}

	if coupon.PerUserLimit > 0 {
		used, err := e.history.CountUserCouponUses(ctx, check.UserID, coupon.Code)
		if err != nil {
			return "", fmt.Errorf("count coupon uses: %w", err)
		}

		if used >= coupon.PerUserLimit {
			return ReasonPerUserExhausted, nil
		}
	}

	return "", nil
}

// RecordUsage counts one redemption of the coupon with the given code.
func (e *Engine) RecordUsage(ctx context.Context, code string) error {
	coupon, err := e.coupons.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	return e.coupons.IncrementUsage(ctx, coupon.ID)
}
