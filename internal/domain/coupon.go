package domain

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

type CouponStatus string

const (
	CouponActive   CouponStatus = "ACTIVE"
	CouponInactive CouponStatus = "INACTIVE"
)

type Coupon struct {
	ID               int64
	Code             string
	DiscountType     DiscountType
	Value            decimal.Decimal
	MinBookingAmount decimal.Decimal
	MaxDiscount      decimal.Decimal
	ValidFrom        time.Time
	ValidUntil       time.Time
	Status           CouponStatus
	UsageLimit       int
	UsageCount       int
	PerUserLimit     int
	FirstBookingOnly bool
	MovieIDs         []int64
	TheaterIDs       []int64
	Experiences      []string
	Cities           []string
}

func (c *Coupon) ActiveAt(t time.Time) bool {
	return c.Status == CouponActive && !t.Before(c.ValidFrom) && !t.After(c.ValidUntil)
}

func (c *Coupon) Exhausted() bool {
	return c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit
}

func (c *Coupon) AppliesToMovie(id int64) bool {
	return len(c.MovieIDs) == 0 || slices.Contains(c.MovieIDs, id)
}

func (c *Coupon) AppliesToTheater(id int64) bool {
	return len(c.TheaterIDs) == 0 || slices.Contains(c.TheaterIDs, id)
}

func (c *Coupon) AppliesToExperience(experience string) bool {
	return len(c.Experiences) == 0 || containsFold(c.Experiences, experience)
}

func (c *Coupon) AppliesToCity(city string) bool {
	return len(c.Cities) == 0 || containsFold(c.Cities, city)
}

// Discount computes the discount for amount. The result never exceeds the
// configured cap nor the amount itself.
func (c *Coupon) Discount(amount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal

	switch c.DiscountType {
	case DiscountPercentage:
		discount = Percent(amount, c.Value)
	case DiscountFixed:
		discount = decimal.Min(c.Value, amount)
	default:
		return decimal.Zero
	}

	if c.MaxDiscount.IsPositive() {
		discount = decimal.Min(discount, c.MaxDiscount)
	}

	return RoundMoney(decimal.Max(discount, decimal.Zero))
}

func containsFold(values []string, v string) bool {
	return slices.ContainsFunc(values, func(s string) bool {
		return strings.EqualFold(s, v)
	})
}

type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id int64) (*Coupon, error)
	IncrementUsage(ctx context.Context, id int64) error
}
