package domain

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingInitiated      BookingStatus = "INITIATED"
	BookingPaymentPending BookingStatus = "PAYMENT_PENDING"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingCancelled      BookingStatus = "CANCELLED"
	BookingRefunded       BookingStatus = "REFUNDED"
	BookingExpired        BookingStatus = "EXPIRED"
)

// HoldStatuses are the statuses in which a booking owns BLOCKED seats.
var HoldStatuses = []BookingStatus{BookingInitiated, BookingPaymentPending}

// DeletableStatuses are the statuses from which a booking may be hard deleted.
var DeletableStatuses = []BookingStatus{BookingInitiated, BookingPaymentPending, BookingExpired}

func (s BookingStatus) In(statuses ...BookingStatus) bool {
	return slices.Contains(statuses, s)
}

type TicketStatus string

const (
	TicketNotIssued TicketStatus = "NOT_ISSUED"
	TicketIssued    TicketStatus = "ISSUED"
	TicketCheckedIn TicketStatus = "CHECKED_IN"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundProcessed RefundStatus = "PROCESSED"
	RefundFailed    RefundStatus = "FAILED"
)

type BookingSeat struct {
	SeatID   string
	Category string
	Price    decimal.Decimal
}

type AppliedCoupon struct {
	Code     string
	Discount decimal.Decimal
	Type     DiscountType
}

type PaymentDetails struct {
	OrderRef       string
	PaymentRef     string
	TransactionRef string
	PaidAt         *time.Time
}

type Cancellation struct {
	Reason      string
	Actor       string
	CancelledAt time.Time
}

type Refund struct {
	Amount        decimal.Decimal
	Status        RefundStatus
	Ref           string
	FailureReason string
	RequestedAt   time.Time
	ProcessedAt   *time.Time
}

type Booking struct {
	ID                uuid.UUID
	BookingNumber     string
	UserID            int64
	ShowID            int64
	ContactEmail      string
	Seats             []BookingSeat
	Coupon            *AppliedCoupon
	SubtotalAmount    decimal.Decimal
	DiscountAmount    decimal.Decimal
	AdditionalCharges decimal.Decimal
	TotalAmount       decimal.Decimal
	Currency          string
	Status            BookingStatus
	TicketStatus      TicketStatus
	Payment           PaymentDetails
	Cancellation      *Cancellation
	Refund            *Refund
	CheckedInAt       *time.Time
	HoldStartedAt     time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (b *Booking) SeatIDs() []string {
	ids := make([]string, len(b.Seats))
	for i, s := range b.Seats {
		ids[i] = s.SeatID
	}
	return ids
}

// ApplyTotals sets the monetary fields from the locked-in seat prices, the
// discount and the convenience fee rate (in percent of the subtotal).
func (b *Booking) ApplyTotals(discount, feeRate decimal.Decimal) {
	subtotal := decimal.Zero
	for _, s := range b.Seats {
		subtotal = subtotal.Add(s.Price)
	}

	b.SubtotalAmount = RoundMoney(subtotal)
	b.DiscountAmount = RoundMoney(discount)
	b.AdditionalCharges = Percent(b.SubtotalAmount, feeRate)
	b.TotalAmount = b.SubtotalAmount.Sub(b.DiscountAmount).Add(b.AdditionalCharges)
}

func (b *Booking) Notification(event TicketEvent, at time.Time, showTime time.Time) TicketNotification {
	return TicketNotification{
		Event:         event,
		BookingID:     b.ID.String(),
		BookingNumber: b.BookingNumber,
		UserID:        b.UserID,
		Recipient:     b.ContactEmail,
		ShowID:        b.ShowID,
		ShowTime:      showTime,
		SeatIDs:       b.SeatIDs(),
		TotalAmount:   b.TotalAmount,
		Currency:      b.Currency,
		OccurredAt:    at,
	}
}

type BookingRepository interface {
	Create(ctx context.Context, booking *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetByNumber(ctx context.Context, number string) (*Booking, error)
	ListByUser(ctx context.Context, userID int64, pagination Pagination) ([]Booking, *Metadata, error)
	// Update persists the mutable fields of booking only if its stored status
	// is one of from. It returns ErrInvalidState otherwise.
	Update(ctx context.Context, booking *Booking, from ...BookingStatus) error
	Delete(ctx context.Context, id uuid.UUID, from ...BookingStatus) error
	ListStaleHolds(ctx context.Context, before time.Time, limit int) ([]Booking, error)
	BookingHistory
}

type BookingHistory interface {
	CountConfirmedByUser(ctx context.Context, userID int64) (int, error)
	CountUserCouponUses(ctx context.Context, userID int64, code string) (int, error)
}
