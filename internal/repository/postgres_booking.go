package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/shopspring/decimal"
)

const bookingNumberConstraint = "bookings_booking_number_key"

type PostgresBookingRepository struct {
	db *pgxpool.Pool
}

func NewPostgresBookingRepository(db *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{
		db: db,
	}
}

const bookingColumns = `
	id,
	booking_number,
	user_id,
	show_id,
	contact_email,
	coupon_code,
	coupon_type,
	coupon_discount,
	subtotal_amount,
	discount_amount,
	additional_charges,
	total_amount,
	currency,
	status,
	ticket_status,
	payment_order_ref,
	payment_ref,
	transaction_ref,
	paid_at,
	cancellation_reason,
	cancelled_by,
	cancelled_at,
	refund_amount,
	refund_status,
	refund_ref,
	refund_failure_reason,
	refund_requested_at,
	refund_processed_at,
	checked_in_at,
	hold_started_at,
	created_at,
	updated_at`

// bookingRow holds the nullable columns of a booking while it is scanned.
type bookingRow struct {
	couponCode          *string
	couponType          *string
	couponDiscount      decimal.NullDecimal
	cancellationReason  *string
	cancelledBy         *string
	cancelledAt         *time.Time
	refundAmount        decimal.NullDecimal
	refundStatus        *string
	refundRef           *string
	refundFailureReason *string
	refundRequestedAt   *time.Time
	refundProcessedAt   *time.Time
}

func scanBooking(row pgx.Row, b *domain.Booking) error {
	var r bookingRow

	err := row.Scan(
		&b.ID,
		&b.BookingNumber,
		&b.UserID,
		&b.ShowID,
		&b.ContactEmail,
		&r.couponCode,
		&r.couponType,
		&r.couponDiscount,
		&b.SubtotalAmount,
		&b.DiscountAmount,
		&b.AdditionalCharges,
		&b.TotalAmount,
		&b.Currency,
		&b.Status,
		&b.TicketStatus,
		&b.Payment.OrderRef,
		&b.Payment.PaymentRef,
		&b.Payment.TransactionRef,
		&b.Payment.PaidAt,
		&r.cancellationReason,
		&r.cancelledBy,
		&r.cancelledAt,
		&r.refundAmount,
		&r.refundStatus,
		&r.refundRef,
		&r.refundFailureReason,
		&r.refundRequestedAt,
		&r.refundProcessedAt,
		&b.CheckedInAt,
		&b.HoldStartedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if r.couponCode != nil {
		b.Coupon = &domain.AppliedCoupon{
			Code:     *r.couponCode,
			Discount: r.couponDiscount.Decimal,
			Type:     domain.DiscountType(deref(r.couponType)),
		}
	}

	if r.cancelledAt != nil {
		b.Cancellation = &domain.Cancellation{
			Reason:      deref(r.cancellationReason),
			Actor:       deref(r.cancelledBy),
			CancelledAt: *r.cancelledAt,
		}
	}

	if r.refundStatus != nil {
		b.Refund = &domain.Refund{
			Amount:        r.refundAmount.Decimal,
			Status:        domain.RefundStatus(*r.refundStatus),
			Ref:           deref(r.refundRef),
			FailureReason: deref(r.refundFailureReason),
			ProcessedAt:   r.refundProcessedAt,
		}
		if r.refundRequestedAt != nil {
			b.Refund.RequestedAt = *r.refundRequestedAt
		}
	}

	return nil
}

// nullableArgs flattens the optional parts of a booking into column values.
func nullableArgs(b *domain.Booking) []any {
	var couponCode, couponType, cancellationReason, cancelledBy *string
	var refundStatus, refundRef, refundFailureReason *string
	var couponDiscount, refundAmount decimal.NullDecimal
	var cancelledAt, refundRequestedAt, refundProcessedAt *time.Time

	if b.Coupon != nil {
		couponCode = &b.Coupon.Code
		t := string(b.Coupon.Type)
		couponType = &t
		couponDiscount = decimal.NewNullDecimal(b.Coupon.Discount)
	}

	if b.Cancellation != nil {
		cancellationReason = &b.Cancellation.Reason
		cancelledBy = &b.Cancellation.Actor
		cancelledAt = &b.Cancellation.CancelledAt
	}

	if b.Refund != nil {
		refundAmount = decimal.NewNullDecimal(b.Refund.Amount)
		s := string(b.Refund.Status)
		refundStatus = &s
		refundRef = &b.Refund.Ref
		refundFailureReason = &b.Refund.FailureReason
		refundRequestedAt = &b.Refund.RequestedAt
		refundProcessedAt = b.Refund.ProcessedAt
	}

	return []any{
		couponCode,
		couponType,
		couponDiscount,
		cancellationReason,
		cancelledBy,
		cancelledAt,
		refundAmount,
		refundStatus,
		refundRef,
		refundFailureReason,
		refundRequestedAt,
		refundProcessedAt,
	}
}

func (p *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO bookings (
				id,
				booking_number,
				user_id,
				show_id,
				contact_email,
				subtotal_amount,
				discount_amount,
				additional_charges,
				total_amount,
				currency,
				status,
				ticket_status,
				payment_order_ref,
				hold_started_at,
				created_at,
				updated_at,
				coupon_code,
				coupon_type,
				coupon_discount,
				cancellation_reason,
				cancelled_by,
				cancelled_at,
				refund_amount,
				refund_status,
				refund_ref,
				refund_failure_reason,
				refund_requested_at,
				refund_processed_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		`

		args := []any{
			booking.ID,
			booking.BookingNumber,
			booking.UserID,
			booking.ShowID,
			booking.ContactEmail,
			booking.SubtotalAmount,
			booking.DiscountAmount,
			booking.AdditionalCharges,
			booking.TotalAmount,
			booking.Currency,
			booking.Status,
			booking.TicketStatus,
			booking.Payment.OrderRef,
			booking.HoldStartedAt,
			booking.CreatedAt,
			booking.UpdatedAt,
		}
		args = append(args, nullableArgs(booking)...)

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return err
		}

		rows := make([][]any, 0, len(booking.Seats))
		for _, seat := range booking.Seats {
			rows = append(rows, []any{booking.ID, seat.SeatID, seat.Category, seat.Price})
		}

		_, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"booking_seats"},
			[]string{"booking_id", "seat_id", "category", "price"},
			pgx.CopyFromRows(rows),
		)

		return err
	})

	if pgErr, ok := uniqueViolation(err); ok {
		if pgErr.ConstraintName == bookingNumberConstraint {
			return domain.ErrDuplicateBookingNumber
		}

		return domain.ErrEditConflict
	}

	return err
}

func (p *PostgresBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return p.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (p *PostgresBookingRepository) GetByNumber(ctx context.Context, number string) (*domain.Booking, error) {
	return p.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_number = $1`, number)
}

func (p *PostgresBookingRepository) getOne(ctx context.Context, query string, arg any) (*domain.Booking, error) {
	var booking domain.Booking

	err := scanBooking(p.db.QueryRow(ctx, query, arg), &booking)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	bookings := []domain.Booking{booking}
	if err = p.attachSeats(ctx, bookings); err != nil {
		return nil, err
	}

	return &bookings[0], nil
}

func (p *PostgresBookingRepository) ListByUser(
	ctx context.Context,
	userID int64,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	query := `SELECT COUNT(*) OVER(), ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := p.db.Query(ctx, query, userID, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	totalRecords := 0

	for rows.Next() {
		var booking domain.Booking

		err = scanBooking(countingRow{row: rows, total: &totalRecords}, &booking)
		if err != nil {
			return nil, nil, err
		}

		bookings = append(bookings, booking)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, err
	}

	if err = p.attachSeats(ctx, bookings); err != nil {
		return nil, nil, err
	}

	metadata := domain.NewMetadata(totalRecords, pagination.Page, pagination.PageSize)

	return bookings, metadata, nil
}

// countingRow prepends the window count column to a booking scan.
type countingRow struct {
	row   pgx.Row
	total *int
}

func (c countingRow) Scan(dest ...any) error {
	return c.row.Scan(append([]any{c.total}, dest...)...)
}

// Update stores the mutable state of booking when the stored status is one of
// from. Seats and amounts are fixed at creation and are not rewritten.
func (p *PostgresBookingRepository) Update(
	ctx context.Context,
	booking *domain.Booking,
	from ...domain.BookingStatus) error {

	query := `
		UPDATE bookings
		SET
			status = $2,
			ticket_status = $3,
			payment_order_ref = $4,
			payment_ref = $5,
			transaction_ref = $6,
			paid_at = $7,
			checked_in_at = $8,
			updated_at = $9,
			coupon_code = $11,
			coupon_type = $12,
			coupon_discount = $13,
			cancellation_reason = $14,
			cancelled_by = $15,
			cancelled_at = $16,
			refund_amount = $17,
			refund_status = $18,
			refund_ref = $19,
			refund_failure_reason = $20,
			refund_requested_at = $21,
			refund_processed_at = $22
		WHERE id = $1 AND status = ANY($10)
	`

	args := []any{
		booking.ID,
		booking.Status,
		booking.TicketStatus,
		booking.Payment.OrderRef,
		booking.Payment.PaymentRef,
		booking.Payment.TransactionRef,
		booking.Payment.PaidAt,
		booking.CheckedInAt,
		booking.UpdatedAt,
		statusStrings(from),
	}
	args = append(args, nullableArgs(booking)...)

	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return p.missOrStale(ctx, booking.ID)
	}

	return nil
}

func (p *PostgresBookingRepository) Delete(ctx context.Context, id uuid.UUID, from ...domain.BookingStatus) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1 AND status = ANY($2)`, id, statusStrings(from))
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return p.missOrStale(ctx, id)
	}

	return nil
}

// missOrStale tells a missing booking apart from one whose status moved on.
func (p *PostgresBookingRepository) missOrStale(ctx context.Context, id uuid.UUID) error {
	var exists bool

	err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}

	if !exists {
		return domain.ErrRecordNotFound
	}

	return domain.ErrInvalidState
}

func (p *PostgresBookingRepository) ListStaleHolds(
	ctx context.Context,
	before time.Time,
	limit int) ([]domain.Booking, error) {

	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = ANY($1) AND hold_started_at < $2
		ORDER BY hold_started_at
		LIMIT $3`

	rows, err := p.db.Query(ctx, query, statusStrings(domain.HoldStatuses), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)

	for rows.Next() {
		var booking domain.Booking

		if err = scanBooking(rows, &booking); err != nil {
			return nil, err
		}

		bookings = append(bookings, booking)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if err = p.attachSeats(ctx, bookings); err != nil {
		return nil, err
	}

	return bookings, nil
}

func (p *PostgresBookingRepository) CountConfirmedByUser(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE user_id = $1 AND status = 'CONFIRMED'`

	var n int
	err := p.db.QueryRow(ctx, query, userID).Scan(&n)

	return n, err
}

func (p *PostgresBookingRepository) CountUserCouponUses(ctx context.Context, userID int64, code string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE user_id = $1 AND status = 'CONFIRMED' AND upper(coupon_code) = upper($2)
	`

	var n int
	err := p.db.QueryRow(ctx, query, userID, code).Scan(&n)

	return n, err
}

func (p *PostgresBookingRepository) attachSeats(ctx context.Context, bookings []domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(bookings))
	index := make(map[uuid.UUID]int, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		index[b.ID] = i
	}

	query := `
		SELECT booking_id, seat_id, category, price
		FROM booking_seats
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, seat_id
	`

	rows, err := p.db.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var bookingID uuid.UUID
		var seat domain.BookingSeat

		if err = rows.Scan(&bookingID, &seat.SeatID, &seat.Category, &seat.Price); err != nil {
			return err
		}

		i := index[bookingID]
		bookings[i].Seats = append(bookings[i].Seats, seat)
	}

	return rows.Err()
}

func statusStrings(statuses []domain.BookingStatus) []string {
	s := make([]string, len(statuses))
	for i, status := range statuses {
		s[i] = string(status)
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
