package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/show-booking-engine/internal/domain"
)

type PostgresCouponRepository struct {
	db *pgxpool.Pool
}

func NewPostgresCouponRepository(db *pgxpool.Pool) *PostgresCouponRepository {
	return &PostgresCouponRepository{
		db: db,
	}
}

const couponColumns = `
	id,
	code,
	discount_type,
	value,
	min_booking_amount,
	max_discount,
	valid_from,
	valid_until,
	status,
	usage_limit,
	usage_count,
	per_user_limit,
	first_booking_only,
	movie_ids,
	theater_ids,
	experiences,
	cities`

func (p *PostgresCouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	query := `
		INSERT INTO coupons (
			code,
			discount_type,
			value,
			min_booking_amount,
			max_discount,
			valid_from,
			valid_until,
			status,
			usage_limit,
			per_user_limit,
			first_booking_only,
			movie_ids,
			theater_ids,
			experiences,
			cities
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`

	err := p.db.QueryRow(
		ctx,
		query,
		coupon.Code,
		coupon.DiscountType,
		coupon.Value,
		coupon.MinBookingAmount,
		coupon.MaxDiscount,
		coupon.ValidFrom,
		coupon.ValidUntil,
		coupon.Status,
		coupon.UsageLimit,
		coupon.PerUserLimit,
		coupon.FirstBookingOnly,
		nonNil(coupon.MovieIDs),
		nonNil(coupon.TheaterIDs),
		nonNil(coupon.Experiences),
		nonNil(coupon.Cities),
	).Scan(&coupon.ID)

	if _, ok := uniqueViolation(err); ok {
		return domain.ErrEditConflict
	}

	return err
}

func (p *PostgresCouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return p.getOne(ctx, `SELECT `+couponColumns+` FROM coupons WHERE upper(code) = upper($1)`, code)
}

func (p *PostgresCouponRepository) GetByID(ctx context.Context, id int64) (*domain.Coupon, error) {
	return p.getOne(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
}

func (p *PostgresCouponRepository) getOne(ctx context.Context, query string, arg any) (*domain.Coupon, error) {
	var c domain.Coupon

	err := p.db.QueryRow(ctx, query, arg).Scan(
		&c.ID,
		&c.Code,
		&c.DiscountType,
		&c.Value,
		&c.MinBookingAmount,
		&c.MaxDiscount,
		&c.ValidFrom,
		&c.ValidUntil,
		&c.Status,
		&c.UsageLimit,
		&c.UsageCount,
		&c.PerUserLimit,
		&c.FirstBookingOnly,
		&c.MovieIDs,
		&c.TheaterIDs,
		&c.Experiences,
		&c.Cities,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &c, nil
}

// IncrementUsage counts one more redemption unless the global limit has
// already been reached.
func (p *PostgresCouponRepository) IncrementUsage(ctx context.Context, id int64) error {
	query := `
		UPDATE coupons
		SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)
	`

	tag, err := p.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrEditConflict
	}

	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
