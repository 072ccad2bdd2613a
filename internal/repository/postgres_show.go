package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/show-booking-engine/internal/domain"
)

type PostgresShowRepository struct {
	db *pgxpool.Pool
}

func NewPostgresShowRepository(db *pgxpool.Pool) *PostgresShowRepository {
	return &PostgresShowRepository{
		db: db,
	}
}

const showColumns = `
	id,
	movie_id,
	theater_id,
	screen_id,
	show_time,
	end_time,
	language,
	experience,
	pricing,
	total_seats,
	available_seats,
	booked_seats,
	status,
	view_count,
	booking_attempts,
	popularity_score,
	created_at,
	updated_at`

func scanShow(row pgx.Row, show *domain.Show) error {
	return row.Scan(
		&show.ID,
		&show.MovieID,
		&show.TheaterID,
		&show.ScreenID,
		&show.ShowTime,
		&show.EndTime,
		&show.Language,
		&show.Experience,
		&show.Pricing,
		&show.TotalSeats,
		&show.AvailableSeats,
		&show.BookedSeats,
		&show.Status,
		&show.ViewCount,
		&show.BookingAttempts,
		&show.PopularityScore,
		&show.CreatedAt,
		&show.UpdatedAt,
	)
}

func (p *PostgresShowRepository) Create(ctx context.Context, show *domain.Show) error {
	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO shows (
				movie_id,
				theater_id,
				screen_id,
				show_time,
				end_time,
				language,
				experience,
				pricing,
				total_seats,
				available_seats,
				booked_seats,
				status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(
			ctx,
			query,
			show.MovieID,
			show.TheaterID,
			show.ScreenID,
			show.ShowTime,
			show.EndTime,
			show.Language,
			show.Experience,
			show.Pricing,
			show.TotalSeats,
			show.AvailableSeats,
			show.BookedSeats,
			show.Status,
		).Scan(&show.ID, &show.CreatedAt, &show.UpdatedAt)
		if err != nil {
			return err
		}

		rows := make([][]any, 0, len(show.Seats))
		for _, seat := range show.Seats {
			rows = append(rows, []any{
				show.ID,
				seat.SeatID,
				seat.Row,
				seat.Column,
				seat.Category,
				string(seat.Status),
				show.CreatedAt,
			})
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"show_seats"},
			[]string{"show_id", "seat_id", "seat_row", "seat_col", "category", "status", "updated_at"},
			pgx.CopyFromRows(rows),
		)

		return err
	})
}

func (p *PostgresShowRepository) GetByID(ctx context.Context, id int64) (*domain.Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE id = $1`

	var show domain.Show

	err := scanShow(p.db.QueryRow(ctx, query, id), &show)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	query = `
		SELECT seat_id, seat_row, seat_col, category, status, booking_id, updated_at
		FROM show_seats
		WHERE show_id = $1
		ORDER BY seat_row, seat_col
	`

	rows, err := p.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seat domain.ShowSeat

		err = rows.Scan(
			&seat.SeatID,
			&seat.Row,
			&seat.Column,
			&seat.Category,
			&seat.Status,
			&seat.BookingID,
			&seat.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		show.Seats = append(show.Seats, seat)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return &show, nil
}

// ReserveSeats blocks all requested seats for bookingID inside one
// transaction. The show row is locked first so holds on the same show are
// serialized; the conditional update then either matches every seat or the
// transaction is rolled back.
func (p *PostgresShowRepository) ReserveSeats(
	ctx context.Context,
	showID int64,
	seatIDs []string,
	bookingID uuid.UUID,
	at time.Time) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		status, err := lockShow(ctx, tx, showID)
		if err != nil {
			return err
		}

		query := `
			UPDATE show_seats
			SET status = 'BLOCKED', booking_id = $3, updated_at = $4
			WHERE show_id = $1 AND seat_id = ANY($2) AND status = 'AVAILABLE'
		`

		tag, err := tx.Exec(ctx, query, showID, seatIDs, bookingID, at)
		if err != nil {
			return err
		}

		if tag.RowsAffected() != int64(len(seatIDs)) {
			return domain.ErrSeatAlreadyReserved
		}

		return refreshCounters(ctx, tx, showID, status, at)
	})
}

func (p *PostgresShowRepository) ConfirmSeats(
	ctx context.Context,
	showID int64,
	seatIDs []string,
	bookingID uuid.UUID,
	at time.Time) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		status, err := lockShow(ctx, tx, showID)
		if err != nil {
			return err
		}

		query := `
			UPDATE show_seats
			SET status = 'BOOKED', updated_at = $4
			WHERE show_id = $1 AND seat_id = ANY($2) AND booking_id = $3 AND status = 'BLOCKED'
		`

		tag, err := tx.Exec(ctx, query, showID, seatIDs, bookingID, at)
		if err != nil {
			return err
		}

		if tag.RowsAffected() != int64(len(seatIDs)) {
			return domain.ErrSeatLockExpired
		}

		return refreshCounters(ctx, tx, showID, status, at)
	})
}

func (p *PostgresShowRepository) ReleaseSeats(
	ctx context.Context,
	showID int64,
	seatIDs []string,
	bookingID uuid.UUID,
	at time.Time) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		status, err := lockShow(ctx, tx, showID)
		if err != nil {
			return err
		}

		query := `
			UPDATE show_seats
			SET status = 'AVAILABLE', booking_id = NULL, updated_at = $4
			WHERE show_id = $1
				AND seat_id = ANY($2)
				AND booking_id = $3
				AND status IN ('BLOCKED', 'BOOKED')
		`

		_, err = tx.Exec(ctx, query, showID, seatIDs, bookingID, at)
		if err != nil {
			return err
		}

		return refreshCounters(ctx, tx, showID, status, at)
	})
}

func (p *PostgresShowRepository) RefreshCounters(ctx context.Context, showID int64) (*domain.Show, error) {
	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		status, err := lockShow(ctx, tx, showID)
		if err != nil {
			return err
		}

		return refreshCounters(ctx, tx, showID, status, time.Now())
	})
	if err != nil {
		return nil, err
	}

	return p.GetByID(ctx, showID)
}

func lockShow(ctx context.Context, tx pgx.Tx, showID int64) (domain.ShowStatus, error) {
	var status domain.ShowStatus

	err := tx.QueryRow(ctx, `SELECT status FROM shows WHERE id = $1 FOR UPDATE`, showID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrRecordNotFound
		}

		return "", err
	}

	return status, nil
}

// refreshCounters recounts the seat map of a locked show and stores the
// derived counters and occupancy status.
func refreshCounters(ctx context.Context, tx pgx.Tx, showID int64, status domain.ShowStatus, at time.Time) error {
	query := `
		SELECT status, COUNT(*)
		FROM show_seats
		WHERE show_id = $1
		GROUP BY status
	`

	rows, err := tx.Query(ctx, query, showID)
	if err != nil {
		return err
	}
	defer rows.Close()

	counts := domain.SeatCounts{}

	for rows.Next() {
		var seatStatus domain.SeatStatus
		var n int

		if err = rows.Scan(&seatStatus, &n); err != nil {
			return err
		}

		counts[seatStatus] = n
	}

	if err = rows.Err(); err != nil {
		return err
	}

	show := domain.Show{Status: status}
	show.ApplyCounts(counts)

	query = `
		UPDATE shows
		SET total_seats = $2, available_seats = $3, booked_seats = $4, status = $5, updated_at = $6
		WHERE id = $1
	`

	_, err = tx.Exec(ctx, query, showID, show.TotalSeats, show.AvailableSeats, show.BookedSeats, show.Status, at)

	return err
}

func (p *PostgresShowRepository) ListStaleSeatHolds(ctx context.Context, before time.Time) ([]domain.SeatHold, error) {
	query := `
		SELECT show_id, booking_id, array_agg(seat_id ORDER BY seat_id), MIN(updated_at)
		FROM show_seats
		WHERE status = 'BLOCKED' AND booking_id IS NOT NULL AND updated_at < $1
		GROUP BY show_id, booking_id
		ORDER BY MIN(updated_at)
	`

	return p.querySeatHolds(ctx, query, before)
}

// ListStaleBookedSeats groups BOOKED seats last touched before the given time
// whose booking is gone or no longer CONFIRMED.
func (p *PostgresShowRepository) ListStaleBookedSeats(ctx context.Context, before time.Time) ([]domain.SeatHold, error) {
	query := `
		SELECT ss.show_id, ss.booking_id, array_agg(ss.seat_id ORDER BY ss.seat_id), MIN(ss.updated_at)
		FROM show_seats ss
		LEFT JOIN bookings b ON b.id = ss.booking_id
		WHERE ss.status = 'BOOKED' AND ss.booking_id IS NOT NULL AND ss.updated_at < $1
			AND (b.id IS NULL OR b.status <> 'CONFIRMED')
		GROUP BY ss.show_id, ss.booking_id
		ORDER BY MIN(ss.updated_at)
	`

	return p.querySeatHolds(ctx, query, before)
}

func (p *PostgresShowRepository) querySeatHolds(ctx context.Context, query string, args ...any) ([]domain.SeatHold, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holds := make([]domain.SeatHold, 0)

	for rows.Next() {
		var hold domain.SeatHold

		err = rows.Scan(&hold.ShowID, &hold.BookingID, &hold.SeatIDs, &hold.HeldSince)
		if err != nil {
			return nil, err
		}

		holds = append(holds, hold)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return holds, nil
}

func (p *PostgresShowRepository) ListSchedulable(ctx context.Context) ([]domain.Show, error) {
	query := `SELECT ` + showColumns + `
		FROM shows
		WHERE status NOT IN ('FINISHED', 'CANCELLED')
		ORDER BY show_time`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shows := make([]domain.Show, 0)

	for rows.Next() {
		var show domain.Show

		if err = scanShow(rows, &show); err != nil {
			return nil, err
		}

		shows = append(shows, show)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return shows, nil
}

func (p *PostgresShowRepository) UpdateStatus(ctx context.Context, showID int64, from, to domain.ShowStatus) error {
	query := `
		UPDATE shows
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	tag, err := p.db.Exec(ctx, query, showID, from, to)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrEditConflict
	}

	return nil
}

func (p *PostgresShowRepository) IncrementViews(ctx context.Context, showID int64) error {
	return p.execOne(ctx, `UPDATE shows SET view_count = view_count + 1 WHERE id = $1`, showID)
}

func (p *PostgresShowRepository) IncrementBookingAttempts(ctx context.Context, showID int64) error {
	return p.execOne(ctx, `UPDATE shows SET booking_attempts = booking_attempts + 1 WHERE id = $1`, showID)
}

func (p *PostgresShowRepository) UpdatePopularity(ctx context.Context, showID int64, score float64) error {
	return p.execOne(ctx, `UPDATE shows SET popularity_score = $2 WHERE id = $1`, showID, score)
}

func (p *PostgresShowRepository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}

	return nil
}
