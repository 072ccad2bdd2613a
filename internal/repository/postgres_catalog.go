package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/show-booking-engine/internal/domain"
)

// PostgresCatalogRepository reads the movie, theater and screen catalog that
// shows are scheduled against.
type PostgresCatalogRepository struct {
	db *pgxpool.Pool
}

func NewPostgresCatalogRepository(db *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{
		db: db,
	}
}

func (p *PostgresCatalogRepository) GetMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	query := `SELECT id, title, duration_minutes FROM movies WHERE id = $1`

	var movie domain.Movie

	err := p.db.QueryRow(ctx, query, id).Scan(&movie.ID, &movie.Title, &movie.DurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &movie, nil
}

func (p *PostgresCatalogRepository) RecordSale(ctx context.Context, movieID int64, sale domain.MovieSale) error {
	query := `
		UPDATE movies
		SET
			total_bookings = total_bookings + $2,
			total_revenue = total_revenue + $3,
			popularity_score = popularity_score + $4
		WHERE id = $1
	`

	tag, err := p.db.Exec(ctx, query, movieID, sale.Bookings, sale.Revenue, sale.PopularityDelta)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}

	return nil
}

func (p *PostgresCatalogRepository) GetTheater(ctx context.Context, id int64) (*domain.Theater, error) {
	query := `SELECT id, name, city FROM theaters WHERE id = $1`

	var theater domain.Theater

	err := p.db.QueryRow(ctx, query, id).Scan(&theater.ID, &theater.Name, &theater.City)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &theater, nil
}

func (p *PostgresCatalogRepository) GetScreen(ctx context.Context, id int64) (*domain.Screen, error) {
	query := `SELECT id, theater_id, name FROM screens WHERE id = $1`

	var screen domain.Screen

	err := p.db.QueryRow(ctx, query, id).Scan(&screen.ID, &screen.TheaterID, &screen.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	query = `
		SELECT seat_id, seat_row, seat_col, category
		FROM screen_seats
		WHERE screen_id = $1
		ORDER BY seat_row, seat_col
	`

	rows, err := p.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seat domain.LayoutSeat

		if err = rows.Scan(&seat.SeatID, &seat.Row, &seat.Column, &seat.Category); err != nil {
			return nil, err
		}

		screen.Layout = append(screen.Layout, seat)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return &screen, nil
}
