// Package popularity keeps show and movie popularity in step with views,
// booking attempts and confirmed sales.
package popularity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/metinatakli/show-booking-engine/internal/domain"
)

type Scorer struct {
	shows  domain.ShowRepository
	movies domain.MovieCatalog
	logger *slog.Logger
}

func NewScorer(shows domain.ShowRepository, movies domain.MovieCatalog, logger *slog.Logger) *Scorer {
	return &Scorer{
		shows:  shows,
		movies: movies,
		logger: logger,
	}
}

func (s *Scorer) RecordView(ctx context.Context, showID int64) error {
	if err := s.shows.IncrementViews(ctx, showID); err != nil {
		return fmt.Errorf("record view: %w", err)
	}

	_, err := s.rescore(ctx, showID)
	return err
}

func (s *Scorer) RecordAttempt(ctx context.Context, showID int64) error {
	if err := s.shows.IncrementBookingAttempts(ctx, showID); err != nil {
		return fmt.Errorf("record booking attempt: %w", err)
	}

	_, err := s.rescore(ctx, showID)
	return err
}

// RecordSale rescores the show of a confirmed booking and adds the sale and
// the resulting score change to the movie totals.
func (s *Scorer) RecordSale(ctx context.Context, booking *domain.Booking) error {
	show, err := s.shows.GetByID(ctx, booking.ShowID)
	if err != nil {
		return err
	}

	delta, err := s.rescore(ctx, show.ID)
	if err != nil {
		return err
	}

	sale := domain.MovieSale{
		Bookings:        1,
		Revenue:         booking.TotalAmount,
		PopularityDelta: delta,
	}

	if err = s.movies.RecordSale(ctx, show.MovieID, sale); err != nil {
		return fmt.Errorf("record sale of movie %d: %w", show.MovieID, err)
	}

	return nil
}

// rescore stores the current popularity of a show and returns how much it
// moved.
func (s *Scorer) rescore(ctx context.Context, showID int64) (float64, error) {
	show, err := s.shows.RefreshCounters(ctx, showID)
	if err != nil {
		return 0, fmt.Errorf("rescore show %d: %w", showID, err)
	}

	previous := show.PopularityScore
	score := show.Popularity()

	if err = s.shows.UpdatePopularity(ctx, showID, score); err != nil {
		return 0, fmt.Errorf("rescore show %d: %w", showID, err)
	}

	s.logger.Debug("show rescored", "show_id", showID, "score", score)

	return score - previous, nil
}
