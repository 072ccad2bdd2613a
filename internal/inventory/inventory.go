// Package inventory owns the seat map of every show. It is the only component
// that changes seat statuses; all other packages go through it.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	appvalidator "github.com/metinatakli/show-booking-engine/internal/validator"
)

type Service struct {
	shows     domain.ShowRepository
	catalog   domain.ShowCatalog
	movies    domain.MovieCatalog
	views     ViewRecorder
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

type ViewRecorder interface {
	RecordView(ctx context.Context, showID int64) error
}

type Option func(*Service)

// WithViewRecorder counts every seat map read as a view of the show.
func WithViewRecorder(views ViewRecorder) Option {
	return func(s *Service) {
		s.views = views
	}
}

// WithClock replaces the wall clock used for seat timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(
	shows domain.ShowRepository,
	catalog domain.ShowCatalog,
	movies domain.MovieCatalog,
	validator *validator.Validate,
	logger *slog.Logger,
	opts ...Option) *Service {

	s := &Service{
		shows:     shows,
		catalog:   catalog,
		movies:    movies,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type seatSelection struct {
	SeatIDs []string `validate:"required,min=1,unique,dive,seat_id"`
}

func (s *Service) selection(seatIDs []string) error {
	return appvalidator.Struct(s.validator, seatSelection{SeatIDs: seatIDs})
}

// Reserve blocks the given seats for bookingID. Either every seat moves from
// AVAILABLE to BLOCKED or none does and domain.ErrSeatAlreadyReserved is
// returned.
func (s *Service) Reserve(ctx context.Context, showID int64, seatIDs []string, bookingID uuid.UUID) error {
	if err := s.selection(seatIDs); err != nil {
		return err
	}

	err := s.shows.ReserveSeats(ctx, showID, seatIDs, bookingID, s.now())
	if err != nil {
		return fmt.Errorf("reserve seats of show %d: %w", showID, err)
	}

	return nil
}

// Confirm turns the seats held by bookingID into BOOKED. It fails with
// domain.ErrSeatLockExpired when any of them is no longer held by the booking.
func (s *Service) Confirm(ctx context.Context, showID int64, seatIDs []string, bookingID uuid.UUID) error {
	if err := s.selection(seatIDs); err != nil {
		return err
	}

	err := s.shows.ConfirmSeats(ctx, showID, seatIDs, bookingID, s.now())
	if err != nil {
		return fmt.Errorf("confirm seats of show %d: %w", showID, err)
	}

	return nil
}

// Release returns the seats owned by bookingID to AVAILABLE. Releasing seats
// that are already free is a no-op.
func (s *Service) Release(ctx context.Context, showID int64, seatIDs []string, bookingID uuid.UUID) error {
	if len(seatIDs) == 0 {
		return nil
	}

	err := s.shows.ReleaseSeats(ctx, showID, seatIDs, bookingID, s.now())
	if err != nil {
		return fmt.Errorf("release seats of show %d: %w", showID, err)
	}

	return nil
}

func (s *Service) RecomputeCounters(ctx context.Context, showID int64) (*domain.Show, error) {
	return s.shows.RefreshCounters(ctx, showID)
}

func (s *Service) CalculatePopularityScore(show *domain.Show) float64 {
	return show.Popularity()
}

// SeatMap returns the show with its seats as they were before this read was
// counted as a view. A failure to count the view does not fail the read.
func (s *Service) SeatMap(ctx context.Context, showID int64) (*domain.Show, error) {
	show, err := s.shows.GetByID(ctx, showID)
	if err != nil {
		return nil, err
	}

	if s.views != nil {
		if err = s.views.RecordView(ctx, showID); err != nil {
			s.logger.Warn("failed to record show view", "show_id", showID, "error", err)
		}
	}

	return show, nil
}

type ScheduleInput struct {
	MovieID    int64                       `validate:"required,gt=0"`
	TheaterID  int64                       `validate:"required,gt=0"`
	ScreenID   int64                       `validate:"required,gt=0"`
	ShowTime   time.Time                   `validate:"required"`
	Language   string                      `validate:"max=32"`
	Experience string                      `validate:"max=32"`
	Pricing    map[string]domain.PriceTier `validate:"required,min=1"`
}

// ScheduleShow creates a show on a screen with every seat of the screen
// layout AVAILABLE. The end time follows from the movie duration.
func (s *Service) ScheduleShow(ctx context.Context, input ScheduleInput) (*domain.Show, error) {
	if err := appvalidator.Struct(s.validator, input); err != nil {
		return nil, err
	}

	if !input.ShowTime.After(s.now()) {
		return nil, domain.NewValidationError("ShowTime", "must be in the future")
	}

	movie, err := s.movies.GetMovie(ctx, input.MovieID)
	if err != nil {
		return nil, err
	}

	if _, err = s.catalog.GetTheater(ctx, input.TheaterID); err != nil {
		return nil, err
	}

	screen, err := s.catalog.GetScreen(ctx, input.ScreenID)
	if err != nil {
		return nil, err
	}

	if screen.TheaterID != input.TheaterID {
		return nil, domain.NewValidationError("ScreenID", "does not belong to the theater")
	}

	if len(screen.Layout) == 0 {
		return nil, domain.NewValidationError("ScreenID", "has no bookable seats")
	}

	pricing := make(map[string]domain.PriceTier, len(input.Pricing))
	for category, tier := range input.Pricing {
		pricing[category] = domain.NewPriceTier(tier.BasePrice, tier.Charges...)
	}

	seats := make([]domain.ShowSeat, len(screen.Layout))
	for i, seat := range screen.Layout {
		if _, ok := pricing[seat.Category]; !ok {
			return nil, domain.NewValidationError("Pricing", fmt.Sprintf("has no tier for category %s", seat.Category))
		}

		seats[i] = domain.ShowSeat{
			SeatID:   seat.SeatID,
			Row:      seat.Row,
			Column:   seat.Column,
			Category: seat.Category,
			Status:   domain.SeatAvailable,
		}
	}

	show := &domain.Show{
		MovieID:    movie.ID,
		TheaterID:  input.TheaterID,
		ScreenID:   screen.ID,
		ShowTime:   input.ShowTime,
		EndTime:    input.ShowTime.Add(time.Duration(movie.DurationMinutes) * time.Minute),
		Language:   input.Language,
		Experience: input.Experience,
		Pricing:    pricing,
		Seats:      seats,
		Status:     domain.ShowOpen,
	}
	show.RecomputeCounters()

	if err = s.shows.Create(ctx, show); err != nil {
		return nil, err
	}

	s.logger.Info("show scheduled", "show_id", show.ID, "movie_id", show.MovieID, "seats", show.TotalSeats)

	return show, nil
}

// AdvanceShowStatuses moves shows to STARTED or FINISHED by wall clock and
// refreshes the occupancy status of shows that have not started yet. It
// returns the number of shows whose status changed.
func (s *Service) AdvanceShowStatuses(ctx context.Context, now time.Time) (int, error) {
	shows, err := s.shows.ListSchedulable(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	changed := 0

	for _, show := range shows {
		next := show.TimeStatus(now)

		if next != show.Status {
			err = s.shows.UpdateStatus(ctx, show.ID, show.Status, next)
			switch {
			case errors.Is(err, domain.ErrEditConflict):
				s.logger.Warn("show status changed concurrently", "show_id", show.ID, "from", show.Status)
			case err != nil:
				errs = append(errs, fmt.Errorf("show %d: %w", show.ID, err))
			default:
				s.logger.Info("show status advanced", "show_id", show.ID, "from", show.Status, "to", next)
				changed++
			}

			continue
		}

		if !show.Status.OccupancyDriven() {
			continue
		}

		refreshed, err := s.shows.RefreshCounters(ctx, show.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("show %d: %w", show.ID, err))
			continue
		}

		if refreshed.Status != show.Status {
			s.logger.Info("show status advanced", "show_id", show.ID, "from", show.Status, "to", refreshed.Status)
			changed++
		}
	}

	return changed, errors.Join(errs...)
}
