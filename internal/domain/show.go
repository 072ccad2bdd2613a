package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SeatStatus string

const (
	SeatAvailable   SeatStatus = "AVAILABLE"
	SeatBlocked     SeatStatus = "BLOCKED"
	SeatBooked      SeatStatus = "BOOKED"
	SeatUnavailable SeatStatus = "UNAVAILABLE"
)

type ShowStatus string

const (
	ShowOpen          ShowStatus = "OPEN"
	ShowFewSeatsLeft  ShowStatus = "FEWSEATSLEFT"
	ShowSoldOut       ShowStatus = "SOLDOUT"
	ShowStarted       ShowStatus = "STARTED"
	ShowFinished      ShowStatus = "FINISHED"
	ShowCancelled     ShowStatus = "CANCELLED"
	fewSeatsLeftRatio            = 10 // percent of total seats
)

// Bookable reports whether new holds may be placed on a show in this status.
func (s ShowStatus) Bookable() bool {
	return s == ShowOpen || s == ShowFewSeatsLeft
}

// OccupancyDriven reports whether the status is derived from seat counts and
// may therefore be replaced by a counter recompute.
func (s ShowStatus) OccupancyDriven() bool {
	return s == ShowOpen || s == ShowFewSeatsLeft || s == ShowSoldOut
}

type Charge struct {
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	IsPercentage bool            `json:"isPercentage"`
}

type PriceTier struct {
	BasePrice  decimal.Decimal `json:"basePrice"`
	Charges    []Charge        `json:"charges"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
}

// NewPriceTier computes the final price from the base price and the
// additional charges.
func NewPriceTier(base decimal.Decimal, charges ...Charge) PriceTier {
	final := base

	for _, c := range charges {
		if c.IsPercentage {
			final = final.Add(base.Mul(c.Amount).Div(decimal.NewFromInt(100)))
			continue
		}
		final = final.Add(c.Amount)
	}

	return PriceTier{
		BasePrice:  base,
		Charges:    charges,
		FinalPrice: RoundMoney(final),
	}
}

type ShowSeat struct {
	SeatID    string
	Row       string
	Column    int
	Category  string
	Status    SeatStatus
	BookingID *uuid.UUID
	UpdatedAt time.Time
}

type Show struct {
	ID              int64
	MovieID         int64
	TheaterID       int64
	ScreenID        int64
	ShowTime        time.Time
	EndTime         time.Time
	Language        string
	Experience      string
	Pricing         map[string]PriceTier
	Seats           []ShowSeat
	TotalSeats      int
	AvailableSeats  int
	BookedSeats     int
	Status          ShowStatus
	ViewCount       int64
	BookingAttempts int64
	PopularityScore float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SeatCounts is the per-status tally of a show's seat map.
type SeatCounts map[SeatStatus]int

func (c SeatCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

func (s *Show) SeatCounts() SeatCounts {
	counts := SeatCounts{}
	for _, seat := range s.Seats {
		counts[seat.Status]++
	}
	return counts
}

func (s *Show) Seat(seatID string) (*ShowSeat, bool) {
	for i := range s.Seats {
		if s.Seats[i].SeatID == seatID {
			return &s.Seats[i], true
		}
	}
	return nil, false
}

// ApplyCounts sets the derived counters from a seat tally and recomputes the
// occupancy status. Time driven and cancelled statuses are left untouched.
func (s *Show) ApplyCounts(counts SeatCounts) {
	s.TotalSeats = counts.Total()
	s.AvailableSeats = counts[SeatAvailable]
	s.BookedSeats = counts[SeatBooked]

	if s.Status == "" || s.Status.OccupancyDriven() {
		s.Status = OccupancyStatus(s.AvailableSeats, s.TotalSeats)
	}
}

// RecomputeCounters recounts the seat map held in memory.
func (s *Show) RecomputeCounters() {
	s.ApplyCounts(s.SeatCounts())
}

func OccupancyStatus(available, total int) ShowStatus {
	switch {
	case available == 0:
		return ShowSoldOut
	case available*100 <= total*fewSeatsLeftRatio:
		return ShowFewSeatsLeft
	default:
		return ShowOpen
	}
}

// Popularity weighs views, booking attempts and occupancy.
func (s *Show) Popularity() float64 {
	occupancy := 0.0
	if s.TotalSeats > 0 {
		occupancy = float64(s.BookedSeats) / float64(s.TotalSeats)
	}

	return 0.3*float64(s.ViewCount) + 0.3*float64(s.BookingAttempts) + 0.4*100*occupancy
}

// TimeStatus returns the status a show should have at the given instant based
// only on its start and end times.
func (s *Show) TimeStatus(now time.Time) ShowStatus {
	switch {
	case s.Status == ShowCancelled || s.Status == ShowFinished:
		return s.Status
	case !now.Before(s.EndTime):
		return ShowFinished
	case !now.Before(s.ShowTime):
		return ShowStarted
	default:
		return s.Status
	}
}

// SeatHold groups the seats one booking holds on a show.
type SeatHold struct {
	ShowID    int64
	BookingID uuid.UUID
	SeatIDs   []string
	HeldSince time.Time
}

type ShowRepository interface {
	Create(ctx context.Context, show *Show) error
	GetByID(ctx context.Context, id int64) (*Show, error)
	ReserveSeats(ctx context.Context, showID int64, seatIDs []string, bookingID uuid.UUID, at time.Time) error
	ConfirmSeats(ctx context.Context, showID int64, seatIDs []string, bookingID uuid.UUID, at time.Time) error
	ReleaseSeats(ctx context.Context, showID int64, seatIDs []string, bookingID uuid.UUID, at time.Time) error
	RefreshCounters(ctx context.Context, showID int64) (*Show, error)
	ListStaleSeatHolds(ctx context.Context, before time.Time) ([]SeatHold, error)
	ListStaleBookedSeats(ctx context.Context, before time.Time) ([]SeatHold, error)
	ListSchedulable(ctx context.Context) ([]Show, error)
	UpdateStatus(ctx context.Context, showID int64, from, to ShowStatus) error
	IncrementViews(ctx context.Context, showID int64) error
	IncrementBookingAttempts(ctx context.Context, showID int64) error
	UpdatePopularity(ctx context.Context, showID int64, score float64) error
}
