package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Movie struct {
	ID              int64
	Title           string
	DurationMinutes int
}

type Theater struct {
	ID   int64
	Name string
	City string
}

// LayoutSeat is a bookable position of a screen. Gaps and administratively
// disabled seats are never part of a layout.
type LayoutSeat struct {
	SeatID   string
	Row      string
	Column   int
	Category string
}

type Screen struct {
	ID        int64
	TheaterID int64
	Name      string
	Layout    []LayoutSeat
}

type MovieSale struct {
	Bookings        int
	Revenue         decimal.Decimal
	PopularityDelta float64
}

type ShowCatalog interface {
	GetTheater(ctx context.Context, id int64) (*Theater, error)
	GetScreen(ctx context.Context, id int64) (*Screen, error)
}

type MovieCatalog interface {
	GetMovie(ctx context.Context, id int64) (*Movie, error)
	RecordSale(ctx context.Context, movieID int64, sale MovieSale) error
}
