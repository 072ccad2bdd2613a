package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TicketEvent string

const (
	TicketEventConfirmed TicketEvent = "booking.confirmed"
	TicketEventCancelled TicketEvent = "booking.cancelled"
)

type TicketNotification struct {
	Event         TicketEvent     `json:"event"`
	BookingID     string          `json:"bookingId"`
	BookingNumber string          `json:"bookingNumber"`
	UserID        int64           `json:"userId"`
	Recipient     string          `json:"recipient,omitempty"`
	ShowID        int64           `json:"showId"`
	ShowTime      time.Time       `json:"showTime"`
	SeatIDs       []string        `json:"seatIds"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Currency      string          `json:"currency"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

type Notifier interface {
	SendTicket(ctx context.Context, n TicketNotification) error
}
