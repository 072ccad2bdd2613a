package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type PaymentOrder struct {
	BookingID     string
	BookingNumber string
	Amount        decimal.Decimal
	Currency      string
}

type PaymentGateway interface {
	Initiate(ctx context.Context, order PaymentOrder) (string, error)
	Verify(ctx context.Context, orderRef, paymentRef, signature string) (bool, error)
	Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) (string, error)
}
