package mocks

import (
	"context"

	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockPaymentGateway struct {
	mock.Mock
	domain.PaymentGateway
}

func (m *MockPaymentGateway) Initiate(ctx context.Context, order domain.PaymentOrder) (string, error) {
	args := m.Called(ctx, order)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) Verify(ctx context.Context, orderRef, paymentRef, signature string) (bool, error) {
	args := m.Called(ctx, orderRef, paymentRef, signature)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentGateway) Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) (string, error) {
	args := m.Called(ctx, transactionRef, amount)
	return args.String(0), args.Error(1)
}
