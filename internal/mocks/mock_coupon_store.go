package mocks

import (
	"context"

	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockCouponStore struct {
	mock.Mock
	domain.CouponStore
}

func (m *MockCouponStore) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Coupon), args.Error(1)
}

func (m *MockCouponStore) GetByID(ctx context.Context, id int64) (*domain.Coupon, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Coupon), args.Error(1)
}

func (m *MockCouponStore) IncrementUsage(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
