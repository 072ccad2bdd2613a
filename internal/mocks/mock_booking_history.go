package mocks

import (
	"context"
)

type MockBookingHistory struct {
	CountConfirmedByUserFunc func(ctx context.Context, userID int64) (int, error)
	CountUserCouponUsesFunc  func(ctx context.Context, userID int64, code string) (int, error)
}

func (m *MockBookingHistory) CountConfirmedByUser(ctx context.Context, userID int64) (int, error) {
	return m.CountConfirmedByUserFunc(ctx, userID)
}

func (m *MockBookingHistory) CountUserCouponUses(ctx context.Context, userID int64, code string) (int, error) {
	return m.CountUserCouponUsesFunc(ctx, userID, code)
}
