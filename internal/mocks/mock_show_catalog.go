package mocks

import (
	"context"

	"github.com/metinatakli/show-booking-engine/internal/domain"
)

type MockShowCatalog struct {
	domain.ShowCatalog
	GetTheaterFunc func(ctx context.Context, id int64) (*domain.Theater, error)
	GetScreenFunc  func(ctx context.Context, id int64) (*domain.Screen, error)
}

func (m *MockShowCatalog) GetTheater(ctx context.Context, id int64) (*domain.Theater, error) {
	return m.GetTheaterFunc(ctx, id)
}

func (m *MockShowCatalog) GetScreen(ctx context.Context, id int64) (*domain.Screen, error) {
	return m.GetScreenFunc(ctx, id)
}
