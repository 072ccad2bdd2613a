package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/metinatakli/show-booking-engine/internal/domain"
)

// MemoryCatalog serves movies, theaters, screens and coupons from process
// memory. It backs the memory store mode and tests.
type MemoryCatalog struct {
	mu       sync.RWMutex
	movies   map[int64]domain.Movie
	sales    map[int64]domain.MovieSale
	theaters map[int64]domain.Theater
	screens  map[int64]domain.Screen
	coupons  map[int64]domain.Coupon
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		movies:   make(map[int64]domain.Movie),
		sales:    make(map[int64]domain.MovieSale),
		theaters: make(map[int64]domain.Theater),
		screens:  make(map[int64]domain.Screen),
		coupons:  make(map[int64]domain.Coupon),
	}
}

func (m *MemoryCatalog) AddMovie(movie domain.Movie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movies[movie.ID] = movie
}

func (m *MemoryCatalog) AddTheater(theater domain.Theater) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.theaters[theater.ID] = theater
}

func (m *MemoryCatalog) AddScreen(screen domain.Screen) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screens[screen.ID] = screen
}

func (m *MemoryCatalog) AddCoupon(coupon domain.Coupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons[coupon.ID] = coupon
}

func (m *MemoryCatalog) GetMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	movie, ok := m.movies[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return &movie, nil
}

func (m *MemoryCatalog) RecordSale(ctx context.Context, movieID int64, sale domain.MovieSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.movies[movieID]; !ok {
		return domain.ErrRecordNotFound
	}

	total := m.sales[movieID]
	total.Bookings += sale.Bookings
	total.Revenue = total.Revenue.Add(sale.Revenue)
	total.PopularityDelta += sale.PopularityDelta
	m.sales[movieID] = total

	return nil
}

// Sales returns the accumulated sales of a movie.
func (m *MemoryCatalog) Sales(movieID int64) domain.MovieSale {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sales[movieID]
}

func (m *MemoryCatalog) GetTheater(ctx context.Context, id int64) (*domain.Theater, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	theater, ok := m.theaters[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return &theater, nil
}

func (m *MemoryCatalog) GetScreen(ctx context.Context, id int64) (*domain.Screen, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	screen, ok := m.screens[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return &screen, nil
}

func (m *MemoryCatalog) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.coupons {
		if strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}

	return nil, domain.ErrRecordNotFound
}

func (m *MemoryCatalog) GetByID(ctx context.Context, id int64) (*domain.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.coupons[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return &c, nil
}

func (m *MemoryCatalog) IncrementUsage(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.coupons[id]
	if !ok {
		return domain.ErrRecordNotFound
	}

	if c.Exhausted() {
		return domain.ErrEditConflict
	}

	c.UsageCount++
	m.coupons[id] = c

	return nil
}
