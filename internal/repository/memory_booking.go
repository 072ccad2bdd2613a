package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/domain"
)

type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*domain.Booking
	numbers  map[string]uuid.UUID
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[uuid.UUID]*domain.Booking),
		numbers:  make(map[string]uuid.UUID),
	}
}

func (m *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.numbers[booking.BookingNumber]; ok {
		return domain.ErrDuplicateBookingNumber
	}

	if _, ok := m.bookings[booking.ID]; ok {
		return domain.ErrEditConflict
	}

	m.bookings[booking.ID] = cloneBooking(booking)
	m.numbers[booking.BookingNumber] = booking.ID

	return nil
}

func (m *MemoryBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	booking, ok := m.bookings[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return cloneBooking(booking), nil
}

func (m *MemoryBookingRepository) GetByNumber(ctx context.Context, number string) (*domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.numbers[number]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return cloneBooking(m.bookings[id]), nil
}

func (m *MemoryBookingRepository) ListByUser(
	ctx context.Context,
	userID int64,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	m.mu.RLock()
	var owned []domain.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			owned = append(owned, *cloneBooking(b))
		}
	}
	m.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := len(owned)
	start := min(pagination.Offset(), total)
	end := min(start+pagination.Limit(), total)

	return owned[start:end], domain.NewMetadata(total, pagination.Page, pagination.PageSize), nil
}

func (m *MemoryBookingRepository) Update(
	ctx context.Context,
	booking *domain.Booking,
	from ...domain.BookingStatus) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.bookings[booking.ID]
	if !ok {
		return domain.ErrRecordNotFound
	}

	if !stored.Status.In(from...) {
		return domain.ErrInvalidState
	}

	m.bookings[booking.ID] = cloneBooking(booking)

	return nil
}

func (m *MemoryBookingRepository) Delete(ctx context.Context, id uuid.UUID, from ...domain.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.bookings[id]
	if !ok {
		return domain.ErrRecordNotFound
	}

	if !stored.Status.In(from...) {
		return domain.ErrInvalidState
	}

	delete(m.numbers, stored.BookingNumber)
	delete(m.bookings, id)

	return nil
}

func (m *MemoryBookingRepository) ListStaleHolds(
	ctx context.Context,
	before time.Time,
	limit int) ([]domain.Booking, error) {

	m.mu.RLock()
	var stale []domain.Booking
	for _, b := range m.bookings {
		if b.Status.In(domain.HoldStatuses...) && b.HoldStartedAt.Before(before) {
			stale = append(stale, *cloneBooking(b))
		}
	}
	m.mu.RUnlock()

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].HoldStartedAt.Before(stale[j].HoldStartedAt)
	})

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	return stale, nil
}

func (m *MemoryBookingRepository) CountConfirmedByUser(ctx context.Context, userID int64) (int, error) {
	return m.count(func(b *domain.Booking) bool {
		return b.UserID == userID && b.Status == domain.BookingConfirmed
	}), nil
}

func (m *MemoryBookingRepository) CountUserCouponUses(ctx context.Context, userID int64, code string) (int, error) {
	return m.count(func(b *domain.Booking) bool {
		return b.UserID == userID &&
			b.Status == domain.BookingConfirmed &&
			b.Coupon != nil &&
			strings.EqualFold(b.Coupon.Code, code)
	}), nil
}

func (m *MemoryBookingRepository) count(match func(*domain.Booking) bool) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, b := range m.bookings {
		if match(b) {
			n++
		}
	}

	return n
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	c := *b
	c.Seats = slices.Clone(b.Seats)

	if b.Coupon != nil {
		coupon := *b.Coupon
		c.Coupon = &coupon
	}
	if b.Cancellation != nil {
		cancellation := *b.Cancellation
		c.Cancellation = &cancellation
	}
	if b.Refund != nil {
		refund := *b.Refund
		c.Refund = &refund
	}

	return &c
}
