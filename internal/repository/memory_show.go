package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/domain"
)

// MemoryShowRepository keeps seat maps in process. Every show has its own
// mutex so mutations of one show never wait on another.
type MemoryShowRepository struct {
	mu     sync.RWMutex
	shows  map[int64]*memoryShow
	nextID int64
}

type memoryShow struct {
	mu   sync.Mutex
	show domain.Show
}

func NewMemoryShowRepository() *MemoryShowRepository {
	return &MemoryShowRepository{
		shows: make(map[int64]*memoryShow),
	}
}

func (m *MemoryShowRepository) Create(ctx context.Context, show *domain.Show) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if show.ID == 0 {
		m.nextID++
		show.ID = m.nextID
	} else if show.ID > m.nextID {
		m.nextID = show.ID
	}

	if _, ok := m.shows[show.ID]; ok {
		return domain.ErrEditConflict
	}

	m.shows[show.ID] = &memoryShow{show: *cloneShow(show)}

	return nil
}

func (m *MemoryShowRepository) entry(showID int64) (*memoryShow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.shows[showID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return e, nil
}

func (m *MemoryShowRepository) GetByID(ctx context.Context, id int64) (*domain.Show, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return cloneShow(&e.show), nil
}

// ReserveSeats blocks every seat or none of them.
func (m *MemoryShowRepository) ReserveSeats(
	ctx context.Context,
	showID int64,
	seatIDs []string,
	bookingID uuid.UUID,
	at time.Time) error {

	e, err := m.entry(showID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := seatIndexes(&e.show, seatIDs)
	if !ok {
		return domain.ErrSeatAlreadyReserved
	}

	for _, i := range idx {
		if e.show.Seats[i].Status != domain.SeatAvailable {
			return domain.ErrSeatAlreadyReserved
		}
	}

	for _, i := range idx {
		id := bookingID
		e.show.Seats[i].Status = domain.SeatBlocked
		e.show.Seats[i].BookingID = &id
		e.show.Seats[i].UpdatedAt = at
	}

	e.show.RecomputeCounters()
	e.show.UpdatedAt = at

	return nil
}

func (m *MemoryShowRepository) ConfirmSeats(
	ctx context.Context,
	showID int64,
	seatIDs []string,
	bookingID uuid.UUID,
	at time.Time) error {

	e, err := m.entry(showID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := seatIndexes(&e.show, seatIDs)
	if !ok {
		return domain.ErrSeatLockExpired
	}

	for _, i := range idx {
		seat := e.show.Seats[i]
		if seat.Status != domain.SeatBlocked || !heldBy(seat, bookingID) {
			return domain.ErrSeatLockExpired
		}
	}

	for _, i := range idx {
		e.show.Seats[i].Status = domain.SeatBooked
		e.show.Seats[i].UpdatedAt = at
	}

	e.show.RecomputeCounters()
	e.show.UpdatedAt = at

	return nil
}

// ReleaseSeats frees the seats still owned by bookingID. Seats that were
// already released or taken over by another booking are skipped.
func (m *MemoryShowRepository) ReleaseSeats(
	ctx context.Context,
	showID int64,
	seatIDs []string,
	bookingID uuid.UUID,
	at time.Time) error {

	e, err := m.entry(showID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, seatID := range seatIDs {
		seat, ok := e.show.Seat(seatID)
		if !ok || !heldBy(*seat, bookingID) {
			continue
		}

		if seat.Status == domain.SeatBlocked || seat.Status == domain.SeatBooked {
			seat.Status = domain.SeatAvailable
			seat.BookingID = nil
			seat.UpdatedAt = at
		}
	}

	e.show.RecomputeCounters()
	e.show.UpdatedAt = at

	return nil
}

func (m *MemoryShowRepository) RefreshCounters(ctx context.Context, showID int64) (*domain.Show, error) {
	e, err := m.entry(showID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.show.RecomputeCounters()

	return cloneShow(&e.show), nil
}

func (m *MemoryShowRepository) ListStaleSeatHolds(ctx context.Context, before time.Time) ([]domain.SeatHold, error) {
	return m.groupSeats(domain.SeatBlocked, before), nil
}

// ListStaleBookedSeats returns every group of BOOKED seats last touched before
// the given time. Bookings live in a separate store here, so the caller checks
// which groups still belong to a confirmed booking.
func (m *MemoryShowRepository) ListStaleBookedSeats(ctx context.Context, before time.Time) ([]domain.SeatHold, error) {
	return m.groupSeats(domain.SeatBooked, before), nil
}

func (m *MemoryShowRepository) groupSeats(status domain.SeatStatus, before time.Time) []domain.SeatHold {
	var holds []domain.SeatHold

	for _, e := range m.snapshot() {
		e.mu.Lock()
		byBooking := make(map[uuid.UUID]*domain.SeatHold)

		for _, seat := range e.show.Seats {
			if seat.Status != status || seat.BookingID == nil || !seat.UpdatedAt.Before(before) {
				continue
			}

			hold, ok := byBooking[*seat.BookingID]
			if !ok {
				hold = &domain.SeatHold{ShowID: e.show.ID, BookingID: *seat.BookingID, HeldSince: seat.UpdatedAt}
				byBooking[*seat.BookingID] = hold
			}

			hold.SeatIDs = append(hold.SeatIDs, seat.SeatID)
			if seat.UpdatedAt.Before(hold.HeldSince) {
				hold.HeldSince = seat.UpdatedAt
			}
		}
		e.mu.Unlock()

		for _, hold := range byBooking {
			holds = append(holds, *hold)
		}
	}

	sort.Slice(holds, func(i, j int) bool {
		return holds[i].HeldSince.Before(holds[j].HeldSince)
	})

	return holds
}

func (m *MemoryShowRepository) ListSchedulable(ctx context.Context) ([]domain.Show, error) {
	var shows []domain.Show

	for _, e := range m.snapshot() {
		e.mu.Lock()
		if e.show.Status != domain.ShowFinished && e.show.Status != domain.ShowCancelled {
			show := *cloneShow(&e.show)
			show.Seats = nil
			shows = append(shows, show)
		}
		e.mu.Unlock()
	}

	sort.Slice(shows, func(i, j int) bool {
		return shows[i].ShowTime.Before(shows[j].ShowTime)
	})

	return shows, nil
}

func (m *MemoryShowRepository) UpdateStatus(ctx context.Context, showID int64, from, to domain.ShowStatus) error {
	return m.mutate(showID, func(show *domain.Show) error {
		if show.Status != from {
			return domain.ErrEditConflict
		}

		show.Status = to
		return nil
	})
}

func (m *MemoryShowRepository) IncrementViews(ctx context.Context, showID int64) error {
	return m.mutate(showID, func(show *domain.Show) error {
		show.ViewCount++
		return nil
	})
}

func (m *MemoryShowRepository) IncrementBookingAttempts(ctx context.Context, showID int64) error {
	return m.mutate(showID, func(show *domain.Show) error {
		show.BookingAttempts++
		return nil
	})
}

func (m *MemoryShowRepository) UpdatePopularity(ctx context.Context, showID int64, score float64) error {
	return m.mutate(showID, func(show *domain.Show) error {
		show.PopularityScore = score
		return nil
	})
}

func (m *MemoryShowRepository) mutate(showID int64, fn func(*domain.Show) error) error {
	e, err := m.entry(showID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return fn(&e.show)
}

func (m *MemoryShowRepository) snapshot() []*memoryShow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Collect(maps.Values(m.shows))
}

func seatIndexes(show *domain.Show, seatIDs []string) ([]int, bool) {
	positions := make(map[string]int, len(show.Seats))
	for i, seat := range show.Seats {
		positions[seat.SeatID] = i
	}

	idx := make([]int, 0, len(seatIDs))
	for _, id := range seatIDs {
		i, ok := positions[id]
		if !ok {
			return nil, false
		}
		idx = append(idx, i)
	}

	return idx, true
}

func heldBy(seat domain.ShowSeat, bookingID uuid.UUID) bool {
	return seat.BookingID != nil && *seat.BookingID == bookingID
}

func cloneShow(show *domain.Show) *domain.Show {
	c := *show
	c.Pricing = maps.Clone(show.Pricing)
	c.Seats = make([]domain.ShowSeat, len(show.Seats))

	for i, seat := range show.Seats {
		if seat.BookingID != nil {
			id := *seat.BookingID
			seat.BookingID = &id
		}
		c.Seats[i] = seat
	}

	return &c
}
