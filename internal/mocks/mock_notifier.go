package mocks

import (
	"context"
	"sync"

	"github.com/metinatakli/show-booking-engine/internal/domain"
)

// MockNotifier records every ticket notification it receives.
type MockNotifier struct {
	mu   sync.Mutex
	sent []domain.TicketNotification
	Err  error
}

func (m *MockNotifier) SendTicket(ctx context.Context, n domain.TicketNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, n)

	return m.Err
}

func (m *MockNotifier) Sent() []domain.TicketNotification {
	m.mu.Lock()
	defer m.mu.Unlock()

	sent := make([]domain.TicketNotification, len(m.sent))
	copy(sent, m.sent)
	return sent
}
