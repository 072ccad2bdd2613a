package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// LocalGateway settles payments in process. It backs the in-memory store and
// local development where no Stripe account is configured.
type LocalGateway struct {
	secret string

	mu      sync.Mutex
	orders  map[string]domain.PaymentOrder
	refunds map[string]decimal.Decimal
}

func NewLocalGateway(secret string) *LocalGateway {
	return &LocalGateway{
		secret:  secret,
		orders:  make(map[string]domain.PaymentOrder),
		refunds: make(map[string]decimal.Decimal),
	}
}

func (g *LocalGateway) Initiate(ctx context.Context, order domain.PaymentOrder) (string, error) {
	ref := "order_" + uuid.NewString()

	g.mu.Lock()
	g.orders[ref] = order
	g.mu.Unlock()

	return ref, nil
}

func (g *LocalGateway) Verify(ctx context.Context, orderRef, paymentRef, signature string) (bool, error) {
	g.mu.Lock()
	_, ok := g.orders[orderRef]
	g.mu.Unlock()

	if !ok {
		return false, nil
	}

	return ValidSignature(g.secret, orderRef, paymentRef, signature), nil
}

// Refund fails when the payment has already been refunded.
func (g *LocalGateway) Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.refunds[transactionRef]; ok {
		return "", fmt.Errorf("payment %s already refunded", transactionRef)
	}

	g.refunds[transactionRef] = amount

	return "refund_" + uuid.NewString(), nil
}
