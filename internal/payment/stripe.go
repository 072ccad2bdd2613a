package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"
)

// StripeGateway collects payments through Stripe Checkout. The order
// reference is the checkout session ID and the payment reference is the ID of
// the payment intent behind it.
type StripeGateway struct {
	failureUrl    string
	successUrl    string
	signingSecret string

	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSession func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newRefund  func(*stripe.RefundParams) (*stripe.Refund, error)
}

func NewStripeGateway(failureUrl, successUrl, signingSecret string) *StripeGateway {
	return &StripeGateway{
		failureUrl:    failureUrl,
		successUrl:    successUrl,
		signingSecret: signingSecret,
		newSession:    session.New,
		getSession:    session.Get,
		newRefund:     refund.New,
	}
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (s *StripeGateway) Initiate(ctx context.Context, order domain.PaymentOrder) (string, error) {
	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(order.Currency)),
					UnitAmount: stripe.Int64(toCents(order.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Booking %s", order.BookingNumber)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successUrl),
		CancelURL:         stripe.String(s.failureUrl),
		ClientReferenceID: stripe.String(order.BookingID),
		Metadata: map[string]string{
			"booking_id":     order.BookingID,
			"booking_number": order.BookingNumber,
		},
	}

	cs, err := s.newSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}

	return cs.ID, nil
}

// Verify reports whether the checkout session has been paid through the given
// payment intent. When a signing secret is configured the signature must be
// the HMAC of both references as produced by Sign.
func (s *StripeGateway) Verify(ctx context.Context, orderRef, paymentRef, signature string) (bool, error) {
	if s.signingSecret != "" && !ValidSignature(s.signingSecret, orderRef, paymentRef, signature) {
		return false, nil
	}

	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("payment_intent")

	cs, err := s.getSession(orderRef, params)
	if err != nil {
		return false, fmt.Errorf("retrieve checkout session %s: %w", orderRef, err)
	}

	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid || cs.PaymentIntent == nil {
		return false, nil
	}

	return cs.PaymentIntent.ID == paymentRef, nil
}

func (s *StripeGateway) Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) (string, error) {
	r, err := s.newRefund(&stripe.RefundParams{
		PaymentIntent: stripe.String(transactionRef),
		Amount:        stripe.Int64(toCents(amount)),
	})
	if err != nil {
		return "", fmt.Errorf("refund payment %s: %w", transactionRef, err)
	}

	return r.ID, nil
}
