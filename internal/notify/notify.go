// Package notify delivers ticket notifications by email and to the message
// broker.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/metinatakli/show-booking-engine/internal/mailer"
)

var templates = map[domain.TicketEvent]string{
	domain.TicketEventConfirmed: "ticket_confirmed.tmpl",
	domain.TicketEventCancelled: "ticket_cancelled.tmpl",
}

type MailNotifier struct {
	mailer mailer.Mailer
}

func NewMailNotifier(m mailer.Mailer) *MailNotifier {
	return &MailNotifier{mailer: m}
}

// SendTicket emails the notification to its recipient. Bookings without a
// contact email are skipped.
func (n *MailNotifier) SendTicket(ctx context.Context, t domain.TicketNotification) error {
	if t.Recipient == "" {
		return nil
	}

	tmpl, ok := templates[t.Event]
	if !ok {
		return fmt.Errorf("no email template for event %s", t.Event)
	}

	done := make(chan error, 1)
	go func() {
		done <- n.mailer.Send(t.Recipient, tmpl, t)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Multi fans a notification out to several notifiers and joins their errors.
type Multi []domain.Notifier

func (m Multi) SendTicket(ctx context.Context, t domain.TicketNotification) error {
	var errs []error
	for _, n := range m {
		if err := n.SendTicket(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
