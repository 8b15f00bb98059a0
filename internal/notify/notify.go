// Package notify tells group members about decisions on their ledger entries.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/splitledger/internal/models"
)

// EventKind identifies what happened.
type EventKind string

const (
	ExpenseApproved EventKind = "expense_approved"
	ExpenseRejected EventKind = "expense_rejected"
	PaymentApproved EventKind = "payment_approved"
	PaymentRejected EventKind = "payment_rejected"
	PaymentReceived EventKind = "payment_received"
)

// Event describes one ledger decision. Exactly one of Expense and Payment is set.
type Event struct {
	Kind       EventKind
	Group      models.Group
	Actor      string
	Expense    *models.Expense
	Payment    *models.Payment
	Recipients []models.Member
}

// Notifier delivers events to their recipients.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Subject returns a one-line summary of the event.
func (ev Event) Subject() string {
	switch ev.Kind {
	case ExpenseApproved, ExpenseRejected:
		verb := "approved"
		if ev.Kind == ExpenseRejected {
			verb = "rejected"
		}
		return fmt.Sprintf("[%s] Expense %q %s", ev.Group.Name, ev.Expense.Description, verb)
	case PaymentApproved, PaymentRejected:
		verb := "approved"
		if ev.Kind == PaymentRejected {
			verb = "rejected"
		}
		return fmt.Sprintf("[%s] Payment of %s %s", ev.Group.Name, ev.Payment.Amount, verb)
	case PaymentReceived:
		return fmt.Sprintf("[%s] %s sent you %s", ev.Group.Name, ev.Payment.PayerID, ev.Payment.Amount)
	}
	return fmt.Sprintf("[%s] %s", ev.Group.Name, ev.Kind)
}

// Body returns the plain-text message body.
func (ev Event) Body() string {
	switch {
	case ev.Expense != nil:
		e := ev.Expense
		return fmt.Sprintf("%s paid %s for %q.\nStatus: %s (by %s)\n", e.PayerID, e.Total, e.Description, e.State, ev.Actor)
	case ev.Payment != nil:
		p := ev.Payment
		body := fmt.Sprintf("%s paid %s %s.\nStatus: %s (by %s)\n", p.PayerID, p.PayeeID, p.Amount, p.State, ev.Actor)
		if p.Note != "" {
			body += "Note: " + p.Note + "\n"
		}
		return body
	}
	return string(ev.Kind) + "\n"
}

// LogNotifier writes events to the structured log. Used when SMTP is not configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev Event) error {
	ids := make([]string, len(ev.Recipients))
	for i, r := range ev.Recipients {
		ids[i] = r.ID
	}
	slog.InfoContext(ctx, "Notification", "kind", ev.Kind, "group_id", ev.Group.ID, "recipients", ids, "subject", ev.Subject())
	return nil
}
